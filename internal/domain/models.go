package domain

import "time"

// Quiz is an ordered collection of questions owned by its author.
type Quiz struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	OwnerID     int64      `json:"owner_id"`
	CreatedAt   time.Time  `json:"created_at"`
	Questions   []Question `json:"questions,omitempty"`
}

// Question models a multiple-choice question. Choices may mark zero or more options correct.
type Question struct {
	ID        int64     `json:"id"`
	QuizID    int64     `json:"quiz_id"`
	Text      string    `json:"text"`
	TimeLimit int       `json:"time_limit"` // seconds, defaults to 30
	Order     int       `json:"order"`
	Choices   []Choice  `json:"choices"`
	CreatedAt time.Time `json:"created_at"`
}

// Choice is one option of a question.
type Choice struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"question_id"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"is_correct"`
}

// Session is one live playthrough of a quiz, addressed by its PIN.
type Session struct {
	ID        int64      `json:"id"`
	QuizID    int64      `json:"quiz_id"`
	Code      string     `json:"code"`
	PIN       string     `json:"pin"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	IsActive  bool       `json:"is_active"`
}

// Participant is an anonymous player in one session. Names are unique per session.
type Participant struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"session_id"`
	Name      string    `json:"name"`
	Score     int       `json:"score"`
	JoinedAt  time.Time `json:"joined_at"`
}

// Answer is the single recorded choice of a participant for a question.
type Answer struct {
	ID            int64     `json:"id"`
	ParticipantID int64     `json:"participant_id"`
	QuestionID    int64     `json:"question_id"`
	ChoiceID      int64     `json:"choice_id"`
	IsCorrect     bool      `json:"is_correct"`
	AnsweredAt    time.Time `json:"answered_at"`
}

// ScoreEntry is one row of a session scoreboard.
type ScoreEntry struct {
	ParticipantID int64  `json:"participant_id"`
	Name          string `json:"name"`
	Score         int    `json:"score"`
}

// ChoiceView exposes a choice without its correctness.
type ChoiceView struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// QuestionView is the question payload pushed to a session group.
type QuestionView struct {
	ID        int64        `json:"id"`
	Text      string       `json:"text"`
	Choices   []ChoiceView `json:"choices"`
	TimeLimit int          `json:"time_limit"`
}

// View strips correctness from the question.
func (q Question) View() QuestionView {
	choices := make([]ChoiceView, 0, len(q.Choices))
	for _, c := range q.Choices {
		choices = append(choices, ChoiceView{ID: c.ID, Text: c.Text})
	}
	return QuestionView{
		ID:        q.ID,
		Text:      q.Text,
		Choices:   choices,
		TimeLimit: q.TimeLimit,
	}
}
