package app

import (
	"context"

	"live-quiz-service/internal/domain"
)

// SessionStore reads and writes sessions.
type SessionStore interface {
	SessionByPIN(ctx context.Context, pin string) (domain.Session, error)
	Session(ctx context.Context, id int64) (domain.Session, error)
	PINExists(ctx context.Context, pin string) (bool, error)
	// CreateSession assigns the id. It returns domain.ErrPINTaken when the PIN is not unique.
	CreateSession(ctx context.Context, session domain.Session) (domain.Session, error)
	UpdateSession(ctx context.Context, session domain.Session) error
	// DeleteSession removes the session with its participants and their answers.
	DeleteSession(ctx context.Context, id int64) error
}

// ParticipantStore reads and creates participants.
type ParticipantStore interface {
	Participant(ctx context.Context, id int64) (domain.Participant, error)
	// Participants lists a session's participants ordered by score desc, join time asc.
	Participants(ctx context.Context, sessionID int64) ([]domain.Participant, error)
	// CreateParticipant returns domain.ErrDuplicateName when (session, name) already exists.
	CreateParticipant(ctx context.Context, sessionID int64, name string) (domain.Participant, error)
}

// SettleFunc decides the replacement answer and new participant score from the prior answer
// (nil when none exists) and the current score.
type SettleFunc func(prior *domain.Answer, score int) (next domain.Answer, newScore int)

// AnswerStore persists answers.
type AnswerStore interface {
	// SettleAnswer reads the prior answer for (participant, question) and the participant's score,
	// applies settle and writes both results as one atomic unit.
	SettleAnswer(ctx context.Context, participantID, questionID int64, settle SettleFunc) (domain.Answer, error)
	Answers(ctx context.Context, participantID int64) ([]domain.Answer, error)
}

// QuizStore holds quiz content.
type QuizStore interface {
	Quiz(ctx context.Context, id int64) (domain.Quiz, error)
	// Quizzes lists the quizzes of one owner, newest first, without their questions.
	Quizzes(ctx context.Context, ownerID int64) ([]domain.Quiz, error)
	CreateQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error)
	// UpdateQuiz rewrites title and description.
	UpdateQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error)
	// DeleteQuiz removes the quiz and everything hanging off it: questions, choices, sessions,
	// participants and answers.
	DeleteQuiz(ctx context.Context, id int64) error
	Question(ctx context.Context, id int64) (domain.Question, error)
	// Choice returns the choice with its parent question id populated.
	Choice(ctx context.Context, id int64) (domain.Choice, error)
	CreateQuestion(ctx context.Context, question domain.Question) (domain.Question, error)
	// ReplaceQuestion overwrites text, limits and order, and recreates all choices.
	ReplaceQuestion(ctx context.Context, question domain.Question) (domain.Question, error)
	// DeleteQuestion removes the question, its choices and the answers given to it.
	DeleteQuestion(ctx context.Context, id int64) error
}

// Registry is the durable store the session core borrows entities from.
type Registry interface {
	SessionStore
	ParticipantStore
	AnswerStore
	QuizStore
}

// QuestionSource yields the public view of a question, typically through a cache.
type QuestionSource interface {
	QuestionView(ctx context.Context, id int64) (domain.QuestionView, error)
	Invalidate(ctx context.Context, id int64)
}

// TokenVerifier maps an opaque host token to a user id.
type TokenVerifier interface {
	Verify(token string) (int64, error)
}
