package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// nameLimit mirrors the participants.name column width.
const nameLimit = 100

type nameKey struct {
	sessionID int64
	name      string
}

type answerKey struct {
	participantID int64
	questionID    int64
}

// Registry is an in-memory implementation of app.Registry.
type Registry struct {
	mu       sync.RWMutex
	clock    func() time.Time
	seq      int64
	lastJoin time.Time

	quizzes      map[int64]domain.Quiz
	questions    map[int64]domain.Question
	choices      map[int64]domain.Choice
	sessions     map[int64]domain.Session
	pins         map[string]int64
	participants map[int64]domain.Participant
	names        map[nameKey]int64
	answers      map[answerKey]domain.Answer
}

var _ app.Registry = (*Registry)(nil)

func NewRegistry() *Registry {
	return NewRegistryWithClock(time.Now)
}

// NewRegistryWithClock is test-only for deterministic timestamps.
func NewRegistryWithClock(clock func() time.Time) *Registry {
	return &Registry{
		clock:        clock,
		quizzes:      make(map[int64]domain.Quiz),
		questions:    make(map[int64]domain.Question),
		choices:      make(map[int64]domain.Choice),
		sessions:     make(map[int64]domain.Session),
		pins:         make(map[string]int64),
		participants: make(map[int64]domain.Participant),
		names:        make(map[nameKey]int64),
		answers:      make(map[answerKey]domain.Answer),
	}
}

func (r *Registry) nextID() int64 {
	r.seq++
	return r.seq
}

func (r *Registry) SessionByPIN(_ context.Context, pin string) (domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.pins[pin]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return r.sessions[id], nil
}

func (r *Registry) Session(_ context.Context, id int64) (domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (r *Registry) PINExists(_ context.Context, pin string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.pins[pin]
	return ok, nil
}

func (r *Registry) CreateSession(_ context.Context, session domain.Session) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.quizzes[session.QuizID]; !ok {
		return domain.Session{}, domain.ErrQuizNotFound
	}
	if _, ok := r.pins[session.PIN]; ok {
		return domain.Session{}, domain.ErrPINTaken
	}
	session.ID = r.nextID()
	r.sessions[session.ID] = session
	r.pins[session.PIN] = session.ID
	return session, nil
}

func (r *Registry) UpdateSession(_ context.Context, session domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.sessions[session.ID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	// identity fields are immutable
	session.PIN = existing.PIN
	session.Code = existing.Code
	session.QuizID = existing.QuizID
	r.sessions[session.ID] = session
	return nil
}

// DeleteSession removes a session together with its participants and their answers.
func (r *Registry) DeleteSession(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return domain.ErrSessionNotFound
	}
	r.deleteSessionLocked(id)
	return nil
}

func (r *Registry) deleteSessionLocked(id int64) {
	session := r.sessions[id]
	for pid, p := range r.participants {
		if p.SessionID != id {
			continue
		}
		for key := range r.answers {
			if key.participantID == pid {
				delete(r.answers, key)
			}
		}
		delete(r.names, nameKey{sessionID: id, name: p.Name})
		delete(r.participants, pid)
	}
	delete(r.pins, session.PIN)
	delete(r.sessions, id)
}

func (r *Registry) Participant(_ context.Context, id int64) (domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	participant, ok := r.participants[id]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return participant, nil
}

func (r *Registry) Participants(_ context.Context, sessionID int64) ([]domain.Participant, error) {
	r.mu.RLock()
	out := make([]domain.Participant, 0)
	for _, p := range r.participants {
		if p.SessionID == sessionID {
			out = append(out, p)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *Registry) CreateParticipant(_ context.Context, sessionID int64, name string) (domain.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return domain.Participant{}, domain.ErrSessionNotFound
	}
	if utf8.RuneCountInString(name) > nameLimit {
		return domain.Participant{}, fmt.Errorf("name longer than %d characters: %w", nameLimit, domain.ErrInvalidInput)
	}
	key := nameKey{sessionID: sessionID, name: name}
	if _, ok := r.names[key]; ok {
		return domain.Participant{}, domain.ErrDuplicateName
	}

	// join times strictly increase so ranking ties resolve by creation order
	joined := r.clock()
	if !joined.After(r.lastJoin) {
		joined = r.lastJoin.Add(time.Nanosecond)
	}
	r.lastJoin = joined

	participant := domain.Participant{
		ID:        r.nextID(),
		SessionID: sessionID,
		Name:      name,
		JoinedAt:  joined,
	}
	r.participants[participant.ID] = participant
	r.names[key] = participant.ID
	return participant, nil
}

func (r *Registry) SettleAnswer(_ context.Context, participantID, questionID int64, settle app.SettleFunc) (domain.Answer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	participant, ok := r.participants[participantID]
	if !ok {
		return domain.Answer{}, domain.ErrParticipantNotFound
	}

	key := answerKey{participantID: participantID, questionID: questionID}
	var prior *domain.Answer
	if existing, ok := r.answers[key]; ok {
		prior = &existing
	}

	next, score := settle(prior, participant.Score)
	next.ParticipantID = participantID
	next.QuestionID = questionID
	if prior == nil {
		next.ID = r.nextID()
	} else {
		next.ID = prior.ID
	}
	r.answers[key] = next
	participant.Score = score
	r.participants[participantID] = participant
	return next, nil
}

func (r *Registry) Answers(_ context.Context, participantID int64) ([]domain.Answer, error) {
	r.mu.RLock()
	out := make([]domain.Answer, 0)
	for key, a := range r.answers {
		if key.participantID == participantID {
			out = append(out, a)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Registry) Quiz(_ context.Context, id int64) (domain.Quiz, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	quiz, ok := r.quizzes[id]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	quiz.Questions = nil
	for _, q := range r.questions {
		if q.QuizID == id {
			quiz.Questions = append(quiz.Questions, copyQuestion(q))
		}
	}
	sort.Slice(quiz.Questions, func(i, j int) bool {
		if quiz.Questions[i].Order != quiz.Questions[j].Order {
			return quiz.Questions[i].Order < quiz.Questions[j].Order
		}
		return quiz.Questions[i].ID < quiz.Questions[j].ID
	})
	return quiz, nil
}

func (r *Registry) Quizzes(_ context.Context, ownerID int64) ([]domain.Quiz, error) {
	r.mu.RLock()
	out := make([]domain.Quiz, 0)
	for _, q := range r.quizzes {
		if q.OwnerID == ownerID {
			out = append(out, q)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *Registry) CreateQuiz(_ context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	quiz.ID = r.nextID()
	quiz.Questions = nil
	if quiz.CreatedAt.IsZero() {
		quiz.CreatedAt = r.clock()
	}
	r.quizzes[quiz.ID] = quiz
	return quiz, nil
}

func (r *Registry) UpdateQuiz(_ context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.quizzes[quiz.ID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	existing.Title = quiz.Title
	existing.Description = quiz.Description
	r.quizzes[quiz.ID] = existing
	return existing, nil
}

// DeleteQuiz cascades to questions, choices, sessions, participants and answers.
func (r *Registry) DeleteQuiz(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.quizzes[id]; !ok {
		return domain.ErrQuizNotFound
	}
	for sid, session := range r.sessions {
		if session.QuizID == id {
			r.deleteSessionLocked(sid)
		}
	}
	for qid, question := range r.questions {
		if question.QuizID == id {
			r.deleteQuestionLocked(qid)
		}
	}
	delete(r.quizzes, id)
	return nil
}

func (r *Registry) Question(_ context.Context, id int64) (domain.Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	question, ok := r.questions[id]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return copyQuestion(question), nil
}

func (r *Registry) Choice(_ context.Context, id int64) (domain.Choice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	choice, ok := r.choices[id]
	if !ok {
		return domain.Choice{}, domain.ErrChoiceNotFound
	}
	return choice, nil
}

func (r *Registry) CreateQuestion(_ context.Context, question domain.Question) (domain.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.quizzes[question.QuizID]; !ok {
		return domain.Question{}, domain.ErrQuizNotFound
	}
	question.ID = r.nextID()
	r.storeChoicesLocked(&question)
	r.questions[question.ID] = question
	return copyQuestion(question), nil
}

func (r *Registry) ReplaceQuestion(_ context.Context, question domain.Question) (domain.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.questions[question.ID]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	removed := make(map[int64]struct{}, len(existing.Choices))
	for _, c := range existing.Choices {
		removed[c.ID] = struct{}{}
		delete(r.choices, c.ID)
	}
	// answers cascade with their choice
	for key, a := range r.answers {
		if _, ok := removed[a.ChoiceID]; ok {
			delete(r.answers, key)
		}
	}
	question.QuizID = existing.QuizID
	r.storeChoicesLocked(&question)
	r.questions[question.ID] = question
	return copyQuestion(question), nil
}

func (r *Registry) DeleteQuestion(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.questions[id]; !ok {
		return domain.ErrQuestionNotFound
	}
	r.deleteQuestionLocked(id)
	return nil
}

func (r *Registry) deleteQuestionLocked(id int64) {
	for _, c := range r.questions[id].Choices {
		delete(r.choices, c.ID)
	}
	for key := range r.answers {
		if key.questionID == id {
			delete(r.answers, key)
		}
	}
	delete(r.questions, id)
}

func (r *Registry) storeChoicesLocked(question *domain.Question) {
	choices := make([]domain.Choice, 0, len(question.Choices))
	for _, c := range question.Choices {
		c.ID = r.nextID()
		c.QuestionID = question.ID
		r.choices[c.ID] = c
		choices = append(choices, c)
	}
	question.Choices = choices
}

func copyQuestion(q domain.Question) domain.Question {
	q.Choices = append([]domain.Choice(nil), q.Choices...)
	return q
}
