package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/logger"
)

const (
	pinDigits         = 6
	fallbackPINDigits = 8
	createRetries     = 3
)

// SessionService runs the session lifecycle: create with a fresh PIN, start, next, end.
type SessionService struct {
	sessions    SessionStore
	quizzes     QuizStore
	pinAttempts int
	now         func() time.Time
	log         *logger.Logger

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewSessionService(registry Registry, pinAttempts int, log *logger.Logger) *SessionService {
	return NewSessionServiceWithSource(registry, pinAttempts, log, rand.NewSource(time.Now().UnixNano()))
}

// NewSessionServiceWithSource allows deterministic PINs in tests.
func NewSessionServiceWithSource(registry Registry, pinAttempts int, log *logger.Logger, src rand.Source) *SessionService {
	if pinAttempts <= 0 {
		pinAttempts = 10
	}
	return &SessionService{
		sessions:    registry,
		quizzes:     registry,
		pinAttempts: pinAttempts,
		now:         time.Now,
		log:         log.With("component", "sessions"),
		rnd:         rand.New(src),
	}
}

// Create starts a new live session for a quiz owned by ownerID.
func (s *SessionService) Create(ctx context.Context, ownerID, quizID int64) (domain.Session, error) {
	if _, err := s.ownedQuiz(ctx, ownerID, quizID); err != nil {
		return domain.Session{}, err
	}

	for i := 0; i < createRetries; i++ {
		pin, err := s.generatePIN(ctx)
		if err != nil {
			return domain.Session{}, err
		}
		session, err := s.sessions.CreateSession(ctx, domain.Session{
			QuizID:    quizID,
			Code:      uuid.NewString(),
			PIN:       pin,
			StartedAt: s.now(),
			IsActive:  true,
		})
		if errors.Is(err, domain.ErrPINTaken) {
			continue
		}
		if err != nil {
			return domain.Session{}, err
		}
		s.log.Info("session created", "session", session.ID, "quiz", quizID, "pin", session.PIN)
		return session, nil
	}
	return domain.Session{}, fmt.Errorf("create session: %w", domain.ErrPINTaken)
}

// generatePIN draws 6-digit PINs until an unused one is found, then falls back to 8 digits.
func (s *SessionService) generatePIN(ctx context.Context) (string, error) {
	for i := 0; i < s.pinAttempts; i++ {
		pin := s.digits(pinDigits)
		exists, err := s.sessions.PINExists(ctx, pin)
		if err != nil {
			return "", err
		}
		if !exists {
			return pin, nil
		}
	}
	return s.digits(fallbackPINDigits), nil
}

func (s *SessionService) digits(n int) string {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte('0' + s.rnd.Intn(10))
	}
	return string(buf)
}

// Get returns a session to the owner of its quiz.
func (s *SessionService) Get(ctx context.Context, ownerID, id int64) (domain.Session, error) {
	return s.ownedSession(ctx, ownerID, id)
}

// Delete drops the session with its participants and answers.
func (s *SessionService) Delete(ctx context.Context, ownerID, id int64) error {
	session, err := s.ownedSession(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.sessions.DeleteSession(ctx, id); err != nil {
		return err
	}
	s.log.Info("session deleted", "session", id, "pin", session.PIN)
	return nil
}

// Start marks the session active and resets its start time.
func (s *SessionService) Start(ctx context.Context, ownerID, sessionID int64) (domain.Session, error) {
	session, err := s.ownedSession(ctx, ownerID, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	session.StartedAt = s.now()
	session.IsActive = true
	session.EndedAt = nil
	if err := s.sessions.UpdateSession(ctx, session); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

// End closes the session.
func (s *SessionService) End(ctx context.Context, ownerID, sessionID int64) (domain.Session, error) {
	session, err := s.ownedSession(ctx, ownerID, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	ended := s.now()
	session.EndedAt = &ended
	session.IsActive = false
	if err := s.sessions.UpdateSession(ctx, session); err != nil {
		return domain.Session{}, err
	}
	s.log.Info("session ended", "session", session.ID, "pin", session.PIN)
	return session, nil
}

// Next returns the requested question of the session's quiz, or the first one by order when
// questionID is zero.
func (s *SessionService) Next(ctx context.Context, ownerID, sessionID, questionID int64) (domain.Question, error) {
	session, err := s.ownedSession(ctx, ownerID, sessionID)
	if err != nil {
		return domain.Question{}, err
	}
	if questionID != 0 {
		question, err := s.quizzes.Question(ctx, questionID)
		if err != nil {
			return domain.Question{}, err
		}
		if question.QuizID != session.QuizID {
			return domain.Question{}, domain.ErrQuestionNotFound
		}
		return question, nil
	}

	quiz, err := s.quizzes.Quiz(ctx, session.QuizID)
	if err != nil {
		return domain.Question{}, err
	}
	if len(quiz.Questions) == 0 {
		return domain.Question{}, fmt.Errorf("quiz has no questions: %w", domain.ErrInvalidInput)
	}
	questions := append([]domain.Question(nil), quiz.Questions...)
	sort.SliceStable(questions, func(i, j int) bool { return questions[i].Order < questions[j].Order })
	return questions[0], nil
}

func (s *SessionService) ownedSession(ctx context.Context, ownerID, sessionID int64) (domain.Session, error) {
	session, err := s.sessions.Session(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if _, err := s.ownedQuiz(ctx, ownerID, session.QuizID); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

func (s *SessionService) ownedQuiz(ctx context.Context, ownerID, quizID int64) (domain.Quiz, error) {
	quiz, err := s.quizzes.Quiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if quiz.OwnerID != ownerID {
		return domain.Quiz{}, domain.ErrForbidden
	}
	return quiz, nil
}

// OwnsSession reports whether userID owns the quiz played in the session with the given PIN.
func (s *SessionService) OwnsSession(ctx context.Context, userID int64, pin string) (bool, error) {
	session, err := s.sessions.SessionByPIN(ctx, pin)
	if err != nil {
		return false, err
	}
	quiz, err := s.quizzes.Quiz(ctx, session.QuizID)
	if err != nil {
		return false, err
	}
	return quiz.OwnerID == userID, nil
}
