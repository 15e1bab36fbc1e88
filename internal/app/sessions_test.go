package app_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/logger"
)

func nopLog() *logger.Logger { return logger.Nop() }

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func TestCreateSessionAssignsPIN(t *testing.T) {
	ctx := context.Background()
	f := newPlayFixture(t)
	sessions := app.NewSessionService(f.registry, 10, nopLog())

	session, err := sessions.Create(ctx, 42, f.quiz.ID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(session.PIN) != 6 || !isDigits(session.PIN) {
		t.Fatalf("expected 6 digit pin, got %q", session.PIN)
	}
	if session.Code == "" || !session.IsActive || session.StartedAt.IsZero() {
		t.Fatalf("unexpected session %+v", session)
	}
	if _, err := sessions.Create(ctx, 7, f.quiz.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-owner, got %v", err)
	}
	if _, err := sessions.Create(ctx, 42, 9999); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestCreateSessionFallsBackToLongPIN(t *testing.T) {
	ctx := context.Background()
	f := newPlayFixture(t)

	first, err := app.NewSessionServiceWithSource(f.registry, 1, nopLog(), rand.NewSource(7)).Create(ctx, 42, f.quiz.ID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// same seed draws the same 6 digit pin, which is now taken
	second, err := app.NewSessionServiceWithSource(f.registry, 1, nopLog(), rand.NewSource(7)).Create(ctx, 42, f.quiz.ID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(first.PIN) != 6 || len(second.PIN) != 8 || !isDigits(second.PIN) {
		t.Fatalf("expected fallback to 8 digits, got %q then %q", first.PIN, second.PIN)
	}
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newPlayFixture(t)
	sessions := app.NewSessionService(f.registry, 10, nopLog())

	ended, err := sessions.End(ctx, 42, f.session.ID)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended.IsActive || ended.EndedAt == nil {
		t.Fatalf("expected ended session, got %+v", ended)
	}

	started, err := sessions.Start(ctx, 42, f.session.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !started.IsActive || started.EndedAt != nil {
		t.Fatalf("expected active session, got %+v", started)
	}
	stored, _ := sessions.Get(ctx, 42, f.session.ID)
	if stored.PIN != f.session.PIN || !stored.IsActive {
		t.Fatalf("update not persisted: %+v", stored)
	}

	if _, err := sessions.End(ctx, 7, f.session.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := sessions.Get(ctx, 7, f.session.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden on get, got %v", err)
	}
}

func TestSessionDelete(t *testing.T) {
	ctx := context.Background()
	f := newPlayFixture(t)
	sessions := app.NewSessionService(f.registry, 10, nopLog())

	if err := sessions.Delete(ctx, 7, f.session.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := sessions.Delete(ctx, 42, f.session.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.registry.SessionByPIN(ctx, f.session.PIN); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session gone, got %v", err)
	}
	if _, err := f.registry.Participant(ctx, f.alice.ID); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected participants to cascade, got %v", err)
	}
}

func TestSessionNextQuestion(t *testing.T) {
	ctx := context.Background()
	f := newPlayFixture(t)
	sessions := app.NewSessionService(f.registry, 10, nopLog())

	earlier, err := f.registry.CreateQuestion(ctx, domain.Question{QuizID: f.quiz.ID, Text: "1+1?", Order: -1, TimeLimit: 30})
	if err != nil {
		t.Fatalf("create question: %v", err)
	}

	first, err := sessions.Next(ctx, 42, f.session.ID, 0)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if first.ID != earlier.ID {
		t.Fatalf("expected lowest order question, got %+v", first)
	}

	picked, err := sessions.Next(ctx, 42, f.session.ID, f.question.ID)
	if err != nil || picked.ID != f.question.ID {
		t.Fatalf("expected requested question, got %+v %v", picked, err)
	}

	other, _ := f.registry.CreateQuiz(ctx, domain.Quiz{Title: "Other", OwnerID: 42})
	foreign, _ := f.registry.CreateQuestion(ctx, domain.Question{QuizID: other.ID, Text: "?", TimeLimit: 30})
	if _, err := sessions.Next(ctx, 42, f.session.ID, foreign.ID); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound for foreign question, got %v", err)
	}
}

func TestOwnsSession(t *testing.T) {
	ctx := context.Background()
	f := newPlayFixture(t)
	sessions := app.NewSessionService(f.registry, 10, nopLog())

	if owns, err := sessions.OwnsSession(ctx, 42, f.session.PIN); err != nil || !owns {
		t.Fatalf("expected owner, got %v %v", owns, err)
	}
	if owns, _ := sessions.OwnsSession(ctx, 7, f.session.PIN); owns {
		t.Fatalf("stranger must not own the session")
	}
	if _, err := sessions.OwnsSession(ctx, 42, "000000"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
