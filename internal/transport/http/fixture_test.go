package http

import (
	"context"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/logger"
	"live-quiz-service/internal/realtime"
)

const (
	testPIN    = "482913"
	ownerID    = 42
	strangerID = 7
)

type fixture struct {
	router   *gin.Engine
	registry *memory.Registry
	tokens   *auth.Verifier
	quiz     domain.Quiz
	question domain.Question
	session  domain.Session
	alice    domain.Participant
	wrong    int64
	right    int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	log := logger.Nop()
	registry := memory.NewRegistry()

	quiz, err := registry.CreateQuiz(ctx, domain.Quiz{Title: "Math", OwnerID: ownerID})
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	question, err := registry.CreateQuestion(ctx, domain.Question{
		QuizID:    quiz.ID,
		Text:      "2+2?",
		TimeLimit: 30,
		Choices:   []domain.Choice{{Text: "3"}, {Text: "4", IsCorrect: true}},
	})
	if err != nil {
		t.Fatalf("create question: %v", err)
	}
	session, err := registry.CreateSession(ctx, domain.Session{QuizID: quiz.ID, PIN: testPIN, Code: "c0de", IsActive: true, StartedAt: time.Now()})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	alice, err := registry.CreateParticipant(ctx, session.ID, "Alice")
	if err != nil {
		t.Fatalf("create participant: %v", err)
	}

	tokens := auth.NewVerifier("test-secret", "live-quiz")
	questions := memory.NewQuestionCache(registry, time.Minute)
	ledger := app.NewLedger(registry, log)
	scoreboards := app.NewScoreboardBuilder(registry)
	sessions := app.NewSessionService(registry, 10, log)
	groups := realtime.NewGroups(log)

	engine := realtime.NewEngine(realtime.EngineDeps{
		Groups:      groups,
		Sessions:    registry,
		Ledger:      ledger,
		Scoreboards: scoreboards,
		Ownership:   sessions,
		Questions:   questions,
		Tokens:      tokens,
		Logger:      log,
	})
	router := NewRouter(RouterConfig{
		WS: NewWSHandler(engine, 16, time.Minute, log),
		API: NewAPIHandler(
			app.NewQuizService(registry, questions, log),
			sessions,
			app.NewJoinService(registry, 100, log),
			ledger,
			scoreboards,
			groups,
			log,
		),
		Tokens: tokens,
	})

	return &fixture{
		router:   router,
		registry: registry,
		tokens:   tokens,
		quiz:     quiz,
		question: question,
		session:  session,
		alice:    alice,
		wrong:    question.Choices[0].ID,
		right:    question.Choices[1].ID,
	}
}

func (f *fixture) token(t *testing.T, userID int64) string {
	t.Helper()
	token, err := f.tokens.Issue(userID, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}
