package app

import (
	"context"
	"fmt"
	"time"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/logger"
)

// pointsPerCorrect is the fixed score unit for a correct answer.
const pointsPerCorrect = 1

// AnswerOutcome summarizes one recorded submission.
type AnswerOutcome struct {
	Accepted   bool
	Created    bool
	Correct    bool
	ScoreDelta int
	Score      int
	Answer     domain.Answer
}

// Settle replaces the prior answer (if any) with choice and returns the score delta implied by the
// correctness transition. Only the latest choice per question counts.
func Settle(prior *domain.Answer, choice domain.Choice, now time.Time) (domain.Answer, int) {
	next := domain.Answer{
		QuestionID: choice.QuestionID,
		ChoiceID:   choice.ID,
		IsCorrect:  choice.IsCorrect,
		AnsweredAt: now,
	}
	if prior == nil {
		if choice.IsCorrect {
			return next, pointsPerCorrect
		}
		return next, 0
	}

	next.ID = prior.ID
	next.ParticipantID = prior.ParticipantID
	next.AnsweredAt = prior.AnsweredAt
	switch {
	case choice.IsCorrect && !prior.IsCorrect:
		return next, pointsPerCorrect
	case !choice.IsCorrect && prior.IsCorrect:
		return next, -pointsPerCorrect
	default:
		return next, 0
	}
}

// ApplyDelta adds delta to score with a floor of zero.
func ApplyDelta(score, delta int) int {
	score += delta
	if score < 0 {
		return 0
	}
	return score
}

// Ledger records answers and keeps participant scores in step with them.
type Ledger struct {
	participants ParticipantStore
	quizzes      QuizStore
	answers      AnswerStore
	locks        *keyedMutex
	now          func() time.Time
	log          *logger.Logger
}

func NewLedger(registry Registry, log *logger.Logger) *Ledger {
	return NewLedgerWithClock(registry, log, time.Now)
}

// NewLedgerWithClock is test-only for deterministic timestamps.
func NewLedgerWithClock(registry Registry, log *logger.Logger, now func() time.Time) *Ledger {
	return &Ledger{
		participants: registry,
		quizzes:      registry,
		answers:      registry,
		locks:        newKeyedMutex(),
		now:          now,
		log:          log.With("component", "ledger"),
	}
}

// RecordAnswer stores the participant's choice for the choice's question and adjusts the score.
// Submissions for the same (participant, question) are serialized.
func (l *Ledger) RecordAnswer(ctx context.Context, participantID, choiceID int64) (AnswerOutcome, error) {
	participant, err := l.participants.Participant(ctx, participantID)
	if err != nil {
		return AnswerOutcome{}, err
	}
	choice, err := l.quizzes.Choice(ctx, choiceID)
	if err != nil {
		return AnswerOutcome{}, err
	}

	unlock := l.locks.Lock(fmt.Sprintf("%d:%d", participant.ID, choice.QuestionID))
	defer unlock()

	var out AnswerOutcome
	now := l.now()
	answer, err := l.answers.SettleAnswer(ctx, participant.ID, choice.QuestionID, func(prior *domain.Answer, score int) (domain.Answer, int) {
		next, delta := Settle(prior, choice, now)
		next.ParticipantID = participant.ID
		newScore := ApplyDelta(score, delta)

		out.Created = prior == nil
		out.Correct = next.IsCorrect
		out.ScoreDelta = newScore - score
		out.Score = newScore
		return next, newScore
	})
	if err != nil {
		return AnswerOutcome{}, fmt.Errorf("settle answer: %w", err)
	}
	out.Accepted = true
	out.Answer = answer

	l.log.Debug("answer recorded",
		"participant", participant.ID,
		"question", choice.QuestionID,
		"choice", choice.ID,
		"correct", out.Correct,
		"delta", out.ScoreDelta,
		"score", out.Score,
	)
	return out, nil
}
