package app

import (
	"context"
	"errors"
	"sort"

	"live-quiz-service/internal/domain"
)

// ScoreboardBuilder derives the ranked view of a session.
type ScoreboardBuilder struct {
	sessions     SessionStore
	participants ParticipantStore
}

func NewScoreboardBuilder(registry Registry) *ScoreboardBuilder {
	return &ScoreboardBuilder{sessions: registry, participants: registry}
}

// ForSession returns the scoreboard of a session; a missing session yields an empty board.
func (b *ScoreboardBuilder) ForSession(ctx context.Context, sessionID int64) ([]domain.ScoreEntry, error) {
	if _, err := b.sessions.Session(ctx, sessionID); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return []domain.ScoreEntry{}, nil
		}
		return nil, err
	}
	return b.build(ctx, sessionID)
}

// ForPIN resolves the session by PIN and returns its scoreboard.
func (b *ScoreboardBuilder) ForPIN(ctx context.Context, pin string) ([]domain.ScoreEntry, error) {
	session, err := b.sessions.SessionByPIN(ctx, pin)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return []domain.ScoreEntry{}, nil
		}
		return nil, err
	}
	return b.build(ctx, session.ID)
}

func (b *ScoreboardBuilder) build(ctx context.Context, sessionID int64) ([]domain.ScoreEntry, error) {
	participants, err := b.participants.Participants(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return Rank(participants), nil
}

// Rank orders participants by score descending; ties go to the earlier joiner, then the lower id.
func Rank(participants []domain.Participant) []domain.ScoreEntry {
	ordered := make([]domain.Participant, len(participants))
	copy(ordered, participants)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Score != ordered[j].Score {
			return ordered[i].Score > ordered[j].Score
		}
		if !ordered[i].JoinedAt.Equal(ordered[j].JoinedAt) {
			return ordered[i].JoinedAt.Before(ordered[j].JoinedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	entries := make([]domain.ScoreEntry, 0, len(ordered))
	for _, p := range ordered {
		entries = append(entries, domain.ScoreEntry{
			ParticipantID: p.ID,
			Name:          p.Name,
			Score:         p.Score,
		})
	}
	return entries
}
