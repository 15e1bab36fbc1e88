package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/logger"
)

const maxNameLength = 100

// JoinService admits participants to a session by PIN, renaming on collisions.
type JoinService struct {
	sessions     SessionStore
	participants ParticipantStore
	attempts     int
	log          *logger.Logger
}

func NewJoinService(registry Registry, attempts int, log *logger.Logger) *JoinService {
	if attempts <= 0 {
		attempts = 100
	}
	return &JoinService{
		sessions:     registry,
		participants: registry,
		attempts:     attempts,
		log:          log.With("component", "join"),
	}
}

// Join creates a participant named name in the session with the given PIN. A taken name is
// retried as name_2, name_3, ... up to the attempt cap.
func (j *JoinService) Join(ctx context.Context, pin, name string) (domain.Participant, domain.Session, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return domain.Participant{}, domain.Session{}, fmt.Errorf("name must be 1-%d characters: %w", maxNameLength, domain.ErrInvalidInput)
	}
	session, err := j.sessions.SessionByPIN(ctx, strings.TrimSpace(pin))
	if err != nil {
		return domain.Participant{}, domain.Session{}, err
	}

	for attempt := 1; attempt <= j.attempts; attempt++ {
		candidate := name
		if attempt > 1 {
			candidate = suffixed(name, attempt)
		}
		participant, err := j.participants.CreateParticipant(ctx, session.ID, candidate)
		if errors.Is(err, domain.ErrDuplicateName) {
			continue
		}
		if err != nil {
			return domain.Participant{}, domain.Session{}, err
		}
		j.log.Info("participant joined", "session", session.ID, "participant", participant.ID, "name", participant.Name)
		return participant, session, nil
	}
	return domain.Participant{}, domain.Session{}, domain.ErrNameExhausted
}

// suffixed appends _n to name, trimming the base so the result stays within maxNameLength runes.
func suffixed(name string, n int) string {
	suffix := fmt.Sprintf("_%d", n)
	base := []rune(name)
	if keep := maxNameLength - utf8.RuneCountInString(suffix); len(base) > keep {
		base = base[:keep]
	}
	return string(base) + suffix
}
