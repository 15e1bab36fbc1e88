package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/logger"
)

// PresenceStore marks session groups live in Redis while they have members.
// Markers expire after ttl so a crashed instance does not leave them behind.
type PresenceStore struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

func NewPresenceStore(client *redis.Client, ttl time.Duration, log *logger.Logger) *PresenceStore {
	return &PresenceStore{
		client: client,
		ttl:    ttl,
		log:    log.With("component", "presence"),
	}
}

func (s *PresenceStore) GroupOpened(ctx context.Context, pin string) {
	s.mark(ctx, pin)
}

// best-effort liveness marker
func (s *PresenceStore) mark(ctx context.Context, pin string) {
	if err := s.client.Set(ctx, s.key(pin), "1", s.ttl).Err(); err != nil {
		s.log.Warn("presence mark failed", "pin", pin, "error", err)
	}
}

// Refresh re-arms the markers of groups that are still open.
func (s *PresenceStore) Refresh(ctx context.Context, pins []string) {
	for _, pin := range pins {
		s.mark(ctx, pin)
	}
}

// Keepalive refreshes the markers of pins() every interval until ctx is done.
func (s *PresenceStore) Keepalive(ctx context.Context, interval time.Duration, pins func() []string) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx, pins())
		}
	}
}

func (s *PresenceStore) GroupClosed(ctx context.Context, pin string) {
	if err := s.client.Del(ctx, s.key(pin)).Err(); err != nil {
		s.log.Warn("presence clear failed", "pin", pin, "error", err)
	}
}

// Live reports whether any instance currently hosts the group for pin.
func (s *PresenceStore) Live(ctx context.Context, pin string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(pin)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *PresenceStore) key(pin string) string {
	return "quiz:group:" + pin
}
