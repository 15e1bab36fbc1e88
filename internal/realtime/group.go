package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"live-quiz-service/internal/logger"
)

// Member is one live connection that can receive frames.
type Member interface {
	ID() string
	// Send enqueues a frame without blocking; false means it was not accepted.
	Send(payload []byte) bool
}

// GroupObserver is told when a PIN group gains its first member or loses its last one.
type GroupObserver interface {
	GroupOpened(ctx context.Context, pin string)
	GroupClosed(ctx context.Context, pin string)
}

// Fanout carries broadcasts through an external bus; received frames come back through Deliver.
type Fanout interface {
	Publish(ctx context.Context, pin string, payload []byte) error
}

// ErrAlreadyJoined is returned when a connection tries to join a second PIN group.
var ErrAlreadyJoined = errors.New("connection already joined another session group")

type membership struct {
	pin    string
	member Member
}

// Groups maps session PINs to their live connections. A group exists while it has members.
type Groups struct {
	mu      sync.RWMutex
	groups  map[string]map[string]Member
	members map[string]membership

	observer GroupObserver
	fanout   Fanout
	log      *logger.Logger
}

type GroupOption func(*Groups)

// WithObserver registers lifecycle hooks for group open/close.
func WithObserver(o GroupObserver) GroupOption {
	return func(g *Groups) { g.observer = o }
}

// WithFanout routes broadcasts through an external bus instead of delivering locally.
func WithFanout(f Fanout) GroupOption {
	return func(g *Groups) { g.fanout = f }
}

func NewGroups(log *logger.Logger, opts ...GroupOption) *Groups {
	g := &Groups{
		groups:  make(map[string]map[string]Member),
		members: make(map[string]membership),
		log:     log.With("component", "groups"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Join admits m to the group of pin. Rejoining the same group is a no-op.
func (g *Groups) Join(ctx context.Context, pin string, m Member) error {
	g.mu.Lock()
	if existing, ok := g.members[m.ID()]; ok {
		g.mu.Unlock()
		if existing.pin == pin {
			return nil
		}
		return ErrAlreadyJoined
	}
	group, ok := g.groups[pin]
	opened := !ok
	if opened {
		group = make(map[string]Member)
		g.groups[pin] = group
	}
	group[m.ID()] = m
	g.members[m.ID()] = membership{pin: pin, member: m}
	size := len(group)
	g.mu.Unlock()

	g.log.Debug("member joined group", "pin", pin, "member", m.ID(), "size", size)
	if opened && g.observer != nil {
		g.observer.GroupOpened(ctx, pin)
	}
	return nil
}

// Leave removes the member from the group; the group is dropped once empty.
func (g *Groups) Leave(ctx context.Context, pin, memberID string) {
	g.mu.Lock()
	existing, ok := g.members[memberID]
	if !ok || existing.pin != pin {
		g.mu.Unlock()
		return
	}
	delete(g.members, memberID)
	group := g.groups[pin]
	delete(group, memberID)
	closed := len(group) == 0
	if closed {
		delete(g.groups, pin)
	}
	g.mu.Unlock()

	g.log.Debug("member left group", "pin", pin, "member", memberID)
	if closed && g.observer != nil {
		g.observer.GroupClosed(ctx, pin)
	}
}

// Broadcast encodes msg and sends it to every member of the pin group.
func (g *Groups) Broadcast(ctx context.Context, pin string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if g.fanout != nil {
		err := g.fanout.Publish(ctx, pin, payload)
		if err == nil {
			return nil
		}
		g.log.Warn("fanout publish failed, delivering locally", "pin", pin, "error", err)
	}
	g.Deliver(pin, payload)
	return nil
}

// Deliver hands payload to each current member of the pin group and returns how many accepted it.
// A member that cannot take the frame is skipped.
func (g *Groups) Deliver(pin string, payload []byte) int {
	g.mu.RLock()
	targets := make([]Member, 0, len(g.groups[pin]))
	for _, m := range g.groups[pin] {
		targets = append(targets, m)
	}
	g.mu.RUnlock()

	delivered := 0
	for _, m := range targets {
		if m.Send(payload) {
			delivered++
			continue
		}
		g.log.Warn("dropped frame for member", "pin", pin, "member", m.ID())
	}
	return delivered
}

// SendTo encodes msg and sends it to a single joined member.
func (g *Groups) SendTo(memberID string, msg any) bool {
	g.mu.RLock()
	existing, ok := g.members[memberID]
	g.mu.RUnlock()
	if !ok {
		return false
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		g.log.Error("encode frame", "member", memberID, "error", err)
		return false
	}
	return existing.member.Send(payload)
}

// Size reports the number of members currently in the pin group.
func (g *Groups) Size(pin string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.groups[pin])
}

// Live reports whether this instance holds any member for pin.
func (g *Groups) Live(_ context.Context, pin string) (bool, error) {
	return g.Size(pin) > 0, nil
}

// PINs lists the groups that currently have members.
func (g *Groups) PINs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	pins := make([]string, 0, len(g.groups))
	for pin := range g.groups {
		pins = append(pins, pin)
	}
	return pins
}
