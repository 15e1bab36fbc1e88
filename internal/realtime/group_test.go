package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"live-quiz-service/internal/logger"
)

type fakeMember struct {
	id     string
	mu     sync.Mutex
	frames [][]byte
	refuse bool
}

func newFakeMember(id string) *fakeMember {
	return &fakeMember{id: id}
}

func (m *fakeMember) ID() string { return m.id }

func (m *fakeMember) Send(payload []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refuse {
		return false
	}
	m.frames = append(m.frames, payload)
	return true
}

func (m *fakeMember) decoded(t *testing.T) []map[string]any {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]any, 0, len(m.frames))
	for _, f := range m.frames {
		var v map[string]any
		if err := json.Unmarshal(f, &v); err != nil {
			t.Fatalf("decode frame %s: %v", f, err)
		}
		out = append(out, v)
	}
	return out
}

func (m *fakeMember) last(t *testing.T) map[string]any {
	t.Helper()
	frames := m.decoded(t)
	if len(frames) == 0 {
		t.Fatalf("member %s received nothing", m.id)
	}
	return frames[len(frames)-1]
}

type recordingObserver struct {
	mu     sync.Mutex
	opened []string
	closed []string
}

func (o *recordingObserver) GroupOpened(_ context.Context, pin string) {
	o.mu.Lock()
	o.opened = append(o.opened, pin)
	o.mu.Unlock()
}

func (o *recordingObserver) GroupClosed(_ context.Context, pin string) {
	o.mu.Lock()
	o.closed = append(o.closed, pin)
	o.mu.Unlock()
}

type failingFanout struct{ calls int }

func (f *failingFanout) Publish(context.Context, string, []byte) error {
	f.calls++
	return errors.New("bus down")
}

func TestGroupsLifecycle(t *testing.T) {
	ctx := context.Background()
	observer := &recordingObserver{}
	groups := NewGroups(logger.Nop(), WithObserver(observer))

	a, b := newFakeMember("a"), newFakeMember("b")
	if err := groups.Join(ctx, "111111", a); err != nil {
		t.Fatalf("join a: %v", err)
	}
	if err := groups.Join(ctx, "111111", b); err != nil {
		t.Fatalf("join b: %v", err)
	}
	if err := groups.Join(ctx, "111111", a); err != nil {
		t.Fatalf("rejoin same pin should be a no-op: %v", err)
	}
	if err := groups.Join(ctx, "222222", a); !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("expected ErrAlreadyJoined, got %v", err)
	}
	if got := groups.Size("111111"); got != 2 {
		t.Fatalf("expected 2 members, got %d", got)
	}

	groups.Leave(ctx, "111111", "a")
	if len(observer.closed) != 0 {
		t.Fatalf("group closed while a member remains")
	}
	groups.Leave(ctx, "111111", "b")
	groups.Leave(ctx, "111111", "b")

	if got := groups.Size("111111"); got != 0 {
		t.Fatalf("expected empty group, got %d", got)
	}
	if len(observer.opened) != 1 || len(observer.closed) != 1 {
		t.Fatalf("expected one open and one close, got %v / %v", observer.opened, observer.closed)
	}
	if live, _ := groups.Live(ctx, "111111"); live {
		t.Fatalf("empty group must not be live")
	}
	if err := groups.Join(ctx, "222222", a); err != nil {
		t.Fatalf("member a should be forgotten, got %v", err)
	}
	if live, _ := groups.Live(ctx, "222222"); !live {
		t.Fatalf("expected 222222 live")
	}
	if pins := groups.PINs(); len(pins) != 1 || pins[0] != "222222" {
		t.Fatalf("expected only 222222 open, got %v", pins)
	}
}

func TestBroadcastIsBestEffort(t *testing.T) {
	ctx := context.Background()
	groups := NewGroups(logger.Nop())

	ok1, stuck, ok2 := newFakeMember("1"), newFakeMember("2"), newFakeMember("3")
	stuck.refuse = true
	other := newFakeMember("other")
	for _, m := range []*fakeMember{ok1, stuck, ok2} {
		if err := groups.Join(ctx, "424242", m); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	if err := groups.Join(ctx, "999999", other); err != nil {
		t.Fatalf("join other: %v", err)
	}

	if err := groups.Broadcast(ctx, "424242", typeFrame{Type: "hello"}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	for _, m := range []*fakeMember{ok1, ok2} {
		if got := m.last(t)["type"]; got != "hello" {
			t.Fatalf("member %s got %v", m.id, got)
		}
	}
	if len(other.decoded(t)) != 0 {
		t.Fatalf("broadcast leaked into another group")
	}
	if n := groups.Deliver("424242", []byte(`{}`)); n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}
}

func TestBroadcastFallsBackWhenFanoutFails(t *testing.T) {
	ctx := context.Background()
	fanout := &failingFanout{}
	groups := NewGroups(logger.Nop(), WithFanout(fanout))
	m := newFakeMember("m")
	if err := groups.Join(ctx, "123456", m); err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := groups.Broadcast(ctx, "123456", typeFrame{Type: "x"}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if fanout.calls != 1 {
		t.Fatalf("expected one publish attempt, got %d", fanout.calls)
	}
	if got := m.last(t)["type"]; got != "x" {
		t.Fatalf("expected local delivery, got %v", got)
	}
}

func TestSendToRequiresMembership(t *testing.T) {
	groups := NewGroups(logger.Nop())
	if groups.SendTo("ghost", pongFrame{Action: "pong"}) {
		t.Fatalf("send to unknown member should fail")
	}
}
