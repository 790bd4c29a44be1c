package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeChannel struct {
	done chan struct{}
	once sync.Once
}

func newFakeChannel() *fakeChannel { return &fakeChannel{done: make(chan struct{})} }

func (f *fakeChannel) Send(context.Context, Message) (Message, error) { return OK(nil), nil }

func (f *fakeChannel) Run(ctx context.Context) error {
	select {
	case <-f.done:
		return errors.New("connection dropped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeChannel) Close() error {
	f.once.Do(func() { close(f.done) })
	return nil
}

type memStore struct {
	mu     sync.Mutex
	needed bool
}

func (s *memStore) MarkNeeded(context.Context) error {
	s.mu.Lock()
	s.needed = true
	s.mu.Unlock()
	return nil
}

func (s *memStore) Clear(context.Context) error {
	s.mu.Lock()
	s.needed = false
	s.mu.Unlock()
	return nil
}

func (s *memStore) Needed(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.needed, nil
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestMonitorBoundedRetries(t *testing.T) {
	var dials atomic.Int32
	store := &memStore{}
	m := NewMonitor(MonitorOptions{
		Dial: func(context.Context) (Channel, error) {
			dials.Add(1)
			return nil, errors.New("refused")
		},
		Delay:       time.Millisecond,
		MaxAttempts: 3,
		Store:       store,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()

	waitFor(t, func() bool { return m.State() == StateFailed }, "failed state")
	if got := dials.Load(); got != 3 {
		t.Fatalf("dial attempts = %d; want 3", got)
	}
	// No further automatic attempts after the budget is spent.
	time.Sleep(20 * time.Millisecond)
	if got := dials.Load(); got != 3 {
		t.Fatalf("dials after failure = %d; want 3", got)
	}
	if needed, _ := store.Needed(ctx); !needed {
		t.Fatal("recovery flag not persisted on terminal failure")
	}
}

func TestMonitorResetClearsFailure(t *testing.T) {
	var dials atomic.Int32
	var allow atomic.Bool
	store := &memStore{}
	m := NewMonitor(MonitorOptions{
		Dial: func(context.Context) (Channel, error) {
			dials.Add(1)
			if !allow.Load() {
				return nil, errors.New("refused")
			}
			return newFakeChannel(), nil
		},
		Delay:       time.Millisecond,
		MaxAttempts: 2,
		Store:       store,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()

	waitFor(t, func() bool { return m.State() == StateFailed }, "failed state")
	allow.Store(true)
	m.Reset(ctx)
	waitFor(t, func() bool { return m.State() == StateConnected }, "connected after reset")
	if needed, _ := store.Needed(ctx); needed {
		t.Fatal("recovery flag should clear on reset")
	}
}

func TestMonitorLifecycleEvents(t *testing.T) {
	ch := newFakeChannel()
	first := make(chan Channel, 1)
	first <- ch
	m := NewMonitor(MonitorOptions{
		Dial: func(context.Context) (Channel, error) {
			select {
			case c := <-first:
				return c, nil
			default:
				return nil, errors.New("refused")
			}
		},
		Delay:       time.Millisecond,
		MaxAttempts: 2,
	})
	events := make(chan Event, 16)
	unsub := m.Subscribe(func(ev Event) { events <- ev })
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()

	expect := func(want State) Event {
		t.Helper()
		select {
		case ev := <-events:
			if ev.State != want {
				t.Fatalf("event state = %s; want %s", ev.State, want)
			}
			return ev
		case <-time.After(2 * time.Second):
			t.Fatalf("no %s event", want)
			return Event{}
		}
	}

	expect(StateConnected)
	_ = ch.Close() // unexpected close
	ev := expect(StateDisconnected)
	if ev.Attempt != 1 {
		t.Fatalf("attempt = %d; want 1", ev.Attempt)
	}
	expect(StateFailed)
}

func TestMonitorChannelOnlyWhenConnected(t *testing.T) {
	m := NewMonitor(MonitorOptions{
		Dial: func(context.Context) (Channel, error) { return nil, errors.New("refused") },
	})
	if m.Channel() != nil {
		t.Fatal("Channel() should be nil while disconnected")
	}
}

func TestMonitorConnectedClearsRecoveryFlag(t *testing.T) {
	store := &memStore{}
	_ = store.MarkNeeded(context.Background())
	m := NewMonitor(MonitorOptions{
		Dial:  func(context.Context) (Channel, error) { return newFakeChannel(), nil },
		Delay: time.Millisecond,
		Store: store,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()
	waitFor(t, func() bool { return m.State() == StateConnected }, "connected")
	waitFor(t, func() bool { needed, _ := store.Needed(ctx); return !needed }, "flag cleared")
}
