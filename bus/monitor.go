package bus

import (
	"context"
	"sync"
	"time"

	"github.com/lexiview/bridge/core/logx"
	"github.com/lexiview/bridge/core/reconnect"
)

// State describes persistent-channel health. It is owned solely by the
// Monitor; everything else only observes it.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	// StateFailed is terminal: the retry budget is spent and only an
	// explicit Reset (typically a user-driven reload) leaves it.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is the lifecycle signal emitted on every transition into
// DISCONNECTED, CONNECTED or FAILED, so dependent UI can disable and
// re-enable itself without polling.
type Event struct {
	State   State
	Attempt int
	Err     error
}

// RecoveryStore persists a "recovery needed" flag across a full
// context restart. The contract is opaque get/set; the Monitor is its
// only writer.
type RecoveryStore interface {
	MarkNeeded(ctx context.Context) error
	Clear(ctx context.Context) error
	Needed(ctx context.Context) (bool, error)
}

// Dialer opens a fresh persistent channel.
type Dialer func(ctx context.Context) (Channel, error)

// Monitor tracks persistent-channel health, retries connection
// establishment with a fixed delay and a bounded attempt budget, and
// emits lifecycle events on transitions. Concurrent reconnect triggers
// coalesce into the single running attempt; only the Run loop ever
// dials.
type Monitor struct {
	dial        Dialer
	delay       time.Duration
	maxAttempts int
	store       RecoveryStore

	mu       sync.Mutex
	state    State
	attempts int
	current  Channel
	subs     map[int]func(Event)
	nextSub  int
	resetCh  chan struct{}
}

// MonitorOptions configures a Monitor. Zero values fall back to the
// reconnect package defaults.
type MonitorOptions struct {
	Dial        Dialer
	Delay       time.Duration
	MaxAttempts int
	Store       RecoveryStore
}

func NewMonitor(opts MonitorOptions) *Monitor {
	if opts.Delay <= 0 {
		opts.Delay = reconnect.DefaultDelay
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = reconnect.DefaultMaxAttempts
	}
	return &Monitor{
		dial:        opts.Dial,
		delay:       opts.Delay,
		maxAttempts: opts.MaxAttempts,
		store:       opts.Store,
		state:       StateDisconnected,
		subs:        make(map[int]func(Event)),
		resetCh:     make(chan struct{}, 1),
	}
}

// State returns the current connection state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Channel returns the live channel, or nil unless CONNECTED.
func (m *Monitor) Channel() Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected {
		return nil
	}
	return m.current
}

// Subscribe registers a lifecycle listener and returns its removal
// func. Listeners run synchronously on the Monitor goroutine and must
// not block.
func (m *Monitor) Subscribe(fn func(Event)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Reset clears the terminal FAILED state, zeroes the retry counter and
// wakes the Run loop for a fresh connect attempt. It is the explicit
// external trigger the failure state requires.
func (m *Monitor) Reset(ctx context.Context) {
	m.mu.Lock()
	m.attempts = 0
	if m.state == StateFailed {
		m.state = StateDisconnected
	}
	m.mu.Unlock()
	if m.store != nil {
		if err := m.store.Clear(ctx); err != nil {
			logx.Log.Warn().Err(err).Msg("clear recovery flag")
		}
	}
	select {
	case m.resetCh <- struct{}{}:
	default:
	}
}

// TriggerReconnect closes the live channel so the Run loop cycles.
// Calls while a reconnect is already in progress are no-ops; triggers
// coalesce instead of stacking.
func (m *Monitor) TriggerReconnect() {
	m.mu.Lock()
	ch := m.current
	connected := m.state == StateConnected
	m.mu.Unlock()
	if connected && ch != nil {
		_ = ch.Close()
	}
}

// Run drives the state machine until ctx ends:
// DISCONNECTED -> CONNECTING -> CONNECTED -> (unexpected close) ->
// DISCONNECTED, with a fixed delay between attempts. Once the attempt
// budget is spent the monitor enters FAILED, persists the recovery
// flag, and waits for Reset.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if m.State() == StateFailed {
			select {
			case <-m.resetCh:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		m.transition(StateConnecting, 0, nil)
		ch, err := m.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if m.recordFailure(ctx, err) {
				continue
			}
			select {
			case <-time.After(m.delay):
			case <-m.resetCh:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		m.mu.Lock()
		m.attempts = 0
		m.current = ch
		m.mu.Unlock()
		m.transition(StateConnected, 0, nil)
		if m.store != nil {
			if err := m.store.Clear(ctx); err != nil {
				logx.Log.Warn().Err(err).Msg("clear recovery flag")
			}
		}

		runErr := ch.Run(ctx)
		_ = ch.Close()
		m.mu.Lock()
		m.current = nil
		m.mu.Unlock()
		if ctx.Err() != nil {
			m.transition(StateDisconnected, 0, runErr)
			return ctx.Err()
		}
		if m.recordFailure(ctx, runErr) {
			continue
		}
		select {
		case <-time.After(m.delay):
		case <-m.resetCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// recordFailure bumps the retry counter, emits the DISCONNECTED or
// FAILED event, and reports whether the loop should skip its delay
// (true only for the transition into FAILED, which waits on Reset
// instead).
func (m *Monitor) recordFailure(ctx context.Context, cause error) bool {
	m.mu.Lock()
	m.attempts++
	attempt := m.attempts
	exhausted := reconnect.Exhausted(attempt, m.maxAttempts)
	m.mu.Unlock()
	if exhausted {
		m.transition(StateFailed, attempt, cause)
		if m.store != nil {
			if err := m.store.MarkNeeded(ctx); err != nil {
				logx.Log.Warn().Err(err).Msg("persist recovery flag")
			}
		}
		logx.Log.Error().Err(cause).Int("attempts", attempt).Msg("channel retry budget exhausted")
		return true
	}
	m.transition(StateDisconnected, attempt, cause)
	return false
}

func (m *Monitor) transition(to State, attempt int, err error) {
	m.mu.Lock()
	from := m.state
	m.state = to
	fns := make([]func(Event), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	if from == to {
		return
	}
	// CONNECTING is an internal hop; observers only care about loss,
	// recovery and terminal failure.
	if to == StateConnecting {
		return
	}
	ev := Event{State: to, Attempt: attempt, Err: err}
	for _, fn := range fns {
		fn(ev)
	}
}
