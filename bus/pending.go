package bus

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrRequestTimeout reports that a correlated request saw no response
// within the channel deadline. The bus treats it as a cue to fall back
// to the one-shot transport, not as a hard failure.
var ErrRequestTimeout = errors.New("bus: request timed out on persistent channel")

// ErrChannelClosed reports that the persistent channel went away while
// requests were still in flight.
var ErrChannelClosed = errors.New("bus: persistent channel closed")

// pendingMap correlates outgoing envelopes with their replies. Each
// outstanding request owns a buffered channel so a late resolver never
// blocks, and every id is resolved or dropped exactly once.
type pendingMap struct {
	mu      sync.Mutex
	waiting map[string]chan Envelope
	closed  bool
}

func newPendingMap() *pendingMap {
	return &pendingMap{waiting: make(map[string]chan Envelope)}
}

// add registers a new pending request and returns its correlation id
// and reply channel. The id is a v4 uuid, so collisions between
// outstanding requests are ruled out by construction. A nil channel
// means the map has already been aborted.
func (p *pendingMap) add() (string, chan Envelope) {
	id := uuid.NewString()
	ch := make(chan Envelope, 1)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return id, nil
	}
	p.waiting[id] = ch
	return id, ch
}

// resolve delivers env to the waiter registered under id and removes
// the entry. It reports whether a waiter existed; a reply for an id
// that already timed out is simply dropped.
func (p *pendingMap) resolve(id string, env Envelope) bool {
	p.mu.Lock()
	ch, ok := p.waiting[id]
	if ok {
		delete(p.waiting, id)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	ch <- env
	return true
}

// drop forgets a pending request without resolving it (timeout path).
func (p *pendingMap) drop(id string) {
	p.mu.Lock()
	delete(p.waiting, id)
	p.mu.Unlock()
}

// abortAll wakes every waiter with a closed channel and refuses new
// registrations. Called when the read loop exits so in-flight sends
// fall back immediately instead of sitting out their full timeout.
func (p *pendingMap) abortAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for id, ch := range p.waiting {
		close(ch)
		delete(p.waiting, id)
	}
}

func (p *pendingMap) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiting)
}
