// Package hub is the background process side of the bridge: it accepts
// persistent channels from page contexts, serves one-shot calls, and
// fans broadcasts out to every open page.
package hub

import (
	"sync"
	"time"

	"github.com/lexiview/bridge/bus"
	"github.com/lexiview/bridge/core/logx"
)

// HeartbeatInterval is how often clients ping and how often the hub
// sweeps for expired contexts; the eviction window itself is
// configurable.
const HeartbeatInterval = 5 * time.Second

// Context is a connected page context as the hub sees it: the identity
// from its REGISTER handshake plus the outbound frame queue for its
// channel.
type Context struct {
	ID          string
	Kind        string
	CallbackURL string
	LastSeen    time.Time
	Send        chan bus.Envelope

	mu     sync.Mutex
	closed bool
}

// Push queues an envelope for the context's channel writer. It reports
// false when the context is gone or its queue is full; broadcast-grade
// traffic is droppable by contract.
func (c *Context) Push(env bus.Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.Send == nil {
		return false
	}
	select {
	case c.Send <- env:
		return true
	default:
		return false
	}
}

func (c *Context) closeSend() {
	c.mu.Lock()
	if !c.closed && c.Send != nil {
		c.closed = true
		close(c.Send)
	}
	c.mu.Unlock()
}

// Touch records channel activity for prune bookkeeping.
func (c *Context) Touch() {
	c.mu.Lock()
	c.LastSeen = time.Now()
	c.mu.Unlock()
}

func (c *Context) lastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.LastSeen
}

// Registry tracks the currently open page contexts. It is the
// enumeration source for broadcast and is pruned when a context goes
// silent past the heartbeat window.
type Registry struct {
	mu       sync.RWMutex
	contexts map[string]*Context
}

func NewRegistry() *Registry {
	return &Registry{contexts: make(map[string]*Context)}
}

func (r *Registry) Add(c *Context) {
	r.mu.Lock()
	if old, ok := r.contexts[c.ID]; ok {
		old.closeSend()
	}
	r.contexts[c.ID] = c
	r.mu.Unlock()
	metricConnectedContexts.Set(float64(r.Count()))
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	if c, ok := r.contexts[id]; ok {
		delete(r.contexts, id)
		c.closeSend()
	}
	r.mu.Unlock()
	metricConnectedContexts.Set(float64(r.Count()))
}

func (r *Registry) Get(id string) (*Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contexts[id]
	return c, ok
}

// List returns a snapshot of every open context.
func (r *Registry) List() []*Context {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Context, 0, len(r.contexts))
	for _, c := range r.contexts {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contexts)
}

// PruneExpired evicts contexts silent for longer than maxAge. A page
// closed without a clean websocket shutdown goes away here.
func (r *Registry) PruneExpired(maxAge time.Duration) {
	r.mu.Lock()
	for id, c := range r.contexts {
		if time.Since(c.lastSeen()) > maxAge {
			delete(r.contexts, id)
			c.closeSend()
			logx.Log.Info().Str("context_id", id).Str("reason", "heartbeat_expired").Msg("evicted")
		}
	}
	r.mu.Unlock()
	metricConnectedContexts.Set(float64(r.Count()))
}
