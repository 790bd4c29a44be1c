package bus

import (
	"context"
	"sync"
)

// Handler processes one inbound message and returns the reply. The bus
// never interprets payload semantics; that is the handler's business.
type Handler func(ctx context.Context, msg Message) Message

type handlerEntry struct {
	fn Handler
}

// HandlerRegistry maps message types to the local handlers that process
// them. Multiple handlers per type are allowed so independent features
// can react to the same signal (several panels watch AUTH_CHANGED).
// The set is only mutated through Register and the returned unregister
// funcs, never by dispatch itself.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string][]*handlerEntry
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string][]*handlerEntry)}
}

// Register adds a handler for the given message type and returns a func
// that removes exactly that registration. Unregistering twice is a
// no-op.
func (r *HandlerRegistry) Register(msgType string, h Handler) func() {
	e := &handlerEntry{fn: h}
	r.mu.Lock()
	r.handlers[msgType] = append(r.handlers[msgType], e)
	r.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			list := r.handlers[msgType]
			for i, cur := range list {
				if cur == e {
					r.handlers[msgType] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
			if len(r.handlers[msgType]) == 0 {
				delete(r.handlers, msgType)
			}
			r.mu.Unlock()
		})
	}
}

// HandlerCount returns how many handlers are registered for msgType.
func (r *HandlerRegistry) HandlerCount(msgType string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[msgType])
}

// Dispatch invokes every handler registered for msg.Type exactly once,
// in registration order. The reply is the first handler result with
// Success set; if no handler succeeds the last failure is returned.
// With no handlers at all it returns a structured failure naming the
// type, never a panic.
func (r *HandlerRegistry) Dispatch(ctx context.Context, msg Message) Message {
	r.mu.RLock()
	list := r.handlers[msg.Type]
	snapshot := make([]*handlerEntry, len(list))
	copy(snapshot, list)
	r.mu.RUnlock()

	if len(snapshot) == 0 {
		return Fail("no handler for %s", msg.Type)
	}
	var picked *Message
	var last Message
	for _, e := range snapshot {
		res := e.fn(ctx, msg)
		last = res
		if res.Success && picked == nil {
			res := res
			picked = &res
		}
	}
	if picked != nil {
		return *picked
	}
	return last
}
