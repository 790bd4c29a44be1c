// Package features holds the background-service handlers the hub
// registers on the bus: last-known auth state, the note store, and the
// ping responder. They own payload semantics; the bus stays agnostic.
package features

import (
	"context"
	"sync"

	"github.com/lexiview/bridge/bus"
)

// AuthInfo is the auth payload shared with page contexts.
type AuthInfo struct {
	SignedIn bool   `json:"signed_in"`
	Account  string `json:"account,omitempty"`
}

// AuthState caches the last known auth state so GET_AUTH_STATE can be
// answered even while the upstream identity service is unreachable.
type AuthState struct {
	mu   sync.RWMutex
	info AuthInfo
}

func NewAuthState() *AuthState { return &AuthState{} }

// Current returns the last known auth state.
func (a *AuthState) Current() AuthInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.info
}

// Set replaces the cached state.
func (a *AuthState) Set(info AuthInfo) {
	a.mu.Lock()
	a.info = info
	a.mu.Unlock()
}

// Register wires the auth handlers into the registry and returns the
// combined unregister func.
func (a *AuthState) Register(reg *bus.HandlerRegistry) func() {
	un1 := reg.Register(bus.TypeGetAuthState, func(_ context.Context, _ bus.Message) bus.Message {
		return bus.OK(a.Current())
	})
	un2 := reg.Register(bus.TypeAuthChanged, func(_ context.Context, msg bus.Message) bus.Message {
		var info AuthInfo
		if err := bus.DecodePayload(msg, &info); err != nil {
			return bus.Fail("bad auth payload: %v", err)
		}
		a.Set(info)
		return bus.OK(nil)
	})
	return func() { un1(); un2() }
}
