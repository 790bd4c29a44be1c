package features

import (
	"context"

	"github.com/lexiview/bridge/bus"
)

// RegisterPing answers correlated PING requests. Bare channel
// heartbeats never reach the registry; this responds to the probes UI
// surfaces use to check the hub is alive end to end.
func RegisterPing(reg *bus.HandlerRegistry) func() {
	return reg.Register(bus.TypePing, func(_ context.Context, _ bus.Message) bus.Message {
		return bus.OK("pong")
	})
}
