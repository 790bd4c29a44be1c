package bus

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiview/bridge/core/logx"
)

// Options configures a client-side Bus.
type Options struct {
	// HubURL is the hub base URL, e.g. http://127.0.0.1:8390.
	HubURL string
	// Identity announced in the REGISTER handshake.
	ContextID   string
	Kind        string
	CallbackURL string

	// ChannelTimeout bounds correlated requests before falling back.
	ChannelTimeout time.Duration
	// ReconnectDelay and MaxReconnectAttempts tune the Monitor.
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int

	Store      RecoveryStore
	HTTPClient *http.Client
}

// Bus is the facade every client context talks through: it composes
// the handler registry, the connection monitor and the two transports
// behind a single Send/Handle/Broadcast-receiving surface.
type Bus struct {
	handlers *HandlerRegistry
	monitor  *Monitor
	oneshot  *OneShotTransport
	log      zerolog.Logger
}

// New builds a Bus for the given hub. Run must be called before the
// persistent channel is available; Send works immediately through the
// one-shot path.
func New(opts Options) *Bus {
	b := &Bus{
		handlers: NewHandlerRegistry(),
		oneshot:  NewOneShotTransport(strings.TrimRight(opts.HubURL, "/")+"/api/bus/call", opts.HTTPClient),
		log:      logx.Component("bus"),
	}
	wsURL := strings.TrimRight(opts.HubURL, "/") + "/api/bus/ws"
	if strings.HasPrefix(wsURL, "http") {
		wsURL = "ws" + strings.TrimPrefix(wsURL, "http")
	}
	info := RegisterInfo{ContextID: opts.ContextID, Kind: opts.Kind, CallbackURL: opts.CallbackURL}
	b.monitor = NewMonitor(MonitorOptions{
		Dial: func(ctx context.Context) (Channel, error) {
			return DialChannel(ctx, wsURL, info, b.dispatchPush, opts.ChannelTimeout)
		},
		Delay:       opts.ReconnectDelay,
		MaxAttempts: opts.MaxReconnectAttempts,
		Store:       opts.Store,
	})
	return b
}

// Run drives the connection monitor until ctx ends.
func (b *Bus) Run(ctx context.Context) error {
	return b.monitor.Run(ctx)
}

// Handle registers a local handler for inbound messages of the given
// type and returns its unregister func.
func (b *Bus) Handle(msgType string, h Handler) func() {
	return b.handlers.Register(msgType, h)
}

// OnLifecycle subscribes to connection lifecycle events.
func (b *Bus) OnLifecycle(fn func(Event)) func() {
	return b.monitor.Subscribe(fn)
}

// State returns the current channel state.
func (b *Bus) State() State { return b.monitor.State() }

// Reset clears a terminal channel failure and retries.
func (b *Bus) Reset(ctx context.Context) { b.monitor.Reset(ctx) }

// Send delivers msg to the hub and returns the reply. The payload is
// sanitized at this boundary, so arbitrary values survive the crossing
// or degrade field by field. The persistent channel is preferred; on
// timeout, channel loss, or absence of a channel the call falls back
// to the one-shot path. Every failure surfaces as a normalized error,
// never a panic from the platform layer.
func (b *Bus) Send(ctx context.Context, msg Message) (Message, error) {
	msg.Payload = Sanitize(msg.Payload)
	if ch := b.monitor.Channel(); ch != nil {
		reply, err := ch.Send(ctx, msg)
		if err == nil {
			return reply, nil
		}
		if ctx.Err() != nil {
			return Message{}, err
		}
		if errors.Is(err, ErrRequestTimeout) || errors.Is(err, ErrChannelClosed) {
			b.log.Debug().Err(err).Str("type", msg.Type).Msg("channel send failed; using one-shot")
		} else {
			b.log.Warn().Err(err).Str("type", msg.Type).Msg("channel send failed; using one-shot")
		}
	}
	return b.oneshot.Send(ctx, msg)
}

// dispatchPush handles hub-initiated traffic on the channel: broadcast
// events and hub-side requests both land in the local registry.
func (b *Bus) dispatchPush(ctx context.Context, msg Message) Message {
	reply := b.handlers.Dispatch(ctx, msg)
	reply.Payload = Sanitize(reply.Payload)
	return reply
}

// DeliverHandler exposes the local registry as the HTTP endpoint that
// receives hub broadcasts when the channel is down (the one-shot leg
// of broadcast delivery).
func (b *Bus) DeliverHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var msg Message
		if err := decodeJSON(r, &msg); err != nil {
			http.Error(w, "bad message", http.StatusBadRequest)
			return
		}
		reply := b.handlers.Dispatch(r.Context(), msg)
		reply.Type = msg.Type
		reply.Payload = Sanitize(reply.Payload)
		writeJSON(w, reply)
	}
}
