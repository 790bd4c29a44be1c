package hub

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/lexiview/bridge/bus"
	"github.com/lexiview/bridge/core/logx"
)

// WSHandler accepts a page context's persistent channel. The first
// frame must be the REGISTER handshake; after the ack every inbound
// correlated envelope is dispatched through the handler registry and
// answered under the same messageId.
func WSHandler(reg *Registry, handlers *bus.HandlerRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
		if err != nil {
			logx.Log.Error().Err(err).Str("remote", r.RemoteAddr).Msg("ws accept")
			return
		}
		ctx := r.Context()
		defer func() { _ = c.Close(websocket.StatusInternalError, "hub error") }()

		_, data, err := c.Read(ctx)
		if err != nil {
			logx.Log.Error().Err(err).Str("remote", r.RemoteAddr).Msg("ws read register")
			return
		}
		var reg1 struct {
			Type      string           `json:"type"`
			MessageID string           `json:"messageId"`
			Payload   bus.RegisterInfo `json:"payload"`
		}
		if err := json.Unmarshal(data, &reg1); err != nil || reg1.Type != bus.TypeRegister {
			logx.Log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("ws invalid first message; expected register")
			_ = c.Close(websocket.StatusPolicyViolation, "expected register")
			return
		}
		info := reg1.Payload
		if info.ContextID == "" {
			info.ContextID = uuid.NewString()
		}

		pc := &Context{
			ID:          info.ContextID,
			Kind:        info.Kind,
			CallbackURL: info.CallbackURL,
			LastSeen:    time.Now(),
			Send:        make(chan bus.Envelope, 32),
		}
		reg.Add(pc)
		defer reg.Remove(pc.ID)
		logx.Log.Info().Str("context_id", pc.ID).Str("kind", pc.Kind).Msg("context registered")

		go func() {
			for env := range pc.Send {
				b, err := json.Marshal(env)
				if err != nil {
					continue
				}
				if err := c.Write(ctx, websocket.MessageText, b); err != nil {
					logx.Log.Debug().Err(err).Str("context_id", pc.ID).Msg("ws write")
					return
				}
			}
		}()

		ack := bus.Envelope{Message: bus.Message{Type: bus.TypeRegister, Success: true}, MessageID: reg1.MessageID}
		if !pc.Push(ack) {
			return
		}

		for {
			_, msg, err := c.Read(ctx)
			if err != nil {
				logx.Log.Info().Err(err).Str("context_id", pc.ID).Msg("channel closed")
				return
			}
			pc.Touch()
			var env bus.Envelope
			if json.Unmarshal(msg, &env) != nil {
				continue
			}
			if env.Type == bus.TypePing && env.MessageID == "" {
				// bare heartbeat; Touch above is all it is for
				continue
			}
			go func(env bus.Envelope) {
				metricMessagesTotal.WithLabelValues(env.Type, "channel").Inc()
				reply := handlers.Dispatch(ctx, env.Message)
				if env.MessageID == "" {
					return
				}
				reply.Type = env.Type
				reply.Payload = bus.Sanitize(reply.Payload)
				pc.Push(bus.Envelope{Message: reply, MessageID: env.MessageID})
			}(env)
		}
	}
}
