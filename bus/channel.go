package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/lexiview/bridge/core/logx"
)

// Channel is a persistent duplex connection to the hub. It is cheaper
// than the one-shot path and preserves sender-side ordering for bursts
// of calls, at the cost of being the first thing to die when the hub
// restarts.
type Channel interface {
	Transport
	// Run pumps inbound frames until the connection or ctx ends.
	Run(ctx context.Context) error
	Close() error
}

// PushHandler processes a message the hub initiated (a broadcast event
// or a hub-side request). Its reply is written back when the inbound
// frame carried a correlation id.
type PushHandler func(ctx context.Context, msg Message) Message

type wsChannel struct {
	conn      *websocket.Conn
	pending   *pendingMap
	timeout   time.Duration
	heartbeat time.Duration
	onPush    PushHandler

	writeMu sync.Mutex
}

// DialChannel opens the persistent channel: it dials the hub WebSocket
// endpoint, performs the REGISTER handshake and returns the live
// channel. The caller must drive Run for replies to flow.
func DialChannel(ctx context.Context, wsURL string, info RegisterInfo, onPush PushHandler, timeout time.Duration) (Channel, error) {
	if timeout <= 0 {
		timeout = DefaultChannelTimeout
	}
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("bus: dial channel: %w", err)
	}
	c := &wsChannel{
		conn:      conn,
		pending:   newPendingMap(),
		timeout:   timeout,
		heartbeat: 5 * time.Second,
		onPush:    onPush,
	}
	// The handshake is bounded by the channel timeout so a hub that
	// accepts the socket but never acks cannot stall the dial.
	hsCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	reg := Envelope{Message: Message{Type: TypeRegister, Payload: info}}
	if err := c.writeEnvelope(hsCtx, reg); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "register failed")
		return nil, fmt.Errorf("bus: send register: %w", err)
	}
	_, data, err := conn.Read(hsCtx)
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "register failed")
		return nil, fmt.Errorf("bus: read register ack: %w", err)
	}
	var ack Envelope
	if err := json.Unmarshal(data, &ack); err != nil || ack.Type != TypeRegister || !ack.Success {
		_ = conn.Close(websocket.StatusPolicyViolation, "bad register ack")
		if ack.Error != "" {
			return nil, fmt.Errorf("bus: register rejected: %s", ack.Error)
		}
		return nil, fmt.Errorf("bus: register rejected")
	}
	return c, nil
}

// Send wraps msg in a correlated envelope and awaits the matching
// reply. Responses may arrive out of order; matching is purely by id.
// On timeout the pending entry is discarded and ErrRequestTimeout
// tells the bus to fall back to the one-shot path.
func (c *wsChannel) Send(ctx context.Context, msg Message) (Message, error) {
	id, ch := c.pending.add()
	if ch == nil {
		return Message{}, ErrChannelClosed
	}
	env := Envelope{Message: msg, MessageID: id}
	if err := c.writeEnvelope(ctx, env); err != nil {
		c.pending.drop(id)
		return Message{}, fmt.Errorf("%w: %v", ErrChannelClosed, err)
	}
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case reply, ok := <-ch:
		if !ok {
			return Message{}, ErrChannelClosed
		}
		return reply.Message, nil
	case <-timer.C:
		c.pending.drop(id)
		return Message{}, ErrRequestTimeout
	case <-ctx.Done():
		c.pending.drop(id)
		return Message{}, ctx.Err()
	}
}

// Run reads frames until the connection drops, resolving correlated
// replies and dispatching hub-initiated messages. In-flight requests
// are aborted on exit so they fall back without waiting out their
// timeout.
func (c *wsChannel) Run(ctx context.Context) error {
	// The heartbeat lives only as long as this read loop; the caller's
	// ctx outlives individual connections across reconnects.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.heartbeatLoop(ctx)
	defer c.pending.abortAll()
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return err
		}
		var env Envelope
		if json.Unmarshal(data, &env) != nil {
			continue
		}
		if env.MessageID != "" && c.pending.resolve(env.MessageID, env) {
			continue
		}
		go c.handlePush(ctx, env)
	}
}

func (c *wsChannel) handlePush(ctx context.Context, env Envelope) {
	if c.onPush == nil {
		return
	}
	reply := c.onPush(ctx, env.Message)
	if env.MessageID == "" {
		return
	}
	reply.Type = env.Type
	out := Envelope{Message: reply, MessageID: env.MessageID}
	if err := c.writeEnvelope(ctx, out); err != nil {
		logx.Log.Debug().Err(err).Str("type", env.Type).Msg("push reply write")
	}
}

func (c *wsChannel) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = c.writeEnvelope(ctx, Envelope{Message: Message{Type: TypePing}})
		case <-ctx.Done():
			return
		}
	}
}

func (c *wsChannel) writeEnvelope(ctx context.Context, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, b)
}

func (c *wsChannel) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
