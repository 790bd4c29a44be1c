package bus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Transport delivers one message to the peer context and returns its
// reply. The bus logic is agnostic to which implementation is active:
// the persistent channel when it is up, the one-shot call otherwise.
type Transport interface {
	Send(ctx context.Context, msg Message) (Message, error)
}

// DefaultChannelTimeout bounds how long a correlated request waits on
// the persistent channel before the bus falls back to a one-shot call.
const DefaultChannelTimeout = time.Second

// OneShotTransport performs a single HTTP request/response exchange,
// re-established from scratch each time. It is the fallback path: more
// expensive than the channel but indifferent to a peer that was just
// torn down and has not reconnected yet.
type OneShotTransport struct {
	URL    string
	Client *http.Client
}

func NewOneShotTransport(url string, client *http.Client) *OneShotTransport {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &OneShotTransport{URL: url, Client: client}
}

// Send posts the raw message and decodes the direct reply. Every
// transport-level failure comes back as a normalized error; no
// platform exception escapes to the caller.
func (t *OneShotTransport) Send(ctx context.Context, msg Message) (Message, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return Message{}, fmt.Errorf("bus: encode one-shot message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(body))
	if err != nil {
		return Message{}, fmt.Errorf("bus: build one-shot request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.Client.Do(req)
	if err != nil {
		return Message{}, fmt.Errorf("bus: one-shot call failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Message{}, fmt.Errorf("bus: read one-shot response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Message{}, fmt.Errorf("bus: one-shot call failed: receiver returned status %d", resp.StatusCode)
	}
	var reply Message
	if err := json.Unmarshal(data, &reply); err != nil {
		return Message{}, fmt.Errorf("bus: decode one-shot response: %w", err)
	}
	return reply, nil
}
