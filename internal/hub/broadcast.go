package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiview/bridge/bus"
	"github.com/lexiview/bridge/core/logx"
)

// Result aggregates a broadcast once every per-target attempt has
// settled.
type Result struct {
	Delivered  int
	NoReceiver int
	Failed     int
}

// Broadcaster fans a message out to every open page context with a
// one-shot delivery per target. A target without a receiver is the
// normal case for a page with no injected script and is swallowed;
// any other failure is logged but never aborts the remaining targets.
type Broadcaster struct {
	reg    *Registry
	client *http.Client
	log    zerolog.Logger
}

func NewBroadcaster(reg *Registry, client *http.Client) *Broadcaster {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Broadcaster{reg: reg, client: client, log: logx.Component("broadcast")}
}

// Broadcast delivers msg to every registered context independently and
// concurrently, returning once all attempts have settled.
func (b *Broadcaster) Broadcast(ctx context.Context, msg bus.Message) Result {
	msg.Payload = bus.Sanitize(msg.Payload)
	targets := b.reg.List()
	var (
		mu  sync.Mutex
		res Result
		wg  sync.WaitGroup
	)
	for _, t := range targets {
		wg.Add(1)
		go func(t *Context) {
			defer wg.Done()
			err := b.deliver(ctx, t, msg)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				res.Delivered++
				metricBroadcastsTotal.WithLabelValues("delivered").Inc()
			case isNoReceiver(err):
				res.NoReceiver++
				metricBroadcastsTotal.WithLabelValues("no_receiver").Inc()
			default:
				res.Failed++
				metricBroadcastsTotal.WithLabelValues("failed").Inc()
				b.log.Warn().Err(err).Str("context_id", t.ID).Str("type", msg.Type).Msg("broadcast delivery failed")
			}
		}(t)
	}
	wg.Wait()
	return res
}

var errNoReceiver = errors.New("no receiver present")

func (b *Broadcaster) deliver(ctx context.Context, t *Context, msg bus.Message) error {
	if t.CallbackURL == "" {
		return errNoReceiver
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNotFound {
		return errNoReceiver
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("receiver returned status %d", resp.StatusCode)
	}
	return nil
}

// isNoReceiver classifies the failures that mean "this page has no
// injected script right now": nothing listening on the callback port,
// or a callback route that is gone.
func isNoReceiver(err error) bool {
	if errors.Is(err, errNoReceiver) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
