package bus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// newChannelHub serves a minimal ws endpoint that acks REGISTER and
// then keeps reading until the peer goes away.
func newChannelHub(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
		if err != nil {
			return
		}
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			var env Envelope
			if json.Unmarshal(data, &env) != nil {
				continue
			}
			if env.Type == TypeRegister {
				ack := Envelope{Message: OK(nil), MessageID: env.MessageID}
				ack.Type = TypeRegister
				b, _ := json.Marshal(ack)
				_ = conn.Write(r.Context(), websocket.MessageText, b)
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRunStopsHeartbeatOnDisconnect(t *testing.T) {
	wsURL := newChannelHub(t)
	// A long-lived ctx, as the monitor holds one across reconnects.
	ctx := context.Background()
	before := runtime.NumGoroutine()

	for i := 0; i < 20; i++ {
		ch, err := DialChannel(ctx, wsURL, RegisterInfo{ContextID: "ctx-hb"}, nil, time.Second)
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		done := make(chan struct{})
		go func() {
			_ = ch.Run(ctx)
			close(done)
		}()
		_ = ch.Close()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("run %d did not return after close", i)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if n := runtime.NumGoroutine(); n <= before+3 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("goroutines before=%d after=%d over 20 connect/drop cycles", before, runtime.NumGoroutine())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDialChannelTimesOutWithoutAck(t *testing.T) {
	// Accepts the socket, reads the REGISTER, never acks.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
		if err != nil {
			return
		}
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
	}))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	start := time.Now()
	_, err := DialChannel(context.Background(), wsURL, RegisterInfo{ContextID: "ctx-ack"}, nil, 100*time.Millisecond)
	if err == nil {
		t.Fatal("dial succeeded without a register ack")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("dial blocked %v; want bounded by the channel timeout", elapsed)
	}
}
