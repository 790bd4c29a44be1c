package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lexiview/bridge/bus"
)

func TestBroadcastToleratesMissingReceivers(t *testing.T) {
	reg := NewRegistry()
	var received atomic.Int32
	receiver := func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		bus.WriteJSON(w, bus.OK(nil))
	}

	// 3 contexts with live receivers.
	for i := 0; i < 3; i++ {
		srv := httptest.NewServer(http.HandlerFunc(receiver))
		t.Cleanup(srv.Close)
		reg.Add(&Context{ID: srv.URL, CallbackURL: srv.URL, LastSeen: time.Now()})
	}
	// 2 contexts whose receiver is gone: one dead port, one without a
	// callback at all.
	dead := httptest.NewServer(http.HandlerFunc(receiver))
	deadURL := dead.URL
	dead.Close()
	reg.Add(&Context{ID: "dead", CallbackURL: deadURL, LastSeen: time.Now()})
	reg.Add(&Context{ID: "no-callback", LastSeen: time.Now()})

	b := NewBroadcaster(reg, nil)
	res := b.Broadcast(context.Background(), bus.Message{Type: bus.TypePing})
	if res.Delivered != 3 {
		t.Fatalf("delivered = %d; want 3", res.Delivered)
	}
	if res.NoReceiver != 2 {
		t.Fatalf("no_receiver = %d; want 2", res.NoReceiver)
	}
	if res.Failed != 0 {
		t.Fatalf("failed = %d; want 0", res.Failed)
	}
	if received.Load() != 3 {
		t.Fatalf("receivers hit %d times; want 3", received.Load())
	}
}

func TestBroadcastLogsButContinuesOnServerError(t *testing.T) {
	reg := NewRegistry()
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		bus.WriteJSON(w, bus.OK(nil))
	}))
	t.Cleanup(ok.Close)
	boom := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(boom.Close)
	reg.Add(&Context{ID: "ok", CallbackURL: ok.URL, LastSeen: time.Now()})
	reg.Add(&Context{ID: "boom", CallbackURL: boom.URL, LastSeen: time.Now()})

	b := NewBroadcaster(reg, nil)
	res := b.Broadcast(context.Background(), bus.Message{Type: bus.TypeNoteAdded})
	if res.Delivered != 1 || res.Failed != 1 || res.NoReceiver != 0 {
		t.Fatalf("result = %+v; want 1 delivered, 1 failed", res)
	}
}

func TestBroadcastSanitizesPayload(t *testing.T) {
	reg := NewRegistry()
	got := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 4096)
		n, _ := r.Body.Read(buf)
		got <- buf[:n]
		bus.WriteJSON(w, bus.OK(nil))
	}))
	t.Cleanup(srv.Close)
	reg.Add(&Context{ID: "a", CallbackURL: srv.URL, LastSeen: time.Now()})

	b := NewBroadcaster(reg, nil)
	res := b.Broadcast(context.Background(), bus.Message{
		Type:    bus.TypeNoteAdded,
		Payload: map[string]any{"fn": func() {}, "text": "hi"},
	})
	if res.Delivered != 1 {
		t.Fatalf("delivered = %d; want 1", res.Delivered)
	}
	body := string(<-got)
	if !strings.Contains(body, "[function]") || !strings.Contains(body, "hi") {
		t.Fatalf("payload not sanitized on the wire: %s", body)
	}
}
