package hub

import (
	"testing"
	"time"

	"github.com/lexiview/bridge/bus"
)

func TestRegistryPruneExpired(t *testing.T) {
	reg := NewRegistry()
	fresh := &Context{ID: "fresh", LastSeen: time.Now(), Send: make(chan bus.Envelope, 1)}
	stale := &Context{ID: "stale", LastSeen: time.Now().Add(-time.Minute), Send: make(chan bus.Envelope, 1)}
	reg.Add(fresh)
	reg.Add(stale)

	reg.PruneExpired(30 * time.Second)
	if _, ok := reg.Get("stale"); ok {
		t.Fatal("stale context survived prune")
	}
	if _, ok := reg.Get("fresh"); !ok {
		t.Fatal("fresh context evicted")
	}
	// The evicted context's queue is closed and refuses pushes.
	if stale.Push(bus.Envelope{}) {
		t.Fatal("push to evicted context succeeded")
	}
	if _, ok := <-stale.Send; ok {
		t.Fatal("stale send channel not closed")
	}
}

func TestRegistryReplaceClosesOldChannel(t *testing.T) {
	reg := NewRegistry()
	old := &Context{ID: "ctx", LastSeen: time.Now(), Send: make(chan bus.Envelope, 1)}
	reg.Add(old)
	repl := &Context{ID: "ctx", LastSeen: time.Now(), Send: make(chan bus.Envelope, 1)}
	reg.Add(repl)

	if _, ok := <-old.Send; ok {
		t.Fatal("old send channel not closed on replacement")
	}
	if reg.Count() != 1 {
		t.Fatalf("count = %d; want 1", reg.Count())
	}
	cur, _ := reg.Get("ctx")
	if cur != repl {
		t.Fatal("registry kept the old context")
	}
}

func TestRegistryTouchKeepsAlive(t *testing.T) {
	reg := NewRegistry()
	c := &Context{ID: "ctx", LastSeen: time.Now().Add(-time.Minute), Send: make(chan bus.Envelope, 1)}
	reg.Add(c)
	c.Touch()
	reg.PruneExpired(30 * time.Second)
	if _, ok := reg.Get("ctx"); !ok {
		t.Fatal("touched context evicted")
	}
}
