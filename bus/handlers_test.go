package bus

import (
	"context"
	"strings"
	"testing"
)

func TestDispatchNoHandler(t *testing.T) {
	reg := NewHandlerRegistry()
	res := reg.Dispatch(context.Background(), Message{Type: "NOPE"})
	if res.Success {
		t.Fatalf("expected failure, got %#v", res)
	}
	if !strings.Contains(res.Error, "NOPE") {
		t.Fatalf("error should name the type, got %q", res.Error)
	}
}

func TestDispatchFanOutExactlyOnce(t *testing.T) {
	reg := NewHandlerRegistry()
	calls := map[string]int{}
	reg.Register(TypeNoteAdded, func(context.Context, Message) Message {
		calls["first"]++
		return OK("first")
	})
	reg.Register(TypeNoteAdded, func(context.Context, Message) Message {
		calls["second"]++
		return OK("second")
	})
	res := reg.Dispatch(context.Background(), Message{Type: TypeNoteAdded})
	if calls["first"] != 1 || calls["second"] != 1 {
		t.Fatalf("handlers not each invoked exactly once: %v", calls)
	}
	// Aggregation is explicit: first successful reply wins.
	if !res.Success || res.Payload != "first" {
		t.Fatalf("dispatch result = %#v; want first success", res)
	}
}

func TestDispatchFirstSuccessSkipsFailures(t *testing.T) {
	reg := NewHandlerRegistry()
	reg.Register(TypePing, func(context.Context, Message) Message {
		return Fail("not ready")
	})
	reg.Register(TypePing, func(context.Context, Message) Message {
		return OK("pong")
	})
	res := reg.Dispatch(context.Background(), Message{Type: TypePing})
	if !res.Success || res.Payload != "pong" {
		t.Fatalf("dispatch result = %#v; want pong", res)
	}
}

func TestDispatchAllFailuresReturnsLast(t *testing.T) {
	reg := NewHandlerRegistry()
	reg.Register(TypePing, func(context.Context, Message) Message { return Fail("one") })
	reg.Register(TypePing, func(context.Context, Message) Message { return Fail("two") })
	res := reg.Dispatch(context.Background(), Message{Type: TypePing})
	if res.Success || res.Error != "two" {
		t.Fatalf("dispatch result = %#v; want last failure", res)
	}
}

func TestUnregister(t *testing.T) {
	reg := NewHandlerRegistry()
	un := reg.Register(TypePing, func(context.Context, Message) Message { return OK(nil) })
	if reg.HandlerCount(TypePing) != 1 {
		t.Fatalf("count = %d; want 1", reg.HandlerCount(TypePing))
	}
	un()
	un() // second call is a no-op
	if reg.HandlerCount(TypePing) != 0 {
		t.Fatalf("count after unregister = %d; want 0", reg.HandlerCount(TypePing))
	}
	res := reg.Dispatch(context.Background(), Message{Type: TypePing})
	if res.Success {
		t.Fatalf("expected no-handler failure after unregister, got %#v", res)
	}
}
