package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/openvalet/go-valet/pkg/value"
)

func TestDispatchUnknownName(t *testing.T) {
	r := NewRegistry()

	invoked := false
	tool := sampleTool("known_tool")
	tool.Handler = func(ctx context.Context, args value.Object, status *Status, respond func(value.Value)) {
		invoked = true
		respond(Success())
	}
	if err := r.Register(tool); err != nil {
		t.Fatalf("register: %v", err)
	}

	var result value.Value
	calls := 0
	r.Dispatch(context.Background(), "no_such_tool", nil, nil, func(v value.Value) {
		result = v
		calls++
	})

	if calls != 1 {
		t.Fatalf("expected onResult exactly once, got %d", calls)
	}
	if invoked {
		t.Error("registered handler must not run for an unknown name")
	}

	obj, ok := result.(value.Object)
	if !ok {
		t.Fatalf("expected error object, got %#v", result)
	}
	msg, _ := obj.Get("error")
	if !strings.Contains(string(msg.(value.Str)), "no_such_tool") {
		t.Errorf("error should name the requested tool: %v", msg)
	}
}

func TestDispatchRoutesArguments(t *testing.T) {
	r := NewRegistry()

	tool := sampleTool("echo")
	tool.Handler = func(ctx context.Context, args value.Object, status *Status, respond func(value.Value)) {
		v, _ := args.Get("text")
		respond(value.Object{{Key: "echo", Value: v}})
	}
	if err := r.Register(tool); err != nil {
		t.Fatalf("register: %v", err)
	}

	var result value.Value
	args := value.Object{{Key: "text", Value: value.Str("hi")}}
	r.Dispatch(context.Background(), "echo", args, NewStatus(), func(v value.Value) {
		result = v
	})

	echoed, _ := result.(value.Object).Get("echo")
	if echoed != value.Str("hi") {
		t.Errorf("expected echoed argument, got %#v", echoed)
	}
}

func TestStatusPublishes(t *testing.T) {
	s := NewStatus()

	if _, set := s.Get(); set {
		t.Error("fresh status should be unset")
	}

	var seen []string
	s.OnChange(func(text string) { seen = append(seen, text) })

	s.Set("working")
	s.Update(func(old string) string { return old + "\ndone" })

	text, set := s.Get()
	if !set || text != "working\ndone" {
		t.Errorf("unexpected status text %q (set=%v)", text, set)
	}
	if len(seen) != 2 || seen[1] != "working\ndone" {
		t.Errorf("observer saw %v", seen)
	}
}

func TestDispatchSuppliesStatusWhenNil(t *testing.T) {
	r := NewRegistry()

	tool := sampleTool("status_user")
	tool.Handler = func(ctx context.Context, args value.Object, status *Status, respond func(value.Value)) {
		status.Set("running")
		respond(Success())
	}
	if err := r.Register(tool); err != nil {
		t.Fatalf("register: %v", err)
	}

	done := false
	r.Dispatch(context.Background(), "status_user", nil, nil, func(value.Value) { done = true })
	if !done {
		t.Error("expected handler to respond")
	}
}
