package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/openvalet/go-valet/internal/log"
	"github.com/openvalet/go-valet/pkg/value"
)

// Status is a publish-only side channel a capability may update while it
// runs, intended for live progress display alongside the chat log. Updates
// may race with result delivery; all access is internally synchronized.
type Status struct {
	mu       sync.Mutex
	text     string
	set      bool
	onChange func(string)
}

// NewStatus returns an empty status slot.
func NewStatus() *Status {
	return &Status{}
}

// OnChange sets the observer invoked after every Set or Update. At most one
// observer is supported; it runs outside the status lock.
func (s *Status) OnChange(fn func(string)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Set publishes new status text.
func (s *Status) Set(text string) {
	s.mu.Lock()
	s.text = text
	s.set = true
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(text)
	}
}

// Update atomically transforms the current text. Used by capabilities that
// append progress lines from a background worker.
func (s *Status) Update(transform func(old string) string) {
	s.mu.Lock()
	s.text = transform(s.text)
	s.set = true
	text := s.text
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(text)
	}
}

// Get returns the current text and whether anything was ever published.
func (s *Status) Get() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text, s.set
}

// Errorf builds the structured error result returned to the remote model so
// it can self-correct or inform the user.
func Errorf(format string, args ...any) value.Value {
	return value.Object{{Key: "error", Value: value.Str(fmt.Sprintf(format, args...))}}
}

// Success builds the bare success result used by side-effect-only tools.
func Success() value.Value {
	return value.Object{{Key: "success", Value: value.Bool(true)}}
}

// Dispatch resolves name against the registry and invokes the matching
// handler. An unknown name synthesizes an error result and calls onResult
// synchronously; a registered handler owns the exactly-once onResult
// contract from there.
func (r *Registry) Dispatch(ctx context.Context, name string, args value.Object, status *Status, onResult func(value.Value)) {
	t, ok := r.byName[name]
	if !ok {
		log.Warn("dispatch: unknown tool", "name", name)
		onResult(Errorf("no tool found matching '%s'", name))
		return
	}
	if status == nil {
		status = NewStatus()
	}

	log.Debug("dispatch: invoking tool", "name", name)
	t.Handler(ctx, args, status, onResult)
}
