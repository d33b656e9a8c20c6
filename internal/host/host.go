// Package host is the controller-side lifecycle the aggregator plugs into: named task
// handlers invoked once per test, after-run hooks invoked once per session, and
// configuration exposed to the execution context of the code under test.
package host

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrUnknownTask is returned by RunTask when no handler is registered under the name.
	ErrUnknownTask = errors.New("unknown task")
	// ErrRunComplete is returned once the after-run hooks have fired.
	ErrRunComplete = errors.New("run already complete")
)

// TaskHandler receives one JSON payload and returns a JSON-serializable acknowledgment.
type TaskHandler func(payload json.RawMessage) (any, error)

// Registry dispatches tasks and after-run hooks strictly one at a time.
type Registry struct {
	mu       sync.Mutex
	tasks    map[string]TaskHandler
	afterRun []func() error
	exposed  map[string]any
	complete bool
	done     chan struct{}
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		tasks:   make(map[string]TaskHandler),
		exposed: make(map[string]any),
		done:    make(chan struct{}),
	}
}

// Task registers h under name, replacing any earlier handler.
func (r *Registry) Task(name string, h TaskHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[name] = h
}

// AfterRun registers fn to run once when the session completes. Hooks run in
// registration order.
func (r *Registry) AfterRun(fn func() error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afterRun = append(r.afterRun, fn)
}

// Expose publishes a configuration value to the other execution context.
func (r *Registry) Expose(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exposed[key] = value
}

// Exposed returns a copy of the exposed configuration.
func (r *Registry) Exposed() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]any, len(r.exposed))
	for k, v := range r.exposed {
		out[k] = v
	}
	return out
}

// HasTask reports whether a handler is registered under name.
func (r *Registry) HasTask(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[name]
	return ok
}

// HookCount returns the number of registered after-run hooks.
func (r *Registry) HookCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.afterRun)
}

// RunTask invokes the handler registered under name.
func (r *Registry) RunTask(name string, payload json.RawMessage) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.complete {
		return nil, ErrRunComplete
	}
	h, ok := r.tasks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return h(payload)
}

// Complete runs every after-run hook once. The first hook error stops the remaining
// hooks and is returned. Calls after the first return ErrRunComplete.
func (r *Registry) Complete() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.complete {
		return ErrRunComplete
	}
	r.complete = true
	defer close(r.done)
	for _, fn := range r.afterRun {
		if err := fn(); err != nil {
			return fmt.Errorf("after run: %w", err)
		}
	}
	return nil
}

// IsComplete reports whether Complete has been called.
func (r *Registry) IsComplete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.complete
}

// Done is closed when Complete returns.
func (r *Registry) Done() <-chan struct{} {
	return r.done
}
