package api

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// DispatchResult is the tagged outcome of a module/action invocation.
type DispatchResult struct {
	Output  map[string]any
	Success bool
	Error   string
}

// Succeeded builds a successful DispatchResult.
func Succeeded(output map[string]any) DispatchResult {
	return DispatchResult{Output: output, Success: true}
}

// Failed builds a failed DispatchResult.
func Failed(format string, args ...any) DispatchResult {
	return DispatchResult{Error: fmt.Sprintf(format, args...)}
}

// Dispatcher is the only boundary between the orchestration core and the
// code that actually does work. Timeouts and cancellation of a single call
// are the implementation's concern; the core only looks at Success.
type Dispatcher interface {
	Dispatch(ctx context.Context, module, action string, input map[string]any) DispatchResult
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, module, action string, input map[string]any) DispatchResult

func (f DispatcherFunc) Dispatch(ctx context.Context, module, action string, input map[string]any) DispatchResult {
	return f(ctx, module, action, input)
}

// ActionFunc implements a single module action.
type ActionFunc func(ctx context.Context, input map[string]any) (map[string]any, error)

type actionKey struct {
	module string
	action string
}

// ActionRegistry is a Dispatcher backed by a function table keyed by
// (module, action). It is populated at startup and is safe for concurrent use.
type ActionRegistry struct {
	mu      sync.RWMutex
	actions map[actionKey]ActionFunc
}

var _ Dispatcher = (*ActionRegistry)(nil)

// NewActionRegistry returns an empty registry.
func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{actions: make(map[actionKey]ActionFunc)}
}

// Register adds fn under module.action. Registering the same pair twice is an error.
func (r *ActionRegistry) Register(module, action string, fn ActionFunc) error {
	if module == "" || action == "" {
		return fmt.Errorf("action registry: module and action are required")
	}
	if fn == nil {
		return fmt.Errorf("action registry: %s.%s has nil function", module, action)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := actionKey{module: module, action: action}
	if _, exists := r.actions[key]; exists {
		return fmt.Errorf("action registry: %s.%s already registered", module, action)
	}
	r.actions[key] = fn
	return nil
}

// MustRegister is like Register but panics on error. Intended for startup wiring.
func (r *ActionRegistry) MustRegister(module, action string, fn ActionFunc) {
	if err := r.Register(module, action, fn); err != nil {
		panic(err)
	}
}

// Actions lists registered pairs as "module.action", sorted.
func (r *ActionRegistry) Actions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.actions))
	for k := range r.actions {
		out = append(out, k.module+"."+k.action)
	}
	sort.Strings(out)
	return out
}

// Dispatch invokes the registered action. Unknown pairs, returned errors and
// panics all become failed results.
func (r *ActionRegistry) Dispatch(ctx context.Context, module, action string, input map[string]any) (res DispatchResult) {
	r.mu.RLock()
	fn, ok := r.actions[actionKey{module: module, action: action}]
	r.mu.RUnlock()

	if !ok {
		return Failed("no action registered for %s.%s", module, action)
	}

	defer func() {
		if p := recover(); p != nil {
			res = Failed("%s.%s panicked: %v", module, action, p)
		}
	}()

	out, err := fn(ctx, input)
	if err != nil {
		return Failed("%s.%s: %v", module, action, err)
	}
	return Succeeded(out)
}

// SafeDispatch calls d and turns a panic into a failed result. Callers that
// dispatch from their own goroutines use it so a misbehaving Dispatcher
// cannot take the process down.
func SafeDispatch(ctx context.Context, d Dispatcher, module, action string, input map[string]any) (res DispatchResult) {
	defer func() {
		if p := recover(); p != nil {
			res = Failed("%s.%s panicked: %v", module, action, p)
		}
	}()
	return d.Dispatch(ctx, module, action, input)
}
