// Package tether provides property bindings between observable objects.
//
// A binding keeps a property of one object (the bound object) synchronized
// with a key path on another object (the target). Changes on the target are
// propagated to the bound object; unless the binding is direct-only, changes
// on the bound object are propagated back to the target.
//
// # Engine
//
// The Engine registers, propagates and tears down bindings:
//
//	Target change → Read → Placeholder → Transform → Middleware → Write bound
//	Bound change  → Read → Placeholder → Transform → Middleware → Write target
//
// Each binding carries a reentrancy guard held for the whole sequence, so the
// notification caused by its own write is suppressed and values never
// ping-pong between the two sides.
//
// # Objects
//
// Bound objects implement Bindable: they are kvo.Observable and own a
// Registry. Embedding Object is the simplest way to get both:
//
//	type Label struct {
//	    tether.Object
//	}
//
// Targets are referenced through a kvo.Ref. kvo.Weak does not keep the target
// alive; once it is collected or released its bindings are torn down.
//
// # Errors
//
// Bind fails with ErrInvalidArgument for malformed calls and registers
// nothing. Resolution and transform failures are non-fatal: they are
// reported through LastError, ErrorHistory, OnError, capitan signals and the
// MetricsProvider, and the binding keeps running.
//
// # Example
//
//	engine := tether.New()
//
//	label := &Label{}
//	model := &Model{}
//	_ = model.SetValue("user", &kvo.Object{})
//
//	err := engine.Bind(label, "text", kvo.Weak(model), "user.name",
//	    tether.WithNullPlaceholder("(anonymous)"),
//	    tether.WithTransformer(func(v any, reverse bool) (any, error) {
//	        if reverse {
//	            return strings.ToLower(v.(string)), nil
//	        }
//	        return strings.ToUpper(v.(string)), nil
//	    }),
//	)
//
//	text, _ := label.Value("text") // "(ANONYMOUS)"
package tether

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/tether/kvo"
)

// Engine creates, propagates and tears down bindings.
type Engine struct {
	clock        clockz.Clock
	metrics      MetricsProvider
	onError      func(error)
	errorHistory *errorRing
	lastError    atomic.Pointer[error]
}

// Info is a read-only snapshot of one binding.
type Info struct {
	// Target is the observed target object.
	Target kvo.Observable

	// KeyPath is the observed key path on Target.
	KeyPath string

	// Options are the options the binding was created with.
	Options Options

	// State is the binding's state after its last propagation.
	State State
}

// New creates an Engine.
//
// Instance configuration uses chainable methods before the first Bind:
//
//	engine := tether.New().
//	    ErrorHistorySize(32).
//	    OnError(func(err error) { log.Print(err) })
func New() *Engine {
	return &Engine{
		clock:        clockz.RealClock,
		errorHistory: newErrorRing(0),
	}
}

// -----------------------------------------------------------------------------
// Chainable Instance Configuration
// -----------------------------------------------------------------------------

// Clock sets the clock used to time propagations.
// Must be called before the first Bind.
func (e *Engine) Clock(clock clockz.Clock) *Engine {
	e.clock = clock
	return e
}

// Metrics sets a metrics provider for observability integration.
// Must be called before the first Bind.
func (e *Engine) Metrics(provider MetricsProvider) *Engine {
	e.metrics = provider
	return e
}

// ErrorHistorySize sets the number of recent propagation failures to retain.
// Use 0 (default) to only retain the most recent error via LastError().
// Must be called before the first Bind.
func (e *Engine) ErrorHistorySize(n int) *Engine {
	e.errorHistory = newErrorRing(n)
	return e
}

// OnError sets a handler called synchronously with every propagation
// failure. Must be called before the first Bind.
func (e *Engine) OnError(fn func(error)) *Engine {
	e.onError = fn
	return e
}

// LastError returns the most recent propagation failure, or nil.
func (e *Engine) LastError() error {
	ptr := e.lastError.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// ErrorHistory returns recent propagation failures, oldest first.
// Returns nil if error history is not enabled (see ErrorHistorySize).
func (e *Engine) ErrorHistory() []error {
	return e.errorHistory.all()
}

// -----------------------------------------------------------------------------
// Bindings
// -----------------------------------------------------------------------------

// Bind binds the property name of bound to keyPath on target, replacing any
// binding already registered under name.
//
// Bind subscribes to the target's key path and, unless DirectOnly is given,
// to the bound property, then copies the target value into the bound
// property. If that initial copy fails the binding remains registered and
// the *PropagationError is returned; the binding recovers on a later change
// once the key path resolves.
//
// Bind returns an error wrapping ErrInvalidArgument, registers nothing and
// keeps any existing binding under name if bound or target is nil, the
// target no longer resolves or refuses the subscription, a key path is
// empty or malformed, or bound and target are the same object with
// overlapping key paths.
func (e *Engine) Bind(bound Bindable, name string, target kvo.Ref, keyPath string, opts ...Option) error {
	obj, err := validateBind(bound, name, target, keyPath)
	if err != nil {
		return err
	}

	// The previous binding under name stays in place until the new one is
	// subscribed, so a failed Bind leaves it untouched.
	b := newBinding(e, bound, name, target, keyPath, buildOptions(opts))
	if err := b.activate(obj); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if prev := b.registry.insert(b); prev != nil && prev.teardown() {
		e.removed(prev)
	}
	b.registry.hookRelease(bound)

	ctx := context.Background()
	capitan.Emit(ctx, BindingCreated,
		KeyBinding.Field(name),
		KeyKeyPath.Field(keyPath),
	)
	if e.metrics != nil {
		e.metrics.OnBind(name)
	}

	return b.propagate(Forward)
}

// Unbind removes the binding registered under name on bound. It is a no-op
// if there is none, and is safe to call from inside a change notification.
func (e *Engine) Unbind(bound Bindable, name string) {
	if kvo.IsNil(bound) {
		return
	}
	reg := bound.Bindings()
	if reg == nil {
		return
	}
	b := reg.lookup(name)
	if b == nil {
		return
	}
	if reg.remove(b) && b.teardown() {
		e.removed(b)
	}
}

// UnbindAll removes every binding registered on bound.
func (e *Engine) UnbindAll(bound Bindable) {
	if kvo.IsNil(bound) || bound.Bindings() == nil {
		return
	}
	reg := bound.Bindings()
	for _, b := range reg.snapshot() {
		if reg.remove(b) && b.teardown() {
			e.removed(b)
		}
	}
}

// BindingsInfo returns a snapshot of every binding registered on bound,
// keyed by binding name. Bindings whose target no longer resolves are
// released and omitted. The map is empty, never nil, when there are none.
func (e *Engine) BindingsInfo(bound Bindable) map[string]Info {
	info := make(map[string]Info)
	if kvo.IsNil(bound) || bound.Bindings() == nil {
		return info
	}
	for _, b := range bound.Bindings().snapshot() {
		target := b.target.Value()
		if target == nil {
			b.engine.release(b)
			continue
		}
		info[b.name] = Info{
			Target:  target,
			KeyPath: b.keyPath,
			Options: b.options.clone(),
			State:   b.State(),
		}
	}
	return info
}

// -----------------------------------------------------------------------------
// Reporting
// -----------------------------------------------------------------------------

// release tears down a binding whose target or bound object went away.
func (e *Engine) release(b *binding) {
	if !b.registry.remove(b) || !b.teardown() {
		return
	}
	e.transitionState(b, StateReleased)
	capitan.Emit(context.Background(), BindingReleased,
		KeyBinding.Field(b.name),
		KeyKeyPath.Field(b.keyPath),
	)
	if e.metrics != nil {
		e.metrics.OnUnbind(b.name)
	}
}

// removed reports a binding torn down by Unbind or replaced by Bind.
func (e *Engine) removed(b *binding) {
	e.transitionState(b, StateReleased)
	capitan.Emit(context.Background(), BindingRemoved,
		KeyBinding.Field(b.name),
		KeyKeyPath.Field(b.keyPath),
	)
	if e.metrics != nil {
		e.metrics.OnUnbind(b.name)
	}
}

func (e *Engine) skipped(b *binding, dir Direction) {
	capitan.Emit(context.Background(), PropagationSkipped,
		KeyBinding.Field(b.name),
		KeyDirection.Field(dir.String()),
	)
	if e.metrics != nil {
		e.metrics.OnPropagationSkipped(dir)
	}
}

func (e *Engine) succeeded(b *binding, dir Direction, elapsed time.Duration) {
	e.transitionState(b, StateActive)
	capitan.Emit(context.Background(), PropagationSucceeded,
		KeyBinding.Field(b.name),
		KeyKeyPath.Field(b.keyPath),
		KeyDirection.Field(dir.String()),
		KeyDuration.Field(elapsed),
	)
	if e.metrics != nil {
		e.metrics.OnPropagation(dir, elapsed)
	}
}

func (e *Engine) failed(b *binding, perr *PropagationError, elapsed time.Duration) {
	var err error = perr
	e.lastError.Store(&err)
	e.errorHistory.push(err)

	if errors.Is(perr, ErrUnresolved) {
		e.transitionState(b, StateUnresolved)
	} else {
		e.transitionState(b, StateFailed)
	}

	capitan.Emit(context.Background(), PropagationFailed,
		KeyBinding.Field(b.name),
		KeyKeyPath.Field(b.keyPath),
		KeyDirection.Field(perr.Direction.String()),
		KeyStage.Field(perr.Stage.String()),
		KeyError.Field(perr.Err.Error()),
		KeyDuration.Field(elapsed),
	)
	if e.metrics != nil {
		e.metrics.OnPropagationFailure(perr.Stage, elapsed)
	}
	if e.onError != nil {
		e.onError(perr)
	}
}

// transitionState updates the state and emits a state change event if changed.
// A released binding stays released.
func (e *Engine) transitionState(b *binding, newState State) {
	if newState != StateReleased && b.released.Load() {
		return
	}
	oldState := State(b.state.Swap(int32(newState)))
	if oldState == newState {
		return
	}
	capitan.Emit(context.Background(), BindingStateChanged,
		KeyBinding.Field(b.name),
		KeyOldState.Field(oldState.String()),
		KeyNewState.Field(newState.String()),
	)
	if e.metrics != nil {
		e.metrics.OnStateChange(oldState, newState)
	}
}
