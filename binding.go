package tether

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/pipz"
	"github.com/zoobzio/tether/kvo"
)

// Pipeline stage identities.
var (
	propagationID = pipz.NewIdentity("tether:propagation", "Binding propagation pipeline")
	readID        = pipz.NewIdentity("tether:read", "Read the source side")
	placeholderID = pipz.NewIdentity("tether:placeholder", "Substitute the null placeholder")
	transformID   = pipz.NewIdentity("tether:transform", "Apply the value transformer")
	middlewareID  = pipz.NewIdentity("tether:middleware", "Enter user middleware")
	writeID       = pipz.NewIdentity("tether:write", "Write the destination side")
)

// errGone aborts a propagation whose destination was released mid-flight.
var errGone = errors.New("object released")

// idle marks a binding with no propagation in flight.
const idle = -1

// binding is the record of one bound property.
type binding struct {
	engine   *Engine
	registry *Registry
	bound    Bindable
	name     string
	target   kvo.Ref
	keyPath  string
	options  Options
	pipeline pipz.Chainable[*Propagation]

	// updating is held for the whole read-transform-write sequence and
	// suppresses the notification caused by the binding's own write, which
	// always arrives in the opposite direction. A change arriving in the
	// active direction is recorded in pending and replayed by the holder.
	updating atomic.Bool
	active   atomic.Int32
	pending  [2]atomic.Bool
	released atomic.Bool
	state    atomic.Int32

	mu         sync.Mutex
	boundObs   kvo.Observation
	targetObs  kvo.Observation
	releaseObs kvo.Observation
}

func newBinding(e *Engine, bound Bindable, name string, target kvo.Ref, keyPath string, options Options) *binding {
	b := &binding{
		engine:   e,
		registry: bound.Bindings(),
		bound:    bound,
		name:     name,
		target:   target,
		keyPath:  keyPath,
		options:  options,
	}
	b.state.Store(int32(StatePending))
	b.active.Store(idle)
	b.pipeline = b.buildPipeline()
	return b
}

func (b *binding) buildPipeline() pipz.Chainable[*Propagation] {
	stages := []pipz.Chainable[*Propagation]{
		pipz.Apply(readID, b.read),
		pipz.Transform(placeholderID, b.placeholder),
		pipz.Apply(transformID, b.transform),
	}
	if len(b.options.Middleware) > 0 {
		stages = append(stages, pipz.Transform(middlewareID, func(_ context.Context, p *Propagation) *Propagation {
			p.stage = StageMiddleware
			return p
		}))
		stages = append(stages, b.options.Middleware...)
	}
	stages = append(stages, pipz.Apply(writeID, b.write))
	return pipz.NewSequence(propagationID, stages...)
}

// State returns the binding's current state.
func (b *binding) State() State {
	return State(b.state.Load())
}

// activate subscribes to the target and, unless direct-only, to the bound
// object. The target's release hook is registered when it has a lifetime.
func (b *binding) activate(target kvo.Observable) error {
	targetObs, err := target.Observe(b.keyPath, func() { b.propagate(Forward) })
	if err != nil {
		return fmt.Errorf("observe target %q: %w", b.keyPath, err)
	}

	var boundObs kvo.Observation
	if !b.options.DirectOnly {
		boundObs, err = b.bound.Observe(b.name, func() { b.propagate(Reverse) })
		if err != nil {
			target.Unobserve(targetObs)
			return fmt.Errorf("observe bound %q: %w", b.name, err)
		}
	}

	b.mu.Lock()
	b.targetObs, b.boundObs = targetObs, boundObs
	b.mu.Unlock()

	if lifetime, ok := target.(kvo.Lifetime); ok {
		obs := lifetime.OnRelease(func() { b.engine.release(b) })
		b.mu.Lock()
		b.releaseObs = obs
		b.mu.Unlock()
	}
	return nil
}

// teardown marks the binding released and drops its subscriptions.
// Notifications already in flight see the released flag and do nothing.
func (b *binding) teardown() bool {
	if !b.released.CompareAndSwap(false, true) {
		return false
	}

	b.mu.Lock()
	boundObs, targetObs, releaseObs := b.boundObs, b.targetObs, b.releaseObs
	b.boundObs, b.targetObs, b.releaseObs = 0, 0, 0
	b.mu.Unlock()

	if boundObs != 0 {
		b.bound.Unobserve(boundObs)
	}
	// A released or collected target has already dropped its observers.
	if target := b.target.Value(); target != nil {
		target.Unobserve(targetObs)
		if releaseObs != 0 {
			target.Unobserve(releaseObs)
		}
	}
	return true
}

// propagate runs one read-transform-write sequence in direction dir.
// Errors are reported through the engine and returned for Bind's initial
// sync; notification-driven calls discard the return value.
func (b *binding) propagate(dir Direction) error {
	if b.released.Load() {
		return nil
	}
	target := b.target.Value()
	if target == nil {
		b.engine.release(b)
		return nil
	}
	if !b.updating.CompareAndSwap(false, true) {
		if Direction(b.active.Load()) != dir {
			b.engine.skipped(b, dir)
			return nil
		}
		b.pending[dir].Store(true)
		// The holder may have released the guard before seeing pending.
		if !b.updating.CompareAndSwap(false, true) {
			return nil
		}
	}
	return b.hold(dir, target)
}

// hold runs dir while owning the guard and replays it for every change
// recorded on the source side meanwhile. A replay whose source value equals
// the last one read writes nothing, so cycles through other bindings end.
func (b *binding) hold(dir Direction, target kvo.Observable) error {
	for {
		b.active.Store(int32(dir))
		b.pending[dir].Store(false)
		raw, err := b.run(dir, target)
		for b.pending[dir].Swap(false) && !b.released.Load() {
			if cur, ok := b.sourceValue(dir, target); ok && kvo.Same(cur, raw) {
				continue
			}
			raw, err = b.run(dir, target)
		}
		b.active.Store(idle)
		b.updating.Store(false)

		if !b.pending[dir].Load() || b.released.Load() || !b.updating.CompareAndSwap(false, true) {
			return err
		}
	}
}

// sourceValue reads the side dir propagates from.
func (b *binding) sourceValue(dir Direction, target kvo.Observable) (any, bool) {
	var (
		v   any
		err error
	)
	if dir == Forward {
		v, err = target.Value(b.keyPath)
	} else {
		v, err = b.bound.Value(b.name)
	}
	return v, err == nil
}

// run executes the pipeline once and returns the raw source value it read.
func (b *binding) run(dir Direction, target kvo.Observable) (any, error) {
	p := &Propagation{
		Binding:   b.name,
		KeyPath:   b.keyPath,
		Direction: dir,
	}
	if dir == Forward {
		p.source, p.sourcePath = target, b.keyPath
		p.dest, p.destPath = b.bound, b.name
	} else {
		p.source, p.sourcePath = b.bound, b.name
		p.dest, p.destPath = target, b.keyPath
	}

	start := b.engine.clock.Now()
	_, err := b.pipeline.Process(context.Background(), p)
	elapsed := b.engine.clock.Since(start)
	// Errors may retain p; it must not pin the target.
	p.source, p.dest = nil, nil
	raw := p.Raw
	if err != nil {
		cause := p.cause
		if cause == nil {
			cause = err
		}
		if errors.Is(cause, errGone) {
			b.engine.release(b)
			return raw, nil
		}
		perr := &PropagationError{
			Binding:   b.name,
			KeyPath:   b.keyPath,
			Direction: dir,
			Stage:     p.stage,
			Err:       cause,
		}
		b.engine.failed(b, perr, elapsed)
		return raw, perr
	}
	b.engine.succeeded(b, dir, elapsed)
	return raw, nil
}

func (b *binding) read(_ context.Context, p *Propagation) (*Propagation, error) {
	p.stage = StageRead
	v, err := p.source.Value(p.sourcePath)
	if err != nil {
		p.cause = err
		return p, err
	}
	p.Raw, p.Value = v, v
	return p, nil
}

func (b *binding) placeholder(_ context.Context, p *Propagation) *Propagation {
	if b.options.HasNullPlaceholder && kvo.IsNil(p.Value) {
		p.Value = b.options.NullPlaceholder
	}
	return p
}

func (b *binding) transform(_ context.Context, p *Propagation) (_ *Propagation, err error) {
	p.stage = StageTransform
	fn := b.options.Transformer
	if fn == nil {
		return p, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrTransform, r)
			p.cause = err
		}
	}()
	v, err := fn(p.Value, p.Direction == Reverse)
	if err != nil {
		p.cause = fmt.Errorf("%w: %w", ErrTransform, err)
		return p, p.cause
	}
	p.Value = v
	return p, nil
}

func (b *binding) write(_ context.Context, p *Propagation) (*Propagation, error) {
	p.stage = StageWrite
	// Unbound by middleware or a concurrent caller mid-flight.
	if b.released.Load() {
		return p, nil
	}
	if err := p.dest.SetValue(p.destPath, p.Value); err != nil {
		if errors.Is(err, kvo.ErrReleased) {
			err = errGone
		}
		p.cause = err
		return p, err
	}
	return p, nil
}
