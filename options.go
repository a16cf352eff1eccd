package tether

import (
	"context"
	"slices"
	"time"

	"github.com/zoobzio/pipz"
)

// ValueTransformer converts a value crossing a binding. It is called with
// reverse=false for target to bound propagation and reverse=true for bound
// to target propagation. It must be a pure function of its arguments.
type ValueTransformer func(value any, reverse bool) (any, error)

// Options are the per-binding settings. They are fixed when the binding is
// created and reported back by BindingsInfo.
type Options struct {
	// Transformer converts values in both directions. Nil means identity.
	Transformer ValueTransformer

	// NullPlaceholder replaces a nil value in either direction when
	// HasNullPlaceholder is set. It is applied before the transformer.
	NullPlaceholder    any
	HasNullPlaceholder bool

	// DirectOnly disables bound to target propagation.
	DirectOnly bool

	// Middleware runs after the transformer and before the write.
	Middleware []pipz.Chainable[*Propagation]
}

// Option configures a binding.
type Option func(*Options)

func buildOptions(opts []Option) Options {
	var o Options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// clone returns a copy that shares no slices with o.
func (o Options) clone() Options {
	o.Middleware = slices.Clone(o.Middleware)
	return o
}

// -----------------------------------------------------------------------------
// Binding Options
// -----------------------------------------------------------------------------

// WithTransformer sets the value transformer.
func WithTransformer(fn ValueTransformer) Option {
	return func(o *Options) {
		o.Transformer = fn
	}
}

// WithNullPlaceholder substitutes v whenever the propagated value is nil,
// so objects that reject nil can still take part in a binding.
func WithNullPlaceholder(v any) Option {
	return func(o *Options) {
		o.NullPlaceholder = v
		o.HasNullPlaceholder = true
	}
}

// DirectOnly makes the binding one-way: changes to the bound object are
// never written to the target.
func DirectOnly() Option {
	return func(o *Options) {
		o.DirectOnly = true
	}
}

// WithMiddleware appends processors that run after the transformer and
// before the write. Returning an error from a processor aborts the
// propagation; the binding stays registered.
//
// Example:
//
//	engine.Bind(view, "title", kvo.Weak(doc), "app.title",
//	    tether.WithMiddleware(
//	        tether.UseEffect("audit", func(_ context.Context, p *tether.Propagation) error {
//	            log.Printf("%s %s = %v", p.Direction, p.Binding, p.Value)
//	            return nil
//	        }),
//	    ),
//	)
func WithMiddleware(processors ...pipz.Chainable[*Propagation]) Option {
	return func(o *Options) {
		o.Middleware = append(o.Middleware, processors...)
	}
}

// -----------------------------------------------------------------------------
// Middleware Processors - Adapters (Use*)
// -----------------------------------------------------------------------------

// UseTransform creates a processor that rewrites the propagation.
// Cannot fail.
func UseTransform(name string, fn func(context.Context, *Propagation) *Propagation) pipz.Chainable[*Propagation] {
	return pipz.Transform(pipz.NewIdentity(name, "Binding middleware transform"), fn)
}

// UseApply creates a processor that can rewrite the propagation and fail.
// Use it to veto values the destination should not receive.
func UseApply(name string, fn func(context.Context, *Propagation) (*Propagation, error)) pipz.Chainable[*Propagation] {
	return pipz.Apply(pipz.NewIdentity(name, "Binding middleware apply"), fn)
}

// UseEffect creates a processor that performs a side effect.
// The propagation passes through unchanged.
func UseEffect(name string, fn func(context.Context, *Propagation) error) pipz.Chainable[*Propagation] {
	return pipz.Effect(pipz.NewIdentity(name, "Binding middleware effect"), fn)
}

// UseMutate creates a processor that rewrites the propagation only when
// condition holds.
func UseMutate(name string, transformer func(context.Context, *Propagation) *Propagation, condition func(context.Context, *Propagation) bool) pipz.Chainable[*Propagation] {
	return pipz.Mutate(pipz.NewIdentity(name, "Binding middleware mutate"), transformer, condition)
}

// UseEnrich creates a processor that tries to improve the propagation.
// A failure is ignored and the propagation continues unchanged.
func UseEnrich(name string, fn func(context.Context, *Propagation) (*Propagation, error)) pipz.Chainable[*Propagation] {
	return pipz.Enrich(pipz.NewIdentity(name, "Binding middleware enrich"), fn)
}

// -----------------------------------------------------------------------------
// Middleware Processors - Wrappers
// -----------------------------------------------------------------------------

// UseRetry wraps a processor with retry logic.
func UseRetry(maxAttempts int, processor pipz.Chainable[*Propagation]) pipz.Chainable[*Propagation] {
	return pipz.NewRetry(pipz.NewIdentity("tether:retry", "Retry binding middleware"), processor, maxAttempts)
}

// UseTimeout wraps a processor with a deadline. Propagation is synchronous,
// so a slow processor holds up the write that triggered it.
func UseTimeout(d time.Duration, processor pipz.Chainable[*Propagation]) pipz.Chainable[*Propagation] {
	return pipz.NewTimeout(pipz.NewIdentity("tether:timeout", "Timeout binding middleware"), processor, d)
}

// UseFallback tries primary, then each fallback in order, until one
// succeeds.
func UseFallback(primary pipz.Chainable[*Propagation], fallbacks ...pipz.Chainable[*Propagation]) pipz.Chainable[*Propagation] {
	all := append([]pipz.Chainable[*Propagation]{primary}, fallbacks...)
	return pipz.NewFallback(pipz.NewIdentity("tether:fallback", "Fallback binding middleware"), all...)
}

// UseFilter runs processor only when condition holds. Other propagations
// pass through unchanged.
//
// Example:
//
//	// Validate only values headed for the document.
//	tether.UseFilter("reverse-only",
//	    func(_ context.Context, p *tether.Propagation) bool { return p.Direction == tether.Reverse },
//	    validatePort,
//	)
func UseFilter(name string, condition func(context.Context, *Propagation) bool, processor pipz.Chainable[*Propagation]) pipz.Chainable[*Propagation] {
	return pipz.NewFilter(pipz.NewIdentity(name, "Binding middleware filter"), condition, processor)
}

// -----------------------------------------------------------------------------
// Middleware Processors - Standalone
// -----------------------------------------------------------------------------

// UseRateLimit limits how often a binding writes. The limiter waits for a
// token, which blocks the caller that triggered the propagation. Share one
// limiter between bindings to limit them together.
func UseRateLimit(rate float64, burst int) pipz.Chainable[*Propagation] {
	return pipz.NewRateLimiter[*Propagation](pipz.NewIdentity("tether:rate-limiter", "Binding write rate limiter"), rate, burst)
}
