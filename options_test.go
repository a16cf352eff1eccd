package tether

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/tether/kvo"
)

func TestBuildOptions_Defaults(t *testing.T) {
	o := buildOptions(nil)

	if o.Transformer != nil {
		t.Error("expected nil transformer")
	}
	if o.HasNullPlaceholder || o.NullPlaceholder != nil {
		t.Error("expected no placeholder")
	}
	if o.DirectOnly {
		t.Error("expected two-way binding")
	}
	if len(o.Middleware) != 0 {
		t.Errorf("expected no middleware, got %d", len(o.Middleware))
	}
}

func TestBuildOptions_SkipsNil(t *testing.T) {
	o := buildOptions([]Option{nil, DirectOnly(), nil})
	if !o.DirectOnly {
		t.Error("expected DirectOnly")
	}
}

func TestWithNullPlaceholder_NilIsAValue(t *testing.T) {
	o := buildOptions([]Option{WithNullPlaceholder(nil)})
	if !o.HasNullPlaceholder {
		t.Error("expected placeholder flag set for an explicit nil")
	}
}

func TestWithMiddleware_Appends(t *testing.T) {
	noop := UseEffect("noop", func(context.Context, *Propagation) error { return nil })
	o := buildOptions([]Option{WithMiddleware(noop), WithMiddleware(noop, noop)})
	if len(o.Middleware) != 3 {
		t.Errorf("expected 3 processors, got %d", len(o.Middleware))
	}
}

func TestUseTransform(t *testing.T) {
	proc := UseTransform("double", func(_ context.Context, p *Propagation) *Propagation {
		p.Value = p.Value.(int) * 2
		return p
	})
	out, err := proc.Process(context.Background(), &Propagation{Value: 21})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Value != 42 {
		t.Errorf("expected 42, got %v", out.Value)
	}
}

func TestUseApply_Error(t *testing.T) {
	errVeto := errors.New("veto")
	proc := UseApply("veto", func(_ context.Context, p *Propagation) (*Propagation, error) {
		return p, errVeto
	})
	_, err := proc.Process(context.Background(), &Propagation{})
	if !errors.Is(err, errVeto) {
		t.Errorf("expected veto error, got %v", err)
	}
}

func TestUseEffect_PassesThrough(t *testing.T) {
	var seen any
	proc := UseEffect("peek", func(_ context.Context, p *Propagation) error {
		seen = p.Value
		return nil
	})
	in := &Propagation{Value: "v"}
	out, err := proc.Process(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != in || seen != "v" {
		t.Errorf("expected pass-through, got %v (seen %v)", out, seen)
	}
}

func TestUseMutate_Condition(t *testing.T) {
	proc := UseMutate("clamp",
		func(_ context.Context, p *Propagation) *Propagation {
			p.Value = 100
			return p
		},
		func(_ context.Context, p *Propagation) bool {
			n, ok := p.Value.(int)
			return ok && n > 100
		},
	)

	out, err := proc.Process(context.Background(), &Propagation{Value: 250})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Value != 100 {
		t.Errorf("expected 100, got %v", out.Value)
	}

	out, err = proc.Process(context.Background(), &Propagation{Value: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Value != 7 {
		t.Errorf("expected 7, got %v", out.Value)
	}
}

func TestUseEnrich_FailureIgnored(t *testing.T) {
	proc := UseEnrich("lookup", func(_ context.Context, p *Propagation) (*Propagation, error) {
		return p, errors.New("unavailable")
	})
	out, err := proc.Process(context.Background(), &Propagation{Value: "v"})
	if err != nil {
		t.Fatalf("expected enrichment failure to be ignored, got %v", err)
	}
	if out.Value != "v" {
		t.Errorf("expected v, got %v", out.Value)
	}
}

func TestUseRetry_Recovers(t *testing.T) {
	var calls atomic.Int32
	flaky := UseEffect("flaky", func(context.Context, *Propagation) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	})
	proc := UseRetry(3, flaky)

	if _, err := proc.Process(context.Background(), &Propagation{}); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
}

func TestUseRetry_Exhausted(t *testing.T) {
	errDown := errors.New("down")
	var calls atomic.Int32
	proc := UseRetry(2, UseEffect("down", func(context.Context, *Propagation) error {
		calls.Add(1)
		return errDown
	}))

	if _, err := proc.Process(context.Background(), &Propagation{}); !errors.Is(err, errDown) {
		t.Errorf("expected down error, got %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("expected 2 attempts, got %d", n)
	}
}

func TestUseTimeout_Exceeded(t *testing.T) {
	slow := UseEffect("slow", func(ctx context.Context, _ *Propagation) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})
	proc := UseTimeout(10*time.Millisecond, slow)

	if _, err := proc.Process(context.Background(), &Propagation{}); err == nil {
		t.Error("expected timeout error")
	}
}

func TestUseFallback_UsesSecondary(t *testing.T) {
	primary := UseApply("primary", func(_ context.Context, p *Propagation) (*Propagation, error) {
		return p, errors.New("primary failed")
	})
	secondary := UseTransform("secondary", func(_ context.Context, p *Propagation) *Propagation {
		p.Value = "fallback"
		return p
	})
	proc := UseFallback(primary, secondary)

	out, err := proc.Process(context.Background(), &Propagation{Value: "v"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Value != "fallback" {
		t.Errorf("expected fallback, got %v", out.Value)
	}
}

func TestUseFilter_Engine(t *testing.T) {
	engine := New()
	l, m := &label{}, &model{}

	errEmpty := errors.New("empty title")
	notEmpty := UseApply("not-empty", func(_ context.Context, p *Propagation) (*Propagation, error) {
		if p.Value == "" {
			return p, errEmpty
		}
		return p, nil
	})
	reverseOnly := UseFilter("reverse-only",
		func(_ context.Context, p *Propagation) bool { return p.Direction == Reverse },
		notEmpty,
	)
	if err := engine.Bind(l, "text", kvo.Weak(m), "title", WithMiddleware(reverseOnly)); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}

	// Forward propagation skips the check.
	set(t, m, "title", "")
	if v := value(t, l, "text"); v != "" {
		t.Errorf("expected empty text, got %v", v)
	}

	set(t, m, "title", "kept")
	set(t, l, "text", "")
	if v := value(t, m, "title"); v != "kept" {
		t.Errorf("expected reverse write vetoed, got %v", v)
	}
	if !errors.Is(engine.LastError(), errEmpty) {
		t.Errorf("expected empty title error, got %v", engine.LastError())
	}
	runtime.KeepAlive(m)
}

func TestUseRateLimit_Burst(t *testing.T) {
	limiter := UseRateLimit(1000, 5)
	for i := 0; i < 5; i++ {
		if _, err := limiter.Process(context.Background(), &Propagation{}); err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
	}
}
