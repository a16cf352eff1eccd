package testing

import (
	"runtime"
	"testing"
	"time"

	"github.com/zoobzio/tether"
	"github.com/zoobzio/tether/kvo"
)

func TestWaitFor(t *testing.T) {
	t.Run("condition met immediately", func(t *testing.T) {
		result := WaitFor(t, 100*time.Millisecond, func() bool {
			return true
		})
		if !result {
			t.Error("expected WaitFor to return true")
		}
	})

	t.Run("condition never met", func(t *testing.T) {
		result := WaitFor(t, 50*time.Millisecond, func() bool {
			return false
		})
		if result {
			t.Error("expected WaitFor to return false on timeout")
		}
	})
}

func TestWaitForValue(t *testing.T) {
	_, m := NewPair()
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = m.SetValue("ready", true)
	}()

	if !WaitForValue(t, m, "ready", true, time.Second) {
		t.Error("expected value to arrive")
	}
}

func TestRequireValue(t *testing.T) {
	_, m := NewPair()
	_ = m.SetValue("n", 3)

	// Should not fail for the correct value.
	RequireValue(t, m, "n", 3)
}

func TestRequireState(t *testing.T) {
	engine := tether.New()
	l, m := NewPair()

	if err := engine.Bind(l, "text", kvo.Weak(m), "title"); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	RequireState(t, engine, l, "text", tether.StateActive)
	runtime.KeepAlive(m)
}

func TestRecorder(t *testing.T) {
	engine := tether.New()
	l, m := NewPair()

	if err := engine.Bind(l, "text", kvo.Weak(m), "title"); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	rec := NewRecorder(t, l, "text")

	_ = m.SetValue("title", "one")
	_ = m.SetValue("title", "two")

	if n := rec.Count("text"); n != 2 {
		t.Errorf("expected 2 notifications, got %d", n)
	}
	values := rec.Values("text")
	if len(values) != 2 || values[0] != "one" || values[1] != "two" {
		t.Errorf("expected [one two], got %v", values)
	}

	rec.Reset()
	if n := rec.Count("text"); n != 0 {
		t.Errorf("expected 0 after reset, got %d", n)
	}
}
