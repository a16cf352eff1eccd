// Package testing provides test utilities and helpers for tether bindings.
package testing

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/tether"
	"github.com/zoobzio/tether/kvo"
)

// Label is a bindable fixture standing in for a view object.
type Label struct {
	tether.Object
}

// Model is a plain observable fixture standing in for a binding target.
type Model struct {
	kvo.Object
}

// NewPair returns a fresh Label and Model.
func NewPair() (*Label, *Model) {
	return &Label{}, &Model{}
}

// WaitFor polls a condition until it returns true or timeout is reached.
// Returns true if the condition was met, false if timeout occurred.
func WaitFor(t *testing.T, timeout time.Duration, condition func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// WaitForValue waits until keyPath on o holds want or timeout occurs.
func WaitForValue(t *testing.T, o kvo.Observable, keyPath string, want any, timeout time.Duration) bool {
	t.Helper()
	return WaitFor(t, timeout, func() bool {
		got, err := o.Value(keyPath)
		return err == nil && reflect.DeepEqual(got, want)
	})
}

// RequireValue fails the test immediately if keyPath on o does not hold want.
func RequireValue(t *testing.T, o kvo.Observable, keyPath string, want any) {
	t.Helper()
	got, err := o.Value(keyPath)
	if err != nil {
		t.Fatalf("Value(%q) failed: %v", keyPath, err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %s = %v (%T), got %v (%T)", keyPath, want, want, got, got)
	}
}

// RequireState fails the test immediately if the named binding is missing or
// not in the expected state.
func RequireState(t *testing.T, e *tether.Engine, bound tether.Bindable, name string, expected tether.State) {
	t.Helper()
	info, ok := e.BindingsInfo(bound)[name]
	if !ok {
		t.Fatalf("expected binding %q, found none", name)
	}
	if info.State != expected {
		t.Fatalf("expected state %s, got %s", expected, info.State)
	}
}

// Recorder counts change notifications and records the value seen by each.
type Recorder struct {
	source kvo.Observable

	mu     sync.Mutex
	counts map[string]int
	values map[string][]any
}

// NewRecorder observes every keyPath on o for the rest of the test.
func NewRecorder(t *testing.T, o kvo.Observable, keyPaths ...string) *Recorder {
	t.Helper()
	r := &Recorder{
		source: o,
		counts: make(map[string]int),
		values: make(map[string][]any),
	}
	for _, keyPath := range keyPaths {
		obs, err := o.Observe(keyPath, func() { r.record(keyPath) })
		if err != nil {
			t.Fatalf("Observe(%q) failed: %v", keyPath, err)
		}
		t.Cleanup(func() { o.Unobserve(obs) })
	}
	return r
}

func (r *Recorder) record(keyPath string) {
	v, _ := r.source.Value(keyPath)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[keyPath]++
	r.values[keyPath] = append(r.values[keyPath], v)
}

// Count returns the number of notifications seen for keyPath.
func (r *Recorder) Count(keyPath string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[keyPath]
}

// Values returns the values read at each notification for keyPath.
func (r *Recorder) Values(keyPath string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.values[keyPath]...)
}

// Reset clears all recorded notifications.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.counts)
	clear(r.values)
}
