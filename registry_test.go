package tether

import (
	"slices"
	"testing"

	"github.com/zoobzio/tether/kvo"
)

func TestRegistry_ZeroValue(t *testing.T) {
	var r Registry
	if r.Len() != 0 {
		t.Errorf("expected 0, got %d", r.Len())
	}
	if names := r.Names(); len(names) != 0 {
		t.Errorf("expected no names, got %v", names)
	}
	if r.Bindings() != &r {
		t.Error("expected Bindings to return the registry itself")
	}
}

func TestRegistry_Names(t *testing.T) {
	engine := New()
	l, m := &label{}, &model{}

	for _, name := range []string{"c", "a", "b"} {
		if err := engine.Bind(l, name, kvo.Weak(m), name); err != nil {
			t.Fatalf("Bind failed: %v", err)
		}
	}
	if names := l.Bindings().Names(); !slices.Equal(names, []string{"a", "b", "c"}) {
		t.Errorf("expected sorted names, got %v", names)
	}
}

func TestRegistry_RemoveIgnoresStaleRecord(t *testing.T) {
	var r Registry
	old := &binding{name: "x"}
	current := &binding{name: "x"}

	r.insert(old)
	if prev := r.insert(current); prev != old {
		t.Fatal("expected insert to return the displaced record")
	}
	if r.remove(old) {
		t.Error("expected stale remove to fail")
	}
	if r.lookup("x") != current {
		t.Error("expected current record kept")
	}
	if !r.remove(current) {
		t.Error("expected remove to succeed")
	}
	if r.Len() != 0 {
		t.Errorf("expected 0, got %d", r.Len())
	}
}

func TestRegistry_SnapshotSorted(t *testing.T) {
	var r Registry
	for _, name := range []string{"z", "m", "a"} {
		r.insert(&binding{name: name})
	}
	snap := r.snapshot()
	got := make([]string, len(snap))
	for i, b := range snap {
		got[i] = b.name
	}
	if !slices.Equal(got, []string{"a", "m", "z"}) {
		t.Errorf("expected sorted snapshot, got %v", got)
	}
}

// widget composes kvo.Object and Registry directly instead of embedding Object.
type widget struct {
	kvo.Object
	Registry
}

func TestRegistry_CustomBindable(t *testing.T) {
	engine := New()
	w, m := &widget{}, &model{}
	set(t, m, "size", 3)

	if err := engine.Bind(w, "size", kvo.Weak(m), "size"); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if v := value(t, w, "size"); v != 3 {
		t.Errorf("expected 3, got %v", v)
	}

	w.Release()
	if w.Len() != 0 {
		t.Errorf("expected release to tear down bindings, got %d", w.Len())
	}
	set(t, m, "size", 4)
}
