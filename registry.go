package tether

import (
	"cmp"
	"slices"
	"sync"

	"github.com/zoobzio/tether/kvo"
)

// Bindable is an observable object that owns a binding registry.
// Embedding Object, or kvo.Object together with Registry, satisfies it.
type Bindable interface {
	kvo.Observable
	Bindings() *Registry
}

// Registry holds the active bindings of one bound object, keyed by binding
// name. The zero value is ready to use. A Registry is meant to be embedded
// in the object it serves so that its bindings share that object's lifetime.
type Registry struct {
	mu       sync.Mutex
	bindings map[string]*binding
	hooked   bool
}

// Bindings returns r, so that embedding a Registry satisfies Bindable.
func (r *Registry) Bindings() *Registry {
	return r
}

// Len returns the number of active bindings.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bindings)
}

// Names returns the active binding names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	names := make([]string, 0, len(r.bindings))
	for name := range r.bindings {
		names = append(names, name)
	}
	r.mu.Unlock()
	slices.Sort(names)
	return names
}

// insert stores b and returns the record it displaced, if any.
func (r *Registry) insert(b *binding) *binding {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bindings == nil {
		r.bindings = make(map[string]*binding)
	}
	prev := r.bindings[b.name]
	r.bindings[b.name] = b
	return prev
}

func (r *Registry) lookup(name string) *binding {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bindings[name]
}

// remove deletes b only if it is still the record stored under its name,
// so a stale teardown cannot evict a newer binding.
func (r *Registry) remove(b *binding) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bindings[b.name] != b {
		return false
	}
	delete(r.bindings, b.name)
	return true
}

// snapshot returns the current records sorted by name. Callers iterate the
// snapshot, so records may be removed during iteration.
func (r *Registry) snapshot() []*binding {
	r.mu.Lock()
	out := make([]*binding, 0, len(r.bindings))
	for _, b := range r.bindings {
		out = append(out, b)
	}
	r.mu.Unlock()
	slices.SortFunc(out, func(a, b *binding) int {
		return cmp.Compare(a.name, b.name)
	})
	return out
}

// hookRelease arranges for every binding to be torn down when owner is
// released. It installs at most one hook per registry.
func (r *Registry) hookRelease(owner Bindable) {
	lifetime, ok := owner.(kvo.Lifetime)
	if !ok {
		return
	}
	r.mu.Lock()
	if r.hooked {
		r.mu.Unlock()
		return
	}
	r.hooked = true
	r.mu.Unlock()

	lifetime.OnRelease(func() {
		for _, b := range r.snapshot() {
			b.engine.release(b)
		}
	})
}

// Object is an observable object that can own bindings. Embed it in a
// struct to make that struct bindable:
//
//	type Label struct {
//	    tether.Object
//	}
type Object struct {
	kvo.Object
	Registry
}

// Ensure Object implements Bindable.
var _ Bindable = (*Object)(nil)
