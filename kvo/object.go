package kvo

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
)

// ErrNilObserver indicates Observe was called without a callback.
var ErrNilObserver = errors.New("nil observer")

// lastObservation issues Observation ids unique across all objects, so an
// id handed to the wrong object's Unobserve is ignored rather than removing
// an unrelated observer.
var lastObservation atomic.Uint64

func nextObservation() Observation {
	return Observation(lastObservation.Add(1))
}

// Object is an observable property bag. The zero value is ready to use.
// Values that are themselves Observable are traversed by dotted key paths.
//
// An Object must not be copied after first use.
type Object struct {
	mu        sync.Mutex
	values    map[string]any
	observers map[string]map[Observation]func()
	keys      map[Observation]string
	links     *links
	hooks     map[Observation]func()
	released  bool
}

// Ensure Object implements Observable and Lifetime.
var (
	_ Observable = (*Object)(nil)
	_ Lifetime   = (*Object)(nil)
)

// Value resolves keyPath and returns the leaf value.
func (o *Object) Value(keyPath string) (any, error) {
	head, rest, err := Split(keyPath)
	if err != nil {
		return nil, err
	}
	v := o.get(head)
	if rest == "" {
		return v, nil
	}
	child, ok := asObservable(v)
	if !ok {
		return nil, &ResolutionError{Path: keyPath, Segment: head}
	}
	leaf, err := child.Value(rest)
	if err != nil {
		return nil, prefixed(head, keyPath, err)
	}
	return leaf, nil
}

// SetValue writes the leaf value at keyPath. Observers of the leaf key on
// the owning object are notified after the write, on the calling goroutine.
func (o *Object) SetValue(keyPath string, value any) error {
	head, rest, err := Split(keyPath)
	if err != nil {
		return err
	}
	if rest == "" {
		return o.set(head, value)
	}
	child, ok := asObservable(o.get(head))
	if !ok {
		return &ResolutionError{Path: keyPath, Segment: head}
	}
	if err := child.SetValue(rest, value); err != nil {
		return prefixed(head, keyPath, err)
	}
	return nil
}

// Delete removes key from the object and notifies its observers. key must
// be a single segment. Deleting an absent key is a no-op.
func (o *Object) Delete(key string) error {
	head, rest, err := Split(key)
	if err != nil {
		return err
	}
	if rest != "" {
		return fmt.Errorf("%w: %q is not a single key", ErrInvalidKeyPath, key)
	}

	o.mu.Lock()
	if o.released {
		o.mu.Unlock()
		return ErrReleased
	}
	if _, ok := o.values[head]; !ok {
		o.mu.Unlock()
		return nil
	}
	delete(o.values, head)
	fns := ordered(o.observers[head])
	o.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return nil
}

// Observe registers fn for changes at keyPath. For nested paths fn also
// fires when any intermediate object is replaced.
func (o *Object) Observe(keyPath string, fn func()) (Observation, error) {
	if fn == nil {
		return 0, ErrNilObserver
	}
	head, rest, err := Split(keyPath)
	if err != nil {
		return 0, err
	}

	id := nextObservation()
	notify := fn
	var c *chain
	if rest != "" {
		c = &chain{rest: rest, fn: fn}
		notify = func() {
			c.relink(o.get(head))
			fn()
		}
	}

	o.mu.Lock()
	if o.released {
		o.mu.Unlock()
		return 0, ErrReleased
	}
	if o.observers == nil {
		o.observers = make(map[string]map[Observation]func())
		o.keys = make(map[Observation]string)
	}
	if o.observers[head] == nil {
		o.observers[head] = make(map[Observation]func())
	}
	o.observers[head][id] = notify
	o.keys[id] = head
	if c != nil {
		if o.links == nil {
			o.links = &links{}
			// Chains observe other objects; close them if o is collected
			// without being released.
			runtime.AddCleanup(o, closeLinks, o.links)
		}
		o.links.add(id, c)
	}
	o.mu.Unlock()

	if c != nil {
		c.relink(o.get(head))
	}
	return id, nil
}

// Unobserve removes an observer or release hook registered on this object.
func (o *Object) Unobserve(id Observation) {
	o.mu.Lock()
	if key, ok := o.keys[id]; ok {
		delete(o.observers[key], id)
		if len(o.observers[key]) == 0 {
			delete(o.observers, key)
		}
		delete(o.keys, id)
	}
	delete(o.hooks, id)
	links := o.links
	o.mu.Unlock()

	var c *chain
	if links != nil {
		c = links.take(id)
	}

	if c != nil {
		c.close()
	}
}

// OnRelease registers fn to run once when the object is released. If the
// object is already released fn runs immediately and the zero Observation
// is returned.
func (o *Object) OnRelease(fn func()) Observation {
	o.mu.Lock()
	if o.released {
		o.mu.Unlock()
		fn()
		return 0
	}
	if o.hooks == nil {
		o.hooks = make(map[Observation]func())
	}
	id := nextObservation()
	o.hooks[id] = fn
	o.mu.Unlock()
	return id
}

// Released reports whether Release has been called.
func (o *Object) Released() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.released
}

// Release ends the object's lifetime: all observers are dropped, further
// writes fail with ErrReleased and release hooks run in registration order.
// Values remain readable. Release is idempotent.
func (o *Object) Release() {
	o.mu.Lock()
	if o.released {
		o.mu.Unlock()
		return
	}
	o.released = true
	hooks := ordered(o.hooks)
	links := o.links
	o.observers, o.keys, o.hooks = nil, nil, nil
	o.mu.Unlock()

	closeLinks(links)
	for _, fn := range hooks {
		fn()
	}
}

// Keys returns the object's own keys in sorted order.
func (o *Object) Keys() []string {
	o.mu.Lock()
	keys := make([]string, 0, len(o.values))
	for k := range o.values {
		keys = append(keys, k)
	}
	o.mu.Unlock()
	slices.Sort(keys)
	return keys
}

// Snapshot returns a deep copy of the object's values as plain maps.
// Nested values providing a Snapshot method are expanded.
func (o *Object) Snapshot() map[string]any {
	o.mu.Lock()
	values := make(map[string]any, len(o.values))
	for k, v := range o.values {
		values[k] = v
	}
	o.mu.Unlock()

	for k, v := range values {
		if s, ok := v.(interface{ Snapshot() map[string]any }); ok && !IsNil(v) {
			values[k] = s.Snapshot()
		}
	}
	return values
}

func (o *Object) get(key string) any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.values[key]
}

func (o *Object) set(key string, value any) error {
	o.mu.Lock()
	if o.released {
		o.mu.Unlock()
		return ErrReleased
	}
	if o.values == nil {
		o.values = make(map[string]any)
	}
	o.values[key] = value
	fns := ordered(o.observers[key])
	o.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return nil
}

// ordered snapshots callbacks in registration order.
func ordered(m map[Observation]func()) []func() {
	if len(m) == 0 {
		return nil
	}
	ids := make([]Observation, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(), len(ids))
	for i, id := range ids {
		fns[i] = m[id]
	}
	return fns
}

func asObservable(v any) (Observable, bool) {
	o, ok := v.(Observable)
	if !ok || IsNil(v) {
		return nil, false
	}
	return o, true
}

// chain keeps an observation of the remainder of a key path attached to
// whichever object currently sits at the head segment.
type chain struct {
	mu    sync.Mutex
	rest  string
	fn    func()
	child Observable
	obs   Observation
	done  bool
}

func (c *chain) relink(v any) {
	next, _ := asObservable(v)

	c.mu.Lock()
	if c.done || (next == nil && c.child == nil) || (next != nil && Same(c.child, next)) {
		c.mu.Unlock()
		return
	}
	old, oldObs := c.child, c.obs
	c.child, c.obs = nil, 0
	c.mu.Unlock()

	if old != nil {
		old.Unobserve(oldObs)
	}
	if next == nil {
		return
	}
	obs, err := next.Observe(c.rest, c.fn)
	if err != nil {
		return
	}

	c.mu.Lock()
	if c.done || c.child != nil {
		c.mu.Unlock()
		next.Unobserve(obs)
		return
	}
	c.child, c.obs = next, obs
	c.mu.Unlock()
}

// links holds an object's chains apart from the object itself, so they can
// be closed by a cleanup once the object is unreachable.
type links struct {
	mu     sync.Mutex
	chains map[Observation]*chain
}

func (l *links) add(id Observation, c *chain) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.chains == nil {
		l.chains = make(map[Observation]*chain)
	}
	l.chains[id] = c
}

func (l *links) take(id Observation) *chain {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := l.chains[id]
	delete(l.chains, id)
	return c
}

func closeLinks(l *links) {
	if l == nil {
		return
	}
	l.mu.Lock()
	chains := l.chains
	l.chains = nil
	l.mu.Unlock()

	for _, c := range chains {
		c.close()
	}
}

func (c *chain) close() {
	c.mu.Lock()
	c.done = true
	child, obs := c.child, c.obs
	c.child, c.obs = nil, 0
	c.mu.Unlock()

	if child != nil {
		child.Unobserve(obs)
	}
}
