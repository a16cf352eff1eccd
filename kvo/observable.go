// Package kvo provides key-value observing over dotted key paths.
//
// An Observable resolves a dotted key path such as "user.address.city" to a
// leaf value, writes leaf values, and notifies observers when the value at a
// path changes. Object is the in-memory implementation; it can be embedded in
// any struct to make that struct observable:
//
//	type Model struct {
//	    kvo.Object
//	}
//
//	m := &Model{}
//	obs, _ := m.Observe("user.name", func() {
//	    name, _ := m.Value("user.name")
//	    fmt.Println("name is now", name)
//	})
//	defer m.Unobserve(obs)
//
// Observation of a nested path survives replacement of intermediate objects:
// when "user" is set to a new object, the observer is re-attached to it and
// fired. An absent intermediate object is not an error for Observe; it is
// reported as a *ResolutionError by Value and SetValue.
//
// Notifications are delivered synchronously on the goroutine that performed
// the write, after all internal locks have been released, so observers may
// read, write, observe and unobserve freely.
package kvo

// Observation identifies a registered observer or release hook.
// The zero Observation is never issued.
type Observation uint64

// Observable is the key-path capability consumed by bindings.
type Observable interface {
	// Value resolves keyPath and returns the leaf value. A nil leaf is
	// returned as nil with no error; an absent intermediate object is
	// reported as a *ResolutionError.
	Value(keyPath string) (any, error)

	// SetValue writes the leaf value at keyPath and notifies observers.
	SetValue(keyPath string, value any) error

	// Observe registers fn to be called whenever the value at keyPath may
	// have changed.
	Observe(keyPath string, fn func()) (Observation, error)

	// Unobserve removes an observer or release hook. Unknown observations
	// are ignored.
	Unobserve(Observation)
}

// Lifetime is implemented by observables with an explicit end of life.
type Lifetime interface {
	// OnRelease registers fn to be called once when the object is released.
	// The returned Observation can be passed to Unobserve.
	OnRelease(fn func()) Observation

	// Released reports whether the object has been released.
	Released() bool
}
