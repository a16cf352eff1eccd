package tether

import "sync"

// errorRing is a thread-safe ring buffer of recent propagation failures.
type errorRing struct {
	mu     sync.RWMutex
	errors []error
	head   int
	count  int
}

// newErrorRing creates a ring holding up to size errors.
// If size is 0, the ring buffer is disabled and nil is returned.
func newErrorRing(size int) *errorRing {
	if size <= 0 {
		return nil
	}
	return &errorRing{errors: make([]error, size)}
}

// push records err, evicting the oldest entry when full.
func (r *errorRing) push(err error) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors[r.head] = err
	r.head = (r.head + 1) % len(r.errors)
	r.count = min(r.count+1, len(r.errors))
}

// all returns the recorded errors, oldest first.
func (r *errorRing) all() []error {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.count == 0 {
		return nil
	}
	size := len(r.errors)
	start := (r.head - r.count + size) % size
	out := make([]error, r.count)
	for i := range out {
		out[i] = r.errors[(start+i)%size]
	}
	return out
}
