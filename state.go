package tether

// State represents the current state of a binding.
type State int32

const (
	// StatePending indicates the binding is registered but has not yet
	// completed a propagation.
	StatePending State = iota

	// StateActive indicates the last propagation completed.
	StateActive

	// StateUnresolved indicates the last propagation could not resolve a
	// key path. The binding stays registered and recovers on the next
	// change notification once the path resolves.
	StateUnresolved

	// StateFailed indicates the last propagation was aborted by the
	// transformer, middleware or the destination write.
	StateFailed

	// StateReleased indicates the binding has been torn down.
	StateReleased
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateUnresolved:
		return "unresolved"
	case StateFailed:
		return "failed"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}
