package tether

import "github.com/zoobzio/tether/kvo"

// Direction is the way a value travels through a binding.
type Direction int

const (
	// Forward carries the target's value to the bound object.
	Forward Direction = iota
	// Reverse carries the bound object's value to the target.
	Reverse
)

// String returns the string representation of the direction.
func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	default:
		return "unknown"
	}
}

// Stage identifies a step of the propagation pipeline.
type Stage int

const (
	StageRead Stage = iota
	StageTransform
	StageMiddleware
	StageWrite
)

// String returns the string representation of the stage.
func (s Stage) String() string {
	switch s {
	case StageRead:
		return "read"
	case StageTransform:
		return "transform"
	case StageMiddleware:
		return "middleware"
	case StageWrite:
		return "write"
	default:
		return "unknown"
	}
}

// Propagation carries one value across a binding through the processing
// pipeline. Middleware may inspect it and replace Value before the write.
type Propagation struct {
	// Binding is the binding name on the bound object.
	Binding string

	// KeyPath is the key path on the target.
	KeyPath string

	// Direction is Forward for target to bound, Reverse for bound to target.
	Direction Direction

	// Raw is the value as read from the source side.
	Raw any

	// Value is the value that will be written. It starts as Raw and is
	// replaced by the null placeholder and the transformer.
	Value any

	source, dest         kvo.Observable
	sourcePath, destPath string
	stage                Stage
	cause                error
}
