package tether

import (
	"errors"
	"fmt"

	"github.com/zoobzio/tether/kvo"
)

var (
	// ErrInvalidArgument indicates a malformed Bind call. No binding is
	// registered when Bind returns it.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTransform indicates the value transformer failed. Only the
	// propagation in progress is aborted.
	ErrTransform = errors.New("transform failed")

	// ErrUnresolved indicates a key path could not be resolved. The binding
	// stays registered and recovers once the path resolves.
	ErrUnresolved = kvo.ErrUnresolved
)

// PropagationError describes an aborted propagation.
type PropagationError struct {
	Binding   string
	KeyPath   string
	Direction Direction
	Stage     Stage
	Err       error
}

func (e *PropagationError) Error() string {
	return fmt.Sprintf("binding %q <-> %q: %s %s failed: %v", e.Binding, e.KeyPath, e.Direction, e.Stage, e.Err)
}

// Unwrap returns the underlying cause.
func (e *PropagationError) Unwrap() error {
	return e.Err
}
