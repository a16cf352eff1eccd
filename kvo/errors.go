package kvo

import (
	"errors"
	"fmt"
)

var (
	// ErrUnresolved indicates a key path could not be resolved because an
	// intermediate object is absent or not observable.
	ErrUnresolved = errors.New("key path unresolved")

	// ErrInvalidKeyPath indicates an empty key path or an empty segment.
	ErrInvalidKeyPath = errors.New("invalid key path")

	// ErrReleased indicates a write to a released object.
	ErrReleased = errors.New("object released")
)

// ResolutionError reports the segment at which a key path stopped resolving.
type ResolutionError struct {
	// Path is the full key path being resolved.
	Path string
	// Segment is the prefix of Path whose value was absent.
	Segment string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %q: %q is absent", e.Path, e.Segment)
}

// Unwrap returns ErrUnresolved so callers can use errors.Is.
func (e *ResolutionError) Unwrap() error {
	return ErrUnresolved
}

// prefixed re-roots a resolution error from a nested object under head.
func prefixed(head, path string, err error) error {
	var re *ResolutionError
	if errors.As(err, &re) {
		return &ResolutionError{Path: path, Segment: head + "." + re.Segment}
	}
	return err
}
