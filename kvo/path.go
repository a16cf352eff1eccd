package kvo

import (
	"fmt"
	"reflect"
	"strings"
)

// Separator joins key path segments.
const Separator = "."

// Split returns the first segment of keyPath and the remainder.
// The remainder is empty for a single-segment path.
func Split(keyPath string) (head, rest string, err error) {
	if err := ValidatePath(keyPath); err != nil {
		return "", "", err
	}
	head, rest, _ = strings.Cut(keyPath, Separator)
	return head, rest, nil
}

// ValidatePath checks that keyPath is non-empty and has no empty segments.
func ValidatePath(keyPath string) error {
	if keyPath == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKeyPath)
	}
	for _, seg := range strings.Split(keyPath, Separator) {
		if seg == "" {
			return fmt.Errorf("%w: %q has an empty segment", ErrInvalidKeyPath, keyPath)
		}
	}
	return nil
}

// Overlaps reports whether two key paths are equal or one is a segment
// prefix of the other. "a.b" overlaps "a" and "a.b.c" but not "a.bc".
func Overlaps(a, b string) bool {
	if a == b {
		return true
	}
	return strings.HasPrefix(a, b+Separator) || strings.HasPrefix(b, a+Separator)
}

// IsNil reports whether v is nil or a typed nil pointer, map, slice,
// channel, func or interface.
func IsNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

// Same reports whether a and b are the same object. Pointer-shaped values
// compare by address; other values compare with == when comparable.
func Same(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Type() != rb.Type() {
		return false
	}
	switch ra.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.UnsafePointer:
		return ra.Pointer() == rb.Pointer()
	}
	if ra.Comparable() {
		return ra.Equal(rb)
	}
	return false
}
