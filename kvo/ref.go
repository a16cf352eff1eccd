package kvo

import "weak"

// Ref is a handle to an Observable that may stop resolving. Value returns
// nil once the referenced object has been garbage collected or released.
type Ref interface {
	Value() Observable
}

// Weak returns a Ref that does not keep p alive.
//
//	ref := kvo.Weak(model) // model is *Model, Model embeds kvo.Object
func Weak[T any, P interface {
	*T
	Observable
}](p P) Ref {
	ptr := (*T)(p)
	if ptr == nil {
		return nil
	}
	return weakRef[T, P]{ptr: weak.Make(ptr)}
}

// Strong returns a Ref that keeps o alive. Use it for objects whose lifetime
// is managed elsewhere, such as package-level singletons.
func Strong(o Observable) Ref {
	if IsNil(o) {
		return nil
	}
	return strongRef{o: o}
}

type weakRef[T any, P interface {
	*T
	Observable
}] struct {
	ptr weak.Pointer[T]
}

func (r weakRef[T, P]) Value() Observable {
	ptr := r.ptr.Value()
	if ptr == nil {
		return nil
	}
	return live(P(ptr))
}

type strongRef struct {
	o Observable
}

func (r strongRef) Value() Observable {
	return live(r.o)
}

func live(o Observable) Observable {
	if l, ok := o.(Lifetime); ok && l.Released() {
		return nil
	}
	return o
}
