package kvo

import (
	"runtime"
	"testing"
)

type model struct {
	Object
}

func TestWeak_ResolvesLiveObject(t *testing.T) {
	m := &model{}
	ref := Weak(m)

	got := ref.Value()
	if got == nil {
		t.Fatal("expected live object")
	}
	if !Same(got, m) {
		t.Errorf("expected ref to resolve to the same object")
	}
}

func TestWeak_NilPointer(t *testing.T) {
	var m *model
	if ref := Weak(m); ref != nil {
		t.Errorf("expected nil ref for nil pointer")
	}
}

func TestWeak_ReleasedObject(t *testing.T) {
	m := &model{}
	ref := Weak(m)

	m.Release()
	if ref.Value() != nil {
		t.Error("expected released object not to resolve")
	}
}

func TestWeak_DoesNotKeepAlive(t *testing.T) {
	ref := func() Ref {
		m := &model{}
		_ = m.SetValue("x", 1)
		return Weak(m)
	}()

	for range 5 {
		runtime.GC()
		if ref.Value() == nil {
			return
		}
	}
	t.Error("expected collected object not to resolve")
}

func TestStrong_Released(t *testing.T) {
	o := &Object{}
	ref := Strong(o)

	if ref.Value() == nil {
		t.Fatal("expected live object")
	}
	o.Release()
	if ref.Value() != nil {
		t.Error("expected released object not to resolve")
	}
}

func TestStrong_Nil(t *testing.T) {
	if Strong(nil) != nil {
		t.Error("expected nil ref")
	}
	var o *Object
	if Strong(o) != nil {
		t.Error("expected nil ref for typed nil")
	}
}
