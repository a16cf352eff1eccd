package document

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/tether"
	"github.com/zoobzio/tether/kvo"
)

// failingSource cannot be watched.
type failingSource struct{ err error }

func (s failingSource) Watch(context.Context) (<-chan []byte, error) {
	return nil, s.err
}

// readOnlySource emits fixed contents and cannot be written.
type readOnlySource struct{ data []byte }

func (s readOnlySource) Watch(ctx context.Context) (<-chan []byte, error) {
	out := make(chan []byte, 1)
	out <- s.data
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out, nil
}

func startRemote(t *testing.T, ctx context.Context, r *Remote) {
	t.Helper()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
}

func TestRemote_StartLoadsInitialContents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan []byte, 1)
	ch <- []byte(`{"server": {"port": 8080}}`)
	r := NewRemote(NewChannelSource(ch), nil)
	startRemote(t, ctx, r)

	if v := mustValue(t, r, "server.port"); v != float64(8080) {
		t.Errorf("expected 8080, got %v", v)
	}
	if r.Name() != "channel" {
		t.Errorf("expected channel, got %s", r.Name())
	}
}

func TestRemote_StartInvalidInitialContents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan []byte, 2)
	ch <- []byte(`{not json`)
	r := NewRemote(NewChannelSource(ch), nil).Debounce(0)

	if err := r.Start(ctx); err == nil {
		t.Fatal("expected decode error")
	}
	if r.LastError() == nil {
		t.Error("expected LastError to be set")
	}

	// The watch keeps running after a bad initial value.
	ch <- []byte(`{"ok": true}`)
	eventually(t, func() bool {
		v, _ := r.Value("ok")
		return v == true
	})
}

func TestRemote_StartClosedSource(t *testing.T) {
	ch := make(chan []byte)
	close(ch)
	r := NewRemote(NewChannelSource(ch), nil)

	err := r.Start(context.Background())
	if !errors.Is(err, ErrNoContents) {
		t.Errorf("expected ErrNoContents, got %v", err)
	}
}

func TestRemote_StartWatchError(t *testing.T) {
	errDown := errors.New("down")
	r := NewRemote(failingSource{err: errDown}, nil)

	if err := r.Start(context.Background()); !errors.Is(err, errDown) {
		t.Fatalf("expected down error, got %v", err)
	}
	// A failed start may be retried.
	if err := r.Start(context.Background()); errors.Is(err, ErrAlreadyStarted) {
		t.Error("expected retry after failed start")
	}
}

func TestRemote_StartTwice(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRemote(readOnlySource{data: []byte(`{}`)}, nil)
	startRemote(t, ctx, r)

	if err := r.Start(ctx); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestRemote_DebouncesUpdates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockz.NewFakeClock()
	ch := make(chan []byte, 4)
	ch <- []byte(`{"v": 1}`)
	r := NewRemote(NewChannelSource(ch), nil).Debounce(100 * time.Millisecond).Clock(clock)
	startRemote(t, ctx, r)

	ch <- []byte(`{"v": 2}`)
	ch <- []byte(`{"v": 3}`)

	// Allow goroutine to receive changes
	time.Sleep(10 * time.Millisecond)

	if v := mustValue(t, r, "v"); v != float64(1) {
		t.Errorf("expected no merge while debouncing, got %v", v)
	}

	clock.Advance(150 * time.Millisecond)
	clock.BlockUntilReady()

	eventually(t, func() bool {
		v, _ := r.Value("v")
		return v == float64(3)
	})
}

func TestRemote_InvalidUpdateKeepsContents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan []byte, 2)
	ch <- []byte(`{"name": "kept"}`)
	r := NewRemote(NewChannelSource(ch), nil).Debounce(0)
	startRemote(t, ctx, r)

	ch <- []byte(`{broken`)
	eventually(t, func() bool { return r.LastError() != nil })

	if v := mustValue(t, r, "name"); v != "kept" {
		t.Errorf("expected kept, got %v", v)
	}
}

func TestRemote_SaveReadOnly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRemote(readOnlySource{data: []byte(`{}`)}, nil)
	startRemote(t, ctx, r)

	if err := r.Save(ctx); !errors.Is(err, ErrReadOnly) {
		t.Errorf("expected ErrReadOnly, got %v", err)
	}

	ch := make(chan []byte, 1)
	ch <- []byte(`{}`)
	r = NewRemote(NewChannelSource(ch), nil)
	startRemote(t, ctx, r)
	if err := r.Save(ctx); !errors.Is(err, ErrReadOnly) {
		t.Errorf("expected ErrReadOnly without writes, got %v", err)
	}
	if !errors.Is(r.LastError(), ErrReadOnly) {
		t.Errorf("expected LastError to record the failure, got %v", r.LastError())
	}
}

func TestRemote_Save(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan []byte, 1)
	ch <- []byte("name: app\n")
	writes := make(chan []byte, 1)
	r := NewRemote(NewChannelSource(ch).WithWrites(writes), YAMLCodec{})
	startRemote(t, ctx, r)

	if err := r.SetValue("name", "renamed"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}
	if err := r.Save(ctx); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	select {
	case data := <-writes:
		if !strings.Contains(string(data), "name: renamed") {
			t.Errorf("expected saved contents, got %q", data)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for write")
	}
}

func TestRemote_AsBindingTarget(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan []byte, 2)
	ch <- []byte(`{"feature": {"enabled": false}}`)
	r := NewRemote(NewChannelSource(ch), nil).Debounce(0)
	startRemote(t, ctx, r)

	type toggle struct{ tether.Object }
	view := &toggle{}
	engine := tether.New()
	if err := engine.Bind(view, "on", kvo.Weak(r), "feature.enabled"); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if v, _ := view.Value("on"); v != false {
		t.Errorf("expected false, got %v", v)
	}

	ch <- []byte(`{"feature": {"enabled": true}}`)
	eventually(t, func() bool {
		v, _ := view.Value("on")
		return v == true
	})
	runtime.KeepAlive(r)
}
