package document

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// ErrNoContents is returned by Start when a source closes before emitting
// its initial contents.
var ErrNoContents = errors.New("source closed before emitting initial contents")

// Remote is a Document fed by a Source such as a key in a remote store.
type Remote struct {
	Document

	source    Source
	name      string
	debounce  time.Duration
	clock     clockz.Clock
	started   atomic.Bool
	lastError atomic.Pointer[error]
}

// NewRemote creates an empty document fed by source. A nil codec means
// JSONCodec. Call Start to begin receiving contents.
func NewRemote(source Source, codec Codec) *Remote {
	r := &Remote{
		source:   source,
		name:     describe(source),
		debounce: DefaultDebounce,
		clock:    clockz.RealClock,
	}
	r.init(codec)
	return r
}

// -----------------------------------------------------------------------------
// Chainable Instance Configuration
// -----------------------------------------------------------------------------

// Debounce sets the delay between the last change and the merge.
// The initial contents are never delayed. Must be called before Start.
func (r *Remote) Debounce(d time.Duration) *Remote {
	r.debounce = d
	return r
}

// Clock sets the clock used for the debounce timer.
// Must be called before Start.
func (r *Remote) Clock(clock clockz.Clock) *Remote {
	r.clock = clock
	return r
}

// Name returns the source name used in signals.
func (r *Remote) Name() string {
	return r.name
}

// LastError returns the most recent load or save error, or nil.
func (r *Remote) LastError() error {
	ptr := r.lastError.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// Start begins watching the source. It blocks until the initial contents
// arrive and returns the error from merging them, if any; later changes are
// merged in the background until ctx is cancelled.
func (r *Remote) Start(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	changes, err := r.source.Watch(ctx)
	if err != nil {
		r.started.Store(false)
		return fmt.Errorf("failed to start source %s: %w", r.name, err)
	}

	capitan.Emit(ctx, DocumentWatchStarted,
		KeyPath.Field(r.name),
		KeyDebounce.Field(r.debounce),
	)

	// Wait for first value and merge synchronously
	var initialErr error
	select {
	case <-ctx.Done():
		return ctx.Err()
	case raw, ok := <-changes:
		if !ok {
			r.setError(ErrNoContents)
			return fmt.Errorf("%s: %w", r.name, ErrNoContents)
		}
		initialErr = r.apply(ctx, raw)
	}

	go r.watch(ctx, changes)
	return initialErr
}

// Save writes the current contents to the source. Sources that do not
// implement Writer fail with ErrReadOnly.
func (r *Remote) Save(ctx context.Context) error {
	w, ok := r.source.(Writer)
	if !ok {
		return fmt.Errorf("save %s: %w", r.name, ErrReadOnly)
	}

	data, err := r.Marshal()
	if err == nil {
		err = w.Write(ctx, data)
	}
	if err != nil {
		err = fmt.Errorf("save %s: %w", r.name, err)
		r.setError(err)
		capitan.Emit(ctx, DocumentSaveFailed,
			KeyPath.Field(r.name),
			KeyContentType.Field(r.codec.ContentType()),
			KeyError.Field(err.Error()),
		)
		return err
	}

	capitan.Emit(ctx, DocumentSaved,
		KeyPath.Field(r.name),
		KeyContentType.Field(r.codec.ContentType()),
	)
	return nil
}

func (r *Remote) watch(ctx context.Context, changes <-chan []byte) {
	defer func() {
		capitan.Emit(ctx, DocumentWatchStopped,
			KeyPath.Field(r.name),
		)
	}()

	debounce(ctx, r.clock, r.debounce, changes, func(raw []byte) {
		_ = r.apply(ctx, raw) //nolint:errcheck // Errors stored via setError
	})
}

// apply merges raw into the document. On failure the document keeps its
// previous contents.
func (r *Remote) apply(ctx context.Context, raw []byte) error {
	if err := r.Load(raw); err != nil {
		err = fmt.Errorf("load %s: %w", r.name, err)
		r.setError(err)
		capitan.Emit(ctx, DocumentLoadFailed,
			KeyPath.Field(r.name),
			KeyContentType.Field(r.codec.ContentType()),
			KeyError.Field(err.Error()),
		)
		return err
	}

	capitan.Emit(ctx, DocumentLoaded,
		KeyPath.Field(r.name),
		KeyContentType.Field(r.codec.ContentType()),
	)
	return nil
}

// setError stores an error atomically.
func (r *Remote) setError(err error) {
	e := err
	r.lastError.Store(&e)
}
