package document

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// DefaultDebounce is the delay between the last file event and the reload.
const DefaultDebounce = 100 * time.Millisecond

// ErrAlreadyStarted is returned when Start is called more than once.
var ErrAlreadyStarted = errors.New("file watch already started")

// File is a Document backed by a file on disk.
type File struct {
	Document

	path      string
	debounce  time.Duration
	clock     clockz.Clock
	started   atomic.Bool
	lastError atomic.Pointer[error]
}

// Open reads path into a new File. A nil codec is chosen from the file
// extension.
func Open(path string, codec Codec) (*File, error) {
	if codec == nil {
		c, err := ForPath(path)
		if err != nil {
			return nil, err
		}
		codec = c
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	f := &File{
		path:     abs,
		debounce: DefaultDebounce,
		clock:    clockz.RealClock,
	}
	f.init(codec)
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// -----------------------------------------------------------------------------
// Chainable Instance Configuration
// -----------------------------------------------------------------------------

// Debounce sets the delay between the last file event and the reload.
// Use 0 to reload on every event. Must be called before Start.
func (f *File) Debounce(d time.Duration) *File {
	f.debounce = d
	return f
}

// Clock sets the clock used for the debounce timer.
// Use this with clockz.FakeClock for deterministic testing.
// Must be called before Start.
func (f *File) Clock(clock clockz.Clock) *File {
	f.clock = clock
	return f
}

// Path returns the absolute path of the backing file.
func (f *File) Path() string {
	return f.path
}

// LastError returns the most recent load or save error, or nil.
func (f *File) LastError() error {
	ptr := f.lastError.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// Reload reads the file and merges its contents. On failure the document
// keeps its previous contents.
func (f *File) Reload() error {
	ctx := context.Background()

	data, err := os.ReadFile(f.path)
	if err == nil {
		err = f.Load(data)
	}
	if err != nil {
		err = fmt.Errorf("load %s: %w", f.path, err)
		f.setError(err)
		capitan.Emit(ctx, DocumentLoadFailed,
			KeyPath.Field(f.path),
			KeyContentType.Field(f.codec.ContentType()),
			KeyError.Field(err.Error()),
		)
		return err
	}

	capitan.Emit(ctx, DocumentLoaded,
		KeyPath.Field(f.path),
		KeyContentType.Field(f.codec.ContentType()),
	)
	return nil
}

// Save writes the current contents to the file, keeping its permissions.
// Reloading a saved file is a no-op for observers since nothing changed.
func (f *File) Save() error {
	ctx := context.Background()

	perm := fs.FileMode(0o644)
	if info, err := os.Stat(f.path); err == nil {
		perm = info.Mode().Perm()
	}

	data, err := f.Marshal()
	if err == nil {
		err = os.WriteFile(f.path, data, perm)
	}
	if err != nil {
		err = fmt.Errorf("save %s: %w", f.path, err)
		f.setError(err)
		capitan.Emit(ctx, DocumentSaveFailed,
			KeyPath.Field(f.path),
			KeyContentType.Field(f.codec.ContentType()),
			KeyError.Field(err.Error()),
		)
		return err
	}

	capitan.Emit(ctx, DocumentSaved,
		KeyPath.Field(f.path),
		KeyContentType.Field(f.codec.ContentType()),
	)
	return nil
}

// Start watches the file and reloads it on change until ctx is cancelled.
// The containing directory is watched so that editors which replace the
// file on save are followed.
func (f *File) Start(ctx context.Context) error {
	if !f.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		f.started.Store(false)
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		watcher.Close()
		f.started.Store(false)
		return fmt.Errorf("failed to watch file %s: %w", f.path, err)
	}

	changes := make(chan struct{}, 1)
	go f.events(ctx, watcher, changes)
	go f.watch(ctx, changes)

	capitan.Emit(ctx, DocumentWatchStarted,
		KeyPath.Field(f.path),
		KeyDebounce.Field(f.debounce),
	)
	return nil
}

// events turns fsnotify events for the file into change ticks. The tick
// channel holds one pending tick; further events coalesce into it.
func (f *File) events(ctx context.Context, watcher *fsnotify.Watcher, out chan<- struct{}) {
	defer close(out)
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
			// Only reload on write or create events
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			select {
			case out <- struct{}{}:
			default:
			}

		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
			// Continue watching despite errors
		}
	}
}

// watch reloads the file after each burst of change ticks.
func (f *File) watch(ctx context.Context, changes <-chan struct{}) {
	defer func() {
		capitan.Emit(ctx, DocumentWatchStopped,
			KeyPath.Field(f.path),
		)
	}()

	debounce(ctx, f.clock, f.debounce, changes, func(struct{}) {
		_ = f.Reload() //nolint:errcheck // Errors stored via setError
	})
}

// setError stores an error atomically.
func (f *File) setError(err error) {
	e := err
	f.lastError.Store(&e)
}
