package document

import (
	"context"
	"errors"
	"fmt"
)

// ErrReadOnly is returned by Save when the source cannot store contents.
var ErrReadOnly = errors.New("document source is read-only")

// Source delivers the raw contents of a remote document.
// Implementations emit the current contents as soon as Watch is called,
// then emit again on every change. The channel is closed when ctx is
// cancelled or the source fails permanently.
type Source interface {
	Watch(ctx context.Context) (<-chan []byte, error)
}

// Writer is implemented by sources that can store new contents.
type Writer interface {
	Write(ctx context.Context, data []byte) error
}

// describe names a source in signals and errors.
func describe(s Source) string {
	if named, ok := s.(fmt.Stringer); ok {
		return named.String()
	}
	return fmt.Sprintf("%T", s)
}

// ChannelSource adapts an existing byte channel to a Source.
// Useful for testing and for producers that already emit contents.
type ChannelSource struct {
	ch     <-chan []byte
	writes chan<- []byte
}

// NewChannelSource creates a source that forwards values from ch.
func NewChannelSource(ch <-chan []byte) *ChannelSource {
	return &ChannelSource{ch: ch}
}

// WithWrites makes the source writable: saved contents are sent to out.
func (s *ChannelSource) WithWrites(out chan<- []byte) *ChannelSource {
	s.writes = out
	return s
}

// Watch returns a channel that emits values from the wrapped channel.
func (s *ChannelSource) Watch(ctx context.Context) (<-chan []byte, error) {
	out := make(chan []byte)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-s.ch:
				if !ok {
					return
				}
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Write sends data to the writes channel, or fails with ErrReadOnly.
func (s *ChannelSource) Write(ctx context.Context, data []byte) error {
	if s.writes == nil {
		return ErrReadOnly
	}
	select {
	case s.writes <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// String names the source.
func (s *ChannelSource) String() string {
	return "channel"
}
