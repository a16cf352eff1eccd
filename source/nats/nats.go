// Package nats provides a document.Source backed by a NATS JetStream
// key-value entry.
package nats

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// Source watches a NATS KV key and writes documents back to it.
type Source struct {
	kv  jetstream.KeyValue
	key string
}

// New creates a Source for the given key in kv.
func New(kv jetstream.KeyValue, key string) *Source {
	return &Source{
		kv:  kv,
		key: key,
	}
}

// Watch emits the key's latest value now and every later revision.
// Deletes and purges are not emitted.
func (s *Source) Watch(ctx context.Context) (<-chan []byte, error) {
	watcher, err := s.kv.Watch(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to watch key: %w", err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)
		defer watcher.Stop() //nolint:errcheck // Nothing to do on stop failure

		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					return
				}
				// nil marks the end of the initial values
				if entry == nil {
					continue
				}
				if op := entry.Operation(); op == jetstream.KeyValueDelete || op == jetstream.KeyValuePurge {
					continue
				}

				select {
				case out <- entry.Value():
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Write stores data as a new revision of the key.
func (s *Source) Write(ctx context.Context, data []byte) error {
	if _, err := s.kv.Put(ctx, s.key, data); err != nil {
		return fmt.Errorf("failed to put %s: %w", s.key, err)
	}
	return nil
}

// String names the source.
func (s *Source) String() string {
	return fmt.Sprintf("nats:%s/%s", s.kv.Bucket(), s.key)
}
