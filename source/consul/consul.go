// Package consul provides a document.Source backed by a Consul KV key,
// watched with blocking queries.
package consul

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/consul/api"
)

// DefaultRetryInterval is the pause after a failed blocking query.
const DefaultRetryInterval = time.Second

// Source watches a Consul KV key and writes documents back to it.
type Source struct {
	client *api.Client
	key    string
	retry  time.Duration
}

// Option configures a Source.
type Option func(*Source)

// WithRetryInterval sets the pause after a failed blocking query.
func WithRetryInterval(d time.Duration) Option {
	return func(s *Source) {
		s.retry = d
	}
}

// New creates a Source for the given Consul KV key.
func New(client *api.Client, key string, opts ...Option) *Source {
	s := &Source{
		client: client,
		key:    key,
		retry:  DefaultRetryInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Watch emits the key's value now and whenever its modify index advances.
// Deletions are not emitted.
func (s *Source) Watch(ctx context.Context) (<-chan []byte, error) {
	kv := s.client.KV()

	pair, meta, err := kv.Get(s.key, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to get initial value: %w", err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)

		lastIndex := meta.LastIndex

		if pair != nil {
			select {
			case out <- pair.Value:
			case <-ctx.Done():
				return
			}
		}

		for {
			opts := (&api.QueryOptions{WaitIndex: lastIndex}).WithContext(ctx)
			pair, meta, err := kv.Get(s.key, opts)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.retry):
				}
				continue
			}

			// The index can move backwards after a snapshot restore.
			if meta.LastIndex < lastIndex {
				lastIndex = 0
				continue
			}
			if meta.LastIndex == lastIndex {
				continue
			}
			lastIndex = meta.LastIndex
			if pair == nil {
				continue
			}

			select {
			case out <- pair.Value:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Write stores data under the key.
func (s *Source) Write(ctx context.Context, data []byte) error {
	opts := (&api.WriteOptions{}).WithContext(ctx)
	if _, err := s.client.KV().Put(&api.KVPair{Key: s.key, Value: data}, opts); err != nil {
		return fmt.Errorf("failed to put %s: %w", s.key, err)
	}
	return nil
}

// String names the source.
func (s *Source) String() string {
	return "consul:" + s.key
}
