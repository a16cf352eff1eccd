// Package etcd provides a document.Source backed by an etcd key, watched
// with the native Watch API.
package etcd

import (
	"context"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Source watches an etcd key and writes documents back to it.
type Source struct {
	client *clientv3.Client
	key    string
}

// New creates a Source for the given etcd key.
func New(client *clientv3.Client, key string) *Source {
	return &Source{
		client: client,
		key:    key,
	}
}

// Watch emits the key's value now and on every put. Deletions are not
// emitted.
func (s *Source) Watch(ctx context.Context) (<-chan []byte, error) {
	resp, err := s.client.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to get initial value: %w", err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)

		if len(resp.Kvs) > 0 {
			select {
			case out <- resp.Kvs[0].Value:
			case <-ctx.Done():
				return
			}
		}

		// Watch for changes starting after the revision already emitted
		watchChan := s.client.Watch(ctx, s.key, clientv3.WithRev(resp.Header.Revision+1))

		for {
			select {
			case <-ctx.Done():
				return
			case watchResp, ok := <-watchChan:
				if !ok {
					return
				}
				if err := watchResp.Err(); err != nil {
					// The watch is cancelled by the server on compaction.
					if watchResp.Canceled {
						return
					}
					continue
				}

				for _, event := range watchResp.Events {
					if event.Type != clientv3.EventTypePut {
						continue
					}
					select {
					case out <- event.Kv.Value:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return out, nil
}

// Write stores data under the key.
func (s *Source) Write(ctx context.Context, data []byte) error {
	if _, err := s.client.Put(ctx, s.key, string(data)); err != nil {
		return fmt.Errorf("failed to put %s: %w", s.key, err)
	}
	return nil
}

// String names the source.
func (s *Source) String() string {
	return "etcd:" + s.key
}
