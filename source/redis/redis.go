// Package redis provides a document.Source backed by a Redis string key.
// Changes are detected through keyspace notifications.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Source watches a Redis key and writes documents back to it.
// Requires Redis to have keyspace notifications enabled:
//
//	CONFIG SET notify-keyspace-events KEA
//
// Or in redis.conf:
//
//	notify-keyspace-events KEA
type Source struct {
	client *redis.Client
	key    string
}

// New creates a Source for the given Redis key.
func New(client *redis.Client, key string) *Source {
	return &Source{
		client: client,
		key:    key,
	}
}

// Watch subscribes to the key's keyspace channel and emits the key's value
// now and after every write. A missing key emits nothing until it is set.
func (s *Source) Watch(ctx context.Context) (<-chan []byte, error) {
	channel := fmt.Sprintf("__keyspace@%d__:%s", s.client.Options().DB, s.key)
	pubsub := s.client.Subscribe(ctx, channel)

	// Verify subscription worked
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to keyspace notifications: %w", err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)
		defer pubsub.Close()

		val, err := s.client.Get(ctx, s.key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return
		}
		if err == nil {
			select {
			case out <- val:
			case <-ctx.Done():
				return
			}
		}

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				switch msg.Payload {
				case "set", "setex", "psetex", "setnx", "setrange", "append":
				default:
					continue
				}
				val, err := s.client.Get(ctx, s.key).Bytes()
				if err != nil {
					continue
				}
				select {
				case out <- val:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Write stores data under the key without expiry.
func (s *Source) Write(ctx context.Context, data []byte) error {
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", s.key, err)
	}
	return nil
}

// String names the source.
func (s *Source) String() string {
	return "redis:" + s.key
}
