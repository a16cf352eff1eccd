// Package firestore provides a document.Source backed by one field of a
// Firestore document, watched with realtime listeners.
package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
)

// DefaultField is the document field holding the contents.
const DefaultField = "data"

// Source watches a field of a Firestore document and writes documents back
// to it. The field holds the encoded contents as bytes or a string.
type Source struct {
	client     *firestore.Client
	collection string
	document   string
	field      string
}

// Option configures a Source.
type Option func(*Source)

// WithField sets the document field holding the contents.
func WithField(field string) Option {
	return func(s *Source) {
		s.field = field
	}
}

// New creates a Source for the given Firestore document.
func New(client *firestore.Client, collection, document string, opts ...Option) *Source {
	s := &Source{
		client:     client,
		collection: collection,
		document:   document,
		field:      DefaultField,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Source) ref() *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(s.document)
}

// Watch emits the field's contents now and on every snapshot. Snapshots of
// a missing document, or without the field, are skipped. The listener
// retries transient failures itself, so an error from it ends the watch.
func (s *Source) Watch(ctx context.Context) (<-chan []byte, error) {
	out := make(chan []byte)

	go func() {
		defer close(out)

		snapshots := s.ref().Snapshots(ctx)
		defer snapshots.Stop()

		for {
			snap, err := snapshots.Next()
			if err != nil {
				return
			}
			if !snap.Exists() {
				continue
			}

			var value []byte
			switch v := snap.Data()[s.field].(type) {
			case []byte:
				value = v
			case string:
				value = []byte(v)
			default:
				continue
			}

			select {
			case out <- value:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Write stores data in the field, leaving other fields alone.
func (s *Source) Write(ctx context.Context, data []byte) error {
	if _, err := s.ref().Set(ctx, map[string]any{s.field: data}, firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", s.collection, s.document, err)
	}
	return nil
}

// String names the source.
func (s *Source) String() string {
	return fmt.Sprintf("firestore:%s/%s#%s", s.collection, s.document, s.field)
}
