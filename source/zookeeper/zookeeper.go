// Package zookeeper provides a document.Source backed by a ZooKeeper node.
package zookeeper

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-zookeeper/zk"
)

// Source watches a ZooKeeper node and writes documents back to it.
type Source struct {
	conn *zk.Conn
	path string
	acl  []zk.ACL
}

// Option configures a Source.
type Option func(*Source)

// WithACL sets the ACL used when Write has to create the node.
// Defaults to zk.WorldACL(zk.PermAll).
func WithACL(acl []zk.ACL) Option {
	return func(s *Source) {
		s.acl = acl
	}
}

// New creates a Source for the given node path.
func New(conn *zk.Conn, path string, opts ...Option) *Source {
	s := &Source{
		conn: conn,
		path: path,
		acl:  zk.WorldACL(zk.PermAll),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Watch emits the node's data now and after every change. A missing node
// emits nothing until it is created.
func (s *Source) Watch(ctx context.Context) (<-chan []byte, error) {
	out := make(chan []byte)

	go func() {
		defer close(out)

		for {
			data, _, events, err := s.conn.GetW(s.path)
			if err != nil {
				if ctx.Err() != nil || !errors.Is(err, zk.ErrNoNode) {
					return
				}
				// Wait for the node to be created
				exists, _, events, err := s.conn.ExistsW(s.path)
				if err != nil {
					return
				}
				if exists {
					continue
				}
				select {
				case <-ctx.Done():
					return
				case <-events:
				}
				continue
			}

			select {
			case out <- data:
			case <-ctx.Done():
				return
			}

			// Watches fire once; loop to read the new data and set a new one
			select {
			case <-ctx.Done():
				return
			case <-events:
			}
		}
	}()

	return out, nil
}

// Write replaces the node's data, creating the node when it is missing.
// Parent nodes must exist.
func (s *Source) Write(_ context.Context, data []byte) error {
	_, err := s.conn.Set(s.path, data, -1)
	if errors.Is(err, zk.ErrNoNode) {
		_, err = s.conn.Create(s.path, data, 0, s.acl)
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	return nil
}

// String names the source.
func (s *Source) String() string {
	return "zookeeper:" + s.path
}
