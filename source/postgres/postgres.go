// Package postgres provides a document.Source backed by a row of a
// PostgreSQL key-value table, watched with LISTEN/NOTIFY.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultTable is the table queried for values.
const DefaultTable = "config"

// Source watches a row of a key-value table and writes documents back to it.
// The table needs a text key column and a bytea value column, and a trigger
// that notifies the channel with the row key on every insert or update:
//
//	CREATE TABLE config (
//	    key   TEXT PRIMARY KEY,
//	    value BYTEA NOT NULL
//	);
//
//	CREATE OR REPLACE FUNCTION notify_config_change() RETURNS trigger AS $$
//	BEGIN
//	    PERFORM pg_notify('config_changed', NEW.key);
//	    RETURN NEW;
//	END;
//	$$ LANGUAGE plpgsql;
//
//	CREATE TRIGGER config_change_trigger
//	    AFTER INSERT OR UPDATE ON config
//	    FOR EACH ROW EXECUTE FUNCTION notify_config_change();
type Source struct {
	pool    *pgxpool.Pool
	channel string
	key     string
	table   string
}

// Option configures a Source.
type Option func(*Source)

// WithTable sets the table queried for values.
func WithTable(table string) Option {
	return func(s *Source) {
		s.table = table
	}
}

// New creates a Source for the row key, notified on channel.
func New(pool *pgxpool.Pool, channel, key string, opts ...Option) *Source {
	s := &Source{
		pool:    pool,
		channel: channel,
		key:     key,
		table:   DefaultTable,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Watch listens on the channel and emits the row's value now and after
// every notification carrying the row key. A missing row emits nothing
// until it is inserted.
func (s *Source) Watch(ctx context.Context) (<-chan []byte, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{s.channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to listen on channel %s: %w", s.channel, err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)
		defer conn.Release()

		emit := func() bool {
			value, err := s.fetchValue(ctx)
			if err != nil || value == nil {
				return true
			}
			select {
			case out <- value:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}

		for {
			notification, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() != nil || conn.Conn().IsClosed() {
					return
				}
				continue
			}
			if notification.Payload != s.key {
				continue
			}
			if !emit() {
				return
			}
		}
	}()

	return out, nil
}

// fetchValue reads the row's value, or nil when the row is missing.
func (s *Source) fetchValue(ctx context.Context) ([]byte, error) {
	query := fmt.Sprintf("SELECT value FROM %s WHERE key = $1", pgx.Identifier{s.table}.Sanitize())

	var value []byte
	err := s.pool.QueryRow(ctx, query, s.key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Write upserts data as the row's value.
func (s *Source) Write(ctx context.Context, data []byte) error {
	query := fmt.Sprintf(
		"INSERT INTO %s (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value",
		pgx.Identifier{s.table}.Sanitize(),
	)
	if _, err := s.pool.Exec(ctx, query, s.key, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.key, err)
	}
	return nil
}

// String names the source.
func (s *Source) String() string {
	return fmt.Sprintf("postgres:%s/%s", s.table, s.key)
}
