package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/zoobzio/tether"
	"gopkg.in/yaml.v3"
)

// View is the bound side: one property per configured binding.
type View struct {
	tether.Object
}

type app struct {
	cfg    Config
	logger zerolog.Logger
	engine *tether.Engine
	store  store
	view   *View
}

func newApp(ctx context.Context, cfg Config, logger zerolog.Logger) (*app, error) {
	s, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		engine: tether.New().ErrorHistorySize(16),
		store:  s,
		view:   &View{},
	}
	if err := a.bind(); err != nil {
		s.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) options() []tether.Option {
	var opts []tether.Option
	if a.cfg.DirectOnly {
		opts = append(opts, tether.DirectOnly())
	}
	if a.cfg.Placeholder != "" {
		opts = append(opts, tether.WithNullPlaceholder(a.cfg.Placeholder))
	}
	return opts
}

func (a *app) bind() error {
	opts := a.options()
	for _, b := range a.cfg.SortedBindings() {
		err := a.engine.Bind(a.view, b.Name, a.store.Ref(), b.KeyPath, opts...)
		if errors.Is(err, tether.ErrInvalidArgument) {
			return fmt.Errorf("bind %s: %w", b.Name, err)
		}
		// Unresolved paths recover once the document gains them.
		if err != nil {
			a.logger.Warn().Err(err).Str("binding", b.Name).Msg("initial sync failed")
		}
		if _, err := a.view.Observe(b.Name, a.changed(b.Name)); err != nil {
			return fmt.Errorf("observe %s: %w", b.Name, err)
		}
	}
	return nil
}

func (a *app) changed(name string) func() {
	return func() {
		v, _ := a.view.Value(name)
		a.logger.Info().Str("property", name).Interface("value", v).Msg("view changed")
	}
}

// Set applies name=value assignments to the view and saves the document.
// Values are parsed as YAML scalars, so "8080" is a number and "true" a bool.
func (a *app) Set(ctx context.Context, assignments []string) error {
	if a.cfg.DirectOnly {
		return errors.New("view is direct-only; values cannot be written back")
	}
	for _, assignment := range assignments {
		name, raw, ok := strings.Cut(assignment, "=")
		if !ok {
			return fmt.Errorf("invalid assignment %q: expected name=value", assignment)
		}
		if _, bound := a.cfg.Bindings[name]; !bound {
			return fmt.Errorf("unknown property %q", name)
		}
		if err := a.view.SetValue(name, parseScalar(raw)); err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
	}
	return a.store.Save(ctx)
}

// Snapshot returns the current view properties.
func (a *app) Snapshot() map[string]any {
	return a.view.Snapshot()
}

// Run follows the document until ctx is cancelled.
func (a *app) Run(ctx context.Context) error {
	a.logger.Info().Str("source", a.store.Name()).Int("bindings", a.view.Len()).Msg("watching")
	if err := a.store.Watch(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	a.engine.UnbindAll(a.view)
	return nil
}

// Close releases the document's client.
func (a *app) Close() {
	a.engine.UnbindAll(a.view)
	a.store.Close()
}

func parseScalar(raw string) any {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	switch v.(type) {
	case nil, map[string]any, []any:
		return raw
	default:
		return v
	}
}
