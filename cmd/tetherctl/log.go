package main

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/tether"
	"github.com/zoobzio/tether/document"
)

func newLogger(out io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).Level(lvl).With().Timestamp().Str("app", "tetherctl").Logger()
}

// hookSignals routes binding and document events into logger.
func hookSignals(logger zerolog.Logger) {
	capitan.Hook(tether.BindingCreated, func(_ context.Context, e *capitan.Event) {
		name, _ := tether.KeyBinding.From(e)
		path, _ := tether.KeyKeyPath.From(e)
		logger.Info().Str("binding", name).Str("key_path", path).Msg("binding created")
	})

	capitan.Hook(tether.BindingReleased, func(_ context.Context, e *capitan.Event) {
		name, _ := tether.KeyBinding.From(e)
		logger.Warn().Str("binding", name).Msg("binding released with its target")
	})

	capitan.Hook(tether.BindingStateChanged, func(_ context.Context, e *capitan.Event) {
		name, _ := tether.KeyBinding.From(e)
		oldState, _ := tether.KeyOldState.From(e)
		newState, _ := tether.KeyNewState.From(e)
		logger.Debug().Str("binding", name).Str("from", oldState).Str("to", newState).Msg("binding state")
	})

	capitan.Hook(tether.PropagationSucceeded, func(_ context.Context, e *capitan.Event) {
		name, _ := tether.KeyBinding.From(e)
		dir, _ := tether.KeyDirection.From(e)
		took, _ := tether.KeyDuration.From(e)
		logger.Debug().Str("binding", name).Str("direction", dir).Dur("took", took).Msg("propagated")
	})

	capitan.Hook(tether.PropagationFailed, func(_ context.Context, e *capitan.Event) {
		name, _ := tether.KeyBinding.From(e)
		stage, _ := tether.KeyStage.From(e)
		msg, _ := tether.KeyError.From(e)
		logger.Warn().Str("binding", name).Str("stage", stage).Str("error", msg).Msg("propagation failed")
	})

	capitan.Hook(document.DocumentLoaded, func(_ context.Context, e *capitan.Event) {
		path, _ := document.KeyPath.From(e)
		logger.Info().Str("path", path).Msg("document loaded")
	})

	capitan.Hook(document.DocumentLoadFailed, func(_ context.Context, e *capitan.Event) {
		path, _ := document.KeyPath.From(e)
		msg, _ := document.KeyError.From(e)
		logger.Error().Str("path", path).Str("error", msg).Msg("document load failed")
	})

	capitan.Hook(document.DocumentSaved, func(_ context.Context, e *capitan.Event) {
		path, _ := document.KeyPath.From(e)
		logger.Info().Str("path", path).Msg("document saved")
	})

	capitan.Hook(document.DocumentSaveFailed, func(_ context.Context, e *capitan.Event) {
		path, _ := document.KeyPath.From(e)
		msg, _ := document.KeyError.From(e)
		logger.Error().Str("path", path).Str("error", msg).Msg("document save failed")
	})

	capitan.Hook(document.DocumentWatchStarted, func(_ context.Context, e *capitan.Event) {
		path, _ := document.KeyPath.From(e)
		logger.Debug().Str("path", path).Msg("watching")
	})

	capitan.Hook(document.DocumentWatchStopped, func(_ context.Context, e *capitan.Event) {
		path, _ := document.KeyPath.From(e)
		logger.Debug().Str("path", path).Msg("watch stopped")
	})
}
