// Package main provides tetherctl, which binds a view to a watched
// configuration document and logs every change.
//
// Configuration is read from the environment:
//
//	TETHER_FILE=config.yaml \
//	TETHER_BINDINGS=port=server.port,host=server.host \
//	tetherctl
//
// The document can also live in a remote store. TETHER_SOURCE selects it,
// TETHER_ADDR is its address (a DSN for postgres, a project ID for
// firestore, an optional kubeconfig path for kubernetes) and TETHER_KEY the
// entry holding the document:
//
//	TETHER_SOURCE=etcd TETHER_ADDR=localhost:2379 TETHER_KEY=app.yaml \
//	TETHER_BINDINGS=workers=limits.workers \
//	tetherctl
//
// Kubernetes keys are namespace/name/key; firestore keys are
// collection/document with an optional #field.
//
// With -set, values are written to the view, propagated to the document and
// saved back to its file or store.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

func main() {
	var sets []string
	var printOnly bool

	flag.Func("set", "write name=value to a bound property and save (repeatable)", func(s string) error {
		sets = append(sets, s)
		return nil
	})
	flag.BoolVar(&printOnly, "print", false, "print the bound properties and exit")
	flag.Parse()

	cfg, err := LoadConfig(nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := newLogger(os.Stderr, cfg.LogLevel)
	hookSignals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, sets, printOnly); err != nil {
		logger.Error().Err(err).Msg("tetherctl stopped")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, logger zerolog.Logger, sets []string, printOnly bool) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer a.Close()

	if len(sets) > 0 {
		if err := a.Set(ctx, sets); err != nil {
			return fmt.Errorf("set values: %w", err)
		}
	}
	if printOnly || len(sets) > 0 {
		out, err := yaml.Marshal(a.Snapshot())
		if err != nil {
			return fmt.Errorf("print view: %w", err)
		}
		_, err = os.Stdout.Write(out)
		return err
	}

	return a.Run(ctx)
}
