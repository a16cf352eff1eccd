package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/zoobzio/tether/document"
	"github.com/zoobzio/tether/kvo"
)

// Config is the tetherctl environment configuration.
type Config struct {
	Source      string            `env:"TETHER_SOURCE" envDefault:"file" validate:"oneof=file redis etcd consul nats zookeeper postgres kubernetes firestore"`
	File        string            `env:"TETHER_FILE" validate:"required_if=Source file"`
	Addr        string            `env:"TETHER_ADDR"`
	Key         string            `env:"TETHER_KEY" validate:"required_unless=Source file"`
	Bucket      string            `env:"TETHER_NATS_BUCKET" envDefault:"config"`
	Channel     string            `env:"TETHER_PG_CHANNEL" envDefault:"config_changed"`
	Format      string            `env:"TETHER_FORMAT" validate:"omitempty,oneof=json yaml yml toml"`
	Debounce    time.Duration     `env:"TETHER_DEBOUNCE" envDefault:"100ms" validate:"gte=0"`
	Bindings    map[string]string `env:"TETHER_BINDINGS" envSeparator:"," envKeyValSeparator:"=" validate:"required,min=1"`
	DirectOnly  bool              `env:"TETHER_DIRECT_ONLY"`
	Placeholder string            `env:"TETHER_PLACEHOLDER"`
	LogLevel    string            `env:"TETHER_LOG_LEVEL" envDefault:"info" validate:"oneof=trace debug info warn error"`
}

// Binding is one view property bound to a document key path.
type Binding struct {
	Name    string
	KeyPath string
}

// LoadConfig reads the configuration from environ, or from the process
// environment when environ is nil.
func LoadConfig(environ map[string]string) (Config, error) {
	var cfg Config
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and every binding's key paths.
func (c Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	// A kubeconfig is found without an address; every other store needs one.
	if c.Source != "file" && c.Source != "kubernetes" && c.Addr == "" {
		return fmt.Errorf("invalid config: TETHER_ADDR is required for source %s", c.Source)
	}
	for name, keyPath := range c.Bindings {
		if err := kvo.ValidatePath(name); err != nil {
			return fmt.Errorf("invalid config: binding name: %w", err)
		}
		if err := kvo.ValidatePath(keyPath); err != nil {
			return fmt.Errorf("invalid config: binding %q: %w", name, err)
		}
	}
	return nil
}

// Codec returns the codec named by Format, or the one matching the file
// extension. Remote keys without a known extension are read as JSON.
func (c Config) Codec() (document.Codec, error) {
	if c.Format != "" {
		return document.ForFormat(c.Format)
	}
	if c.Source == "file" {
		return document.ForPath(c.File)
	}
	if codec, err := document.ForPath(c.Key); err == nil {
		return codec, nil
	}
	return document.JSONCodec{}, nil
}

// SortedBindings returns the bindings ordered by name.
func (c Config) SortedBindings() []Binding {
	out := make([]Binding, 0, len(c.Bindings))
	for name, keyPath := range c.Bindings {
		out = append(out, Binding{Name: name, KeyPath: keyPath})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
