// Package config loads navguard settings.
//
// Precedence, lowest first: built-in defaults, the YAML file, NAVGUARD_*
// environment variables. Unknown YAML keys are errors.
//
//	timing:
//	  settle: 1.2s
//	  multiplier: 1.5
//	  max_settle: 5s
//	  max_attempts: 5
//	  confirm: 600ms
//	  recheck: 500ms
//	  final: 1s
//	guard:
//	  fail_closed: false
//	  predicate_timeout: 0s
//	journal:
//	  path: navguard.db
//	log:
//	  level: info
//	  format: text
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/roach88/navguard/internal/guard"
	"github.com/roach88/navguard/internal/quiesce"
)

// EnvPrefix prefixes every environment override, e.g. NAVGUARD_GUARD_FAIL_CLOSED.
const EnvPrefix = "NAVGUARD_"

// Config is the complete navguard configuration.
type Config struct {
	Timing  quiesce.Timing `yaml:"timing" envPrefix:"TIMING_"`
	Guard   Guard          `yaml:"guard" envPrefix:"GUARD_"`
	Journal Journal        `yaml:"journal" envPrefix:"JOURNAL_"`
	Log     Log            `yaml:"log" envPrefix:"LOG_"`
}

// Guard configures predicate evaluation.
type Guard struct {
	FailClosed       bool          `yaml:"fail_closed" env:"FAIL_CLOSED"`
	PredicateTimeout time.Duration `yaml:"predicate_timeout" env:"PREDICATE_TIMEOUT"`
}

// Journal configures the event journal. An empty path disables it.
type Journal struct {
	Path string `yaml:"path" env:"PATH"`
}

// Log configures the structured logger.
type Log struct {
	Level  string `yaml:"level" env:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" env:"FORMAT"` // text, json
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Timing: quiesce.DefaultTiming(),
		Log:    Log{Level: "info", Format: "text"},
	}
}

// Load reads path (skipped when empty) over the defaults, applies the
// process environment and validates the result.
func Load(path string) (Config, error) {
	return load(path, nil)
}

// LoadWithEnv is Load with an explicit environment instead of os.Environ.
func LoadWithEnv(path string, environ map[string]string) (Config, error) {
	if environ == nil {
		environ = map[string]string{}
	}
	return load(path, environ)
}

func load(path string, environ map[string]string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	opts := env.Options{Prefix: EnvPrefix, Environment: environ}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("apply environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if err := c.Timing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("timing: %w", err))
	}
	if c.Guard.PredicateTimeout < 0 {
		errs = append(errs, fmt.Errorf("guard.predicate_timeout must not be negative, got %s", c.Guard.PredicateTimeout))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// GuardOptions translates the guard settings to interceptor options.
func (c Config) GuardOptions() []guard.Option {
	return []guard.Option{
		guard.WithFailClosed(c.Guard.FailClosed),
		guard.WithPredicateTimeout(c.Guard.PredicateTimeout),
	}
}

// NewLogger builds the configured slog logger writing to w.
// verbose forces debug level.
func (c Config) NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("log.level must be debug, info, warn or error, got %q", s)
}
