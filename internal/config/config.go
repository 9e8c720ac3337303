// Package config reads and writes the TOML configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"vektor/internal/core"
	"vektor/internal/render"
)

// Config is the whole file.
type Config struct {
	Pipeline core.Parameters `toml:"pipeline"`
	Render   RenderConfig    `toml:"render"`
	Log      LogConfig       `toml:"log"`
	Input    InputConfig     `toml:"input"`
}

// RenderConfig tunes the progressive final view.
type RenderConfig struct {
	BatchSize    int      `toml:"batch_size"`
	IdleFallback Duration `toml:"idle_fallback"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

// InputConfig controls source loading.
type InputConfig struct {
	// MaxSide downscales larger images. Zero disables it.
	MaxSide int `toml:"max_side"`
}

// Duration is a time.Duration written as a Go duration string.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

var logLevels = []string{"debug", "info", "warn", "error"}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Pipeline: core.DefaultParameters(),
		Render: RenderConfig{
			BatchSize:    render.DefaultBatchSize,
			IdleFallback: Duration{render.DefaultIdleFallback},
		},
		Log:   LogConfig{Level: "info", JSON: true},
		Input: InputConfig{MaxSide: 2048},
	}
}

// Load decodes path over the defaults. Unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := checkUndecoded(md); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode is Load for an in-memory document.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := checkUndecoded(md); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func checkUndecoded(md toml.MetaData) error {
	keys := md.Undecoded()
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}
	sort.Strings(names)
	return fmt.Errorf("unknown keys: %s", strings.Join(names, ", "))
}

// Validate checks every section.
func (c Config) Validate() error {
	var errs []error
	if err := c.Pipeline.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Render.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("render.batch_size must be positive, got %d", c.Render.BatchSize))
	}
	if c.Render.IdleFallback.Duration < 0 {
		errs = append(errs, fmt.Errorf("render.idle_fallback must not be negative, got %s", c.Render.IdleFallback))
	}
	if !validLevel(c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of %s, got %q", strings.Join(logLevels, ", "), c.Log.Level))
	}
	if c.Input.MaxSide < 0 {
		errs = append(errs, fmt.Errorf("input.max_side must not be negative, got %d", c.Input.MaxSide))
	}
	return errors.Join(errs...)
}

func validLevel(level string) bool {
	for _, l := range logLevels {
		if l == level {
			return true
		}
	}
	return false
}

// Write encodes cfg as TOML.
func Write(w io.Writer, cfg Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
