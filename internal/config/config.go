// Package config loads the lcquant settings from a YAML file and
// LCQUANT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/524D/lcquant/internal/scheduler"
)

// EnvPrefix prefixes all environment variables, e.g. LCQUANT_PROCESSING_WORKERS.
// Keys are the section and field names, words separated by underscores.
const EnvPrefix = "LCQUANT"

// Config is the complete configuration
type Config struct {
	Processing  ProcessingConfig  `yaml:"processing"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Fragment    FragmentConfig    `yaml:"fragment"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ProcessingConfig controls the batch run
type ProcessingConfig struct {
	Mode      string `yaml:"mode" validate:"required"`
	BatchSize int    `yaml:"batch_size" split_words:"true" validate:"min=1"`
	// Workers is the pool size, 0 derives it from CPUs and memory
	Workers int `yaml:"workers" validate:"min=0"`
	// Executor is "pool" for the worker pool or "group" for one
	// goroutine per file
	Executor string `yaml:"executor" validate:"oneof=pool group"`
	// MassAccuracy is relative, 1e-4 is 100 ppm
	MassAccuracy float64 `yaml:"mass_accuracy" split_words:"true" validate:"gt=0,lt=1"`
	MSLevel      int     `yaml:"ms_level" split_words:"true" validate:"min=0"`
	TIC          bool    `yaml:"tic"`
	CacheSize    int     `yaml:"cache_size" split_words:"true" validate:"min=0"`
	// RTTolerance is the maximum distance in minutes between an XIC
	// maximum and the LC peak it is matched to
	RTTolerance float64 `yaml:"rt_tolerance" split_words:"true" validate:"gte=0"`
}

type CalibrationConfig struct {
	LogX bool `yaml:"log_x" split_words:"true"`
	LogY bool `yaml:"log_y" split_words:"true"`
}

// FragmentConfig controls the fragment scan lookup
type FragmentConfig struct {
	MzTolerance float64 `yaml:"mz_tolerance" split_words:"true" validate:"gt=0"`
	TimeWindow  float64 `yaml:"time_window" split_words:"true" validate:"gt=0"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
	// File receives the log in addition to stderr when set
	File string `yaml:"file"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set
type MetricsConfig struct {
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Processing: ProcessingConfig{
			Mode:         string(scheduler.ModeLCMS),
			BatchSize:    scheduler.DefaultBatchSize,
			Executor:     "pool",
			MassAccuracy: 1e-4,
			RTTolerance:  0.1,
			CacheSize:    64,
		},
		Fragment: FragmentConfig{
			MzTolerance: 0.005,
			TimeWindow:  0.5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load returns the defaults, overlaid by the YAML file at path (if path
// is not empty) and then by environment variables, and validates the
// result
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		defer f.Close()
		if err := decode(f, &cfg); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decode reads YAML into cfg. Keys absent from the file keep their
// value; unknown keys are an error.
func decode(r io.Reader, cfg *Config) error {
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	if err := d.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks all values
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := scheduler.ParseMode(c.Processing.Mode); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Write encodes c as YAML
func (c *Config) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
