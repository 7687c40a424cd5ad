// Package config loads shiftkeeper settings. Values are layered: built-in
// defaults, then the YAML file, then SHIFTKEEPER_* environment variables
// (optionally read from a .env file), then command-line flags applied by the
// caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/shiftkeeper/pkg/reconciler"
	"github.com/cuemby/shiftkeeper/pkg/shifttime"
	"github.com/cuemby/shiftkeeper/pkg/storage"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage drivers
const (
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
)

// SQLiteFile is the database file name inside the data dir
const SQLiteFile = "shiftkeeper.sqlite"

// EnvPrefix prefixes every environment override
const EnvPrefix = "SHIFTKEEPER_"

// Config is the full daemon configuration
type Config struct {
	Timezone   string           `yaml:"timezone"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Storage    StorageConfig    `yaml:"storage"`
	API        APIConfig        `yaml:"api"`
	Log        LogConfig        `yaml:"log"`
}

// ReconcilerConfig holds the tick period, windows and tolerances
type ReconcilerConfig struct {
	Interval           time.Duration `yaml:"interval"`
	Lookback           time.Duration `yaml:"lookback"`
	Lookahead          time.Duration `yaml:"lookahead"`
	CatchUpLookback    time.Duration `yaml:"catchUpLookback"`
	ArrivalTolerance   time.Duration `yaml:"arrivalTolerance"`
	DepartureTolerance time.Duration `yaml:"departureTolerance"`
}

// StorageConfig selects the backend
type StorageConfig struct {
	Driver  string `yaml:"driver"`
	DataDir string `yaml:"dataDir"`
}

// APIConfig configures the HTTP listeners. ReadOnlyAddr, when set, serves a
// second listener that rejects writes.
type APIConfig struct {
	Addr         string   `yaml:"addr"`
	ReadOnlyAddr string   `yaml:"readOnlyAddr,omitempty"`
	CORSOrigins  []string `yaml:"corsOrigins,omitempty"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the built-in configuration
func Default() *Config {
	rc := reconciler.DefaultConfig()
	return &Config{
		Timezone: "UTC",
		Reconciler: ReconcilerConfig{
			Interval:           rc.Interval,
			Lookback:           rc.Lookback,
			Lookahead:          rc.Lookahead,
			CatchUpLookback:    rc.CatchUpLookback,
			ArrivalTolerance:   rc.ArrivalTolerance,
			DepartureTolerance: rc.DepartureTolerance,
		},
		Storage: StorageConfig{
			Driver:  DriverBolt,
			DataDir: "./shiftkeeper-data",
		},
		API: APIConfig{
			Addr: "127.0.0.1:8080",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from path (skipped when empty) and the
// environment. envFile names a .env file to load first; a missing file is
// ignored.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"TIMEZONE":          &c.Timezone,
		"STORAGE_DRIVER":    &c.Storage.Driver,
		"DATA_DIR":          &c.Storage.DataDir,
		"API_ADDR":          &c.API.Addr,
		"API_READONLY_ADDR": &c.API.ReadOnlyAddr,
		"LOG_LEVEL":         &c.Log.Level,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"INTERVAL":            &c.Reconciler.Interval,
		"LOOKBACK":            &c.Reconciler.Lookback,
		"LOOKAHEAD":           &c.Reconciler.Lookahead,
		"CATCHUP_LOOKBACK":    &c.Reconciler.CatchUpLookback,
		"ARRIVAL_TOLERANCE":   &c.Reconciler.ArrivalTolerance,
		"DEPARTURE_TOLERANCE": &c.Reconciler.DepartureTolerance,
	}
	for key, dst := range durations {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
		}
		*dst = d
	}

	if v, ok := lookup(EnvPrefix + "CORS_ORIGINS"); ok && v != "" {
		c.API.CORSOrigins = strings.Split(v, ",")
	}

	if v, ok := lookup(EnvPrefix + "LOG_JSON"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sLOG_JSON: %w", EnvPrefix, err)
		}
		c.Log.JSON = b
	}
	return nil
}

// Validate checks the configuration for values the daemon cannot run with
func (c *Config) Validate() error {
	if _, err := shifttime.NewResolver(c.Timezone); err != nil {
		return err
	}

	switch c.Storage.Driver {
	case DriverBolt, DriverSQLite:
	default:
		return fmt.Errorf("unknown storage driver %q (want %s or %s)", c.Storage.Driver, DriverBolt, DriverSQLite)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage data dir is required")
	}

	r := c.Reconciler
	if r.Interval <= 0 || r.Lookback <= 0 || r.Lookahead <= 0 || r.CatchUpLookback <= 0 {
		return fmt.Errorf("reconciler interval and windows must be positive")
	}
	if r.ArrivalTolerance < 0 || r.DepartureTolerance < 0 {
		return fmt.Errorf("tolerances must not be negative")
	}
	if r.CatchUpLookback < r.Lookback {
		return fmt.Errorf("catch-up lookback %s is shorter than lookback %s", r.CatchUpLookback, r.Lookback)
	}
	return nil
}

// ReconcilerConfig converts the settings for reconciler.NewReconciler
func (c *Config) ReconcilerConfig() reconciler.Config {
	return reconciler.Config{
		Interval:           c.Reconciler.Interval,
		Lookback:           c.Reconciler.Lookback,
		Lookahead:          c.Reconciler.Lookahead,
		CatchUpLookback:    c.Reconciler.CatchUpLookback,
		ArrivalTolerance:   c.Reconciler.ArrivalTolerance,
		DepartureTolerance: c.Reconciler.DepartureTolerance,
	}
}

// Resolver returns the time resolver for the configured timezone
func (c *Config) Resolver() (*shifttime.Resolver, error) {
	return shifttime.NewResolver(c.Timezone)
}

// OpenStore opens the configured storage backend, creating the data dir
func (c *Config) OpenStore() (storage.Store, error) {
	if err := os.MkdirAll(c.Storage.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	switch c.Storage.Driver {
	case DriverSQLite:
		store, err := storage.NewSQLiteStore(filepath.Join(c.Storage.DataDir, SQLiteFile))
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverBolt:
		store, err := storage.NewBoltStore(c.Storage.DataDir)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
}
