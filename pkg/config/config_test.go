package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, time.Minute, cfg.Reconciler.Interval)
	assert.Equal(t, 90*time.Second, cfg.Reconciler.Lookback)
	assert.Equal(t, 30*time.Second, cfg.Reconciler.Lookahead)
	assert.Equal(t, 24*time.Hour, cfg.Reconciler.CatchUpLookback)
	assert.Equal(t, 5*time.Minute, cfg.Reconciler.ArrivalTolerance)
	assert.Equal(t, DriverBolt, cfg.Storage.Driver)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "shiftkeeper.yaml", `
timezone: America/Chicago
reconciler:
  interval: 30s
  lookback: 2m
  arrivalTolerance: 10m
storage:
  driver: sqlite
  dataDir: /var/lib/shiftkeeper
log:
  level: debug
  json: true
`)

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, "America/Chicago", cfg.Timezone)
	assert.Equal(t, 30*time.Second, cfg.Reconciler.Interval)
	assert.Equal(t, 2*time.Minute, cfg.Reconciler.Lookback)
	assert.Equal(t, 10*time.Minute, cfg.Reconciler.ArrivalTolerance)
	// Unset keys keep their defaults
	assert.Equal(t, 30*time.Second, cfg.Reconciler.Lookahead)
	assert.Equal(t, 5*time.Minute, cfg.Reconciler.DepartureTolerance)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "/var/lib/shiftkeeper", cfg.Storage.DataDir)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)

	rc := cfg.ReconcilerConfig()
	assert.Equal(t, 30*time.Second, rc.Interval)
	assert.Equal(t, 10*time.Minute, rc.ArrivalTolerance)

	resolver, err := cfg.Resolver()
	require.NoError(t, err)
	assert.Equal(t, "America/Chicago", resolver.Location.String())
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeFile(t, "shiftkeeper.yaml", "timezone: Europe/Berlin\n")
	t.Setenv("SHIFTKEEPER_TIMEZONE", "America/New_York")
	t.Setenv("SHIFTKEEPER_LOOKAHEAD", "45s")
	t.Setenv("SHIFTKEEPER_LOG_JSON", "true")
	t.Setenv("SHIFTKEEPER_CORS_ORIGINS", "http://kiosk.local,http://localhost:3000")

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", cfg.Timezone)
	assert.Equal(t, []string{"http://kiosk.local", "http://localhost:3000"}, cfg.API.CORSOrigins)
	assert.Equal(t, 45*time.Second, cfg.Reconciler.Lookahead)
	assert.True(t, cfg.Log.JSON)
}

func TestLoad_DotEnv(t *testing.T) {
	envFile := writeFile(t, ".env", "SHIFTKEEPER_API_ADDR=0.0.0.0:9000\nSHIFTKEEPER_STORAGE_DRIVER=sqlite\n")
	t.Cleanup(func() {
		os.Unsetenv("SHIFTKEEPER_API_ADDR")
		os.Unsetenv("SHIFTKEEPER_STORAGE_DRIVER")
	})

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.API.Addr)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)

	// A missing .env is not an error
	_, err = Load("", filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, err)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "bad timezone", yaml: "timezone: Mars/Olympus\n"},
		{name: "bad driver", yaml: "storage:\n  driver: postgres\n"},
		{name: "zero interval", yaml: "reconciler:\n  interval: 0s\n"},
		{name: "negative tolerance", yaml: "reconciler:\n  arrivalTolerance: -1m\n"},
		{name: "catch-up shorter than lookback", yaml: "reconciler:\n  catchUpLookback: 1m\n"},
		{name: "malformed yaml", yaml: "reconciler: [\n"},
		{name: "bad env duration", env: map[string]string{"SHIFTKEEPER_INTERVAL": "soon"}},
		{name: "bad env bool", env: map[string]string{"SHIFTKEEPER_LOG_JSON": "maybe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.yaml != "" {
				path = writeFile(t, "shiftkeeper.yaml", tt.yaml)
			}
			_, err := Load(path, "")
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.Error(t, err)
}

func TestOpenStore(t *testing.T) {
	for _, driver := range []string{DriverBolt, DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			cfg := Default()
			cfg.Storage.Driver = driver
			cfg.Storage.DataDir = filepath.Join(t.TempDir(), "nested", "data")

			store, err := cfg.OpenStore()
			require.NoError(t, err)
			require.NoError(t, store.Close())
		})
	}
}
