package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yatrik/scheduler/core/scheduler"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "config.yaml", `api:
  base_url: "http://backend:5000"
  email: "admin@yatrik.test"
  password: "pw"
  page_limit: 50
schedule:
  depotIds: ["d1", "d2"]
  maxTripsPerRoute: 4
  timeGap: 45
  maxTripsPerDriver: 0
run_log:
  backend: sqlite
  path: runs.db
metrics:
  sinks:
    - type: "nop"
progress:
  sinks:
    - type: mqtt
      conf:
        broker: "tcp://localhost:1883"
server:
  addr: ":9090"
logging:
  level: DEBUG
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://backend:5000", cfg.API.BaseURL)
	assert.Equal(t, 50, cfg.API.PageLimit)
	assert.Equal(t, []string{"d1", "d2"}, cfg.Schedule.DepotIDs)
	assert.Equal(t, 4, cfg.Schedule.MaxTripsPerRoute)
	assert.Equal(t, 45, cfg.Schedule.TimeGap)
	assert.Equal(t, 0, cfg.Schedule.MaxTripsPerDriver, "explicit zero means unlimited")
	assert.Equal(t, 8, cfg.Schedule.MaxTripsPerBus, "absent keys keep defaults")
	assert.Equal(t, "08:00", cfg.Schedule.FirstDeparture)
	assert.Equal(t, scheduler.WraparoundReject, cfg.Schedule.Wraparound)
	assert.Equal(t, "sqlite", cfg.RunLog.Backend)
	require.Len(t, cfg.Metrics.Sinks, 1)
	assert.Equal(t, "/metrics", cfg.Metrics.PrometheusPath)
	require.Len(t, cfg.Progress.Sinks, 1)
	assert.Equal(t, "mqtt", cfg.Progress.Sinks[0].Type)
	assert.Equal(t, "tcp://localhost:1883", cfg.Progress.Sinks[0].Conf["broker"])
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadEnvOnly(t *testing.T) {
	t.Setenv("API_BASE", "http://localhost:5000")
	t.Setenv("ADMIN_EMAIL", "admin@yatrik.test")
	t.Setenv("ADMIN_PASSWORD", "pw")
	t.Setenv("SERVICE_DATE", "2025-07-01")
	t.Setenv("DEPOT_IDS", "d1, d2,")
	t.Setenv("YATRIK_SCHEDULE__TIMEGAP", "15")
	t.Setenv("YATRIK_SCHEDULE__AUTOASSIGNCREW", "false")
	t.Setenv("YATRIK_RUN_LOG__MAX_SIZE_MB", "3")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000", cfg.API.BaseURL)
	assert.Equal(t, "2025-07-01", cfg.Schedule.Date)
	assert.Equal(t, []string{"d1", "d2"}, cfg.Schedule.DepotIDs)
	assert.Equal(t, 15, cfg.Schedule.TimeGap)
	assert.False(t, cfg.Schedule.AutoAssignCrew)
	assert.True(t, cfg.Schedule.AutoAssignBuses)
	assert.Equal(t, 3, cfg.RunLog.MaxSizeMB)
	assert.Equal(t, "jsonl", cfg.RunLog.Backend)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "config.json", `{
  "api": {"base_url": "http://file", "email": "file@yatrik.test", "password": "pw"},
  "schedule": {"timeGap": 45, "firstDeparture": "06:00"}
}`)
	t.Setenv("API_BASE", "http://env")
	t.Setenv("YATRIK_SCHEDULE__TIMEGAP", "20")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://env", cfg.API.BaseURL)
	assert.Equal(t, 20, cfg.Schedule.TimeGap)
	assert.Equal(t, "06:00", cfg.Schedule.FirstDeparture)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("API_BASE=http://dotenv\nADMIN_EMAIL=a@b.c\nADMIN_PASSWORD=pw\n"), 0o644))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { _ = os.Chdir(wd) }()
	for _, k := range []string{"API_BASE", "ADMIN_EMAIL", "ADMIN_PASSWORD"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://dotenv", cfg.API.BaseURL)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing credentials", func(t *testing.T) {
		t.Setenv("API_BASE", "http://localhost")
		_, err := Load("")
		assert.Error(t, err)
	})
	t.Run("unsupported format", func(t *testing.T) {
		_, err := Load(writeFile(t, "config.toml", "x = 1"))
		assert.Error(t, err)
	})
	t.Run("invalid schedule", func(t *testing.T) {
		t.Setenv("API_BASE", "http://localhost")
		t.Setenv("ADMIN_EMAIL", "a@b.c")
		t.Setenv("ADMIN_PASSWORD", "pw")
		t.Setenv("YATRIK_SCHEDULE__WRAPAROUND", "loop")
		_, err := Load("")
		assert.ErrorIs(t, err, scheduler.ErrInvalidOptions)
	})
	t.Run("unknown log level", func(t *testing.T) {
		t.Setenv("API_BASE", "http://localhost")
		t.Setenv("ADMIN_EMAIL", "a@b.c")
		t.Setenv("ADMIN_PASSWORD", "pw")
		t.Setenv("YATRIK_LOGGING__LEVEL", "chatty")
		_, err := Load("")
		assert.Error(t, err)
	})
}
