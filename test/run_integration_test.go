package test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yatrik/scheduler/app"
	"github.com/yatrik/scheduler/config"
	"github.com/yatrik/scheduler/core/runlog"
	"github.com/yatrik/scheduler/core/scheduler"
	"github.com/yatrik/scheduler/test/util"
)

func newConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{Schedule: scheduler.DefaultOptions()}
	cfg.Schedule.Date = "2025-03-14"
	cfg.Schedule.Timezone = "UTC"
	cfg.RunLog.Backend = "sqlite"
	cfg.RunLog.Path = filepath.Join(t.TempDir(), "runs.db")
	cfg.RunLog.StoreReports = true
	return cfg
}

// TestRunOverHTTPBackend drives a full run through the real API client
// against the fake backend and checks the run log and metrics.
func TestRunOverHTTPBackend(t *testing.T) {
	apiCfg, fake, stop := util.StartBackend(util.SeededStore())
	defer stop()
	cfg := newConfig(t)
	cfg.API = apiCfg
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	svc, err := app.New(cfg)
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()

	rep, err := svc.Schedule(context.Background(), svc.Defaults())
	require.NoError(t, err)
	assert.Equal(t, 6, rep.Created)
	assert.Equal(t, 0, rep.Skipped)
	assert.Equal(t, 100.0, rep.SuccessRate)
	assert.Equal(t, 6, fake.Calls("/api/admin/trips"))

	recs, err := svc.Runs(context.Background(), runlog.Query{ServiceDate: "2025-03-14"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.NotNil(t, recs[0].Report)
	assert.Len(t, recs[0].Report.Trips, 6)

	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), util.MetricTimeout)
	defer cancel()
	require.NoError(t, util.WaitForMetric(ctx, srv.URL+"/metrics", "scheduler_progress_events_total"))
	require.NoError(t, util.WaitForMetric(ctx, srv.URL+"/metrics", `scheduler_runs_total{outcome="completed"}`))
}

// TestAbortKeepsPartialReport aborts a run while trips are being written.
func TestAbortKeepsPartialReport(t *testing.T) {
	store := util.SeededStore()
	store.CreateDelay = 100 * time.Millisecond
	cfg := newConfig(t)
	cfg.Schedule.WriteConcurrency = 1
	cfg.SetDefaults()

	svc, err := app.New(cfg, app.WithBackend(store, store))
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()

	done := make(chan scheduler.Report, 1)
	go func() {
		rep, err := svc.Schedule(context.Background(), svc.Defaults())
		assert.NoError(t, err)
		done <- rep
	}()
	require.Eventually(t, func() bool { return len(store.Trips()) >= 1 }, 5*time.Second, 10*time.Millisecond)
	require.True(t, svc.Abort())

	select {
	case rep := <-done:
		assert.True(t, rep.Cancelled)
		assert.Less(t, rep.Created, 6)
		assert.Equal(t, 6, rep.Created+rep.Skipped)
		assert.Positive(t, rep.SkipReasons[scheduler.ReasonCancelled])
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after abort")
	}
	assert.False(t, svc.Abort())
}
