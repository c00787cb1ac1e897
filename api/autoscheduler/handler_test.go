package autoscheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yatrik/scheduler/core/runlog"
	"github.com/yatrik/scheduler/core/scheduler"
)

type fakeScheduler struct {
	got     scheduler.Options
	rep     scheduler.Report
	err     error
	aborted bool
}

func (f *fakeScheduler) Schedule(_ context.Context, opts scheduler.Options) (scheduler.Report, error) {
	f.got = opts
	return f.rep, f.err
}

func (f *fakeScheduler) Abort() bool { return f.aborted }

func post(t *testing.T, h http.Handler, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/auto-scheduler/mass-schedule", strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestMassScheduleDecodesOnDefaults(t *testing.T) {
	fs := &fakeScheduler{rep: scheduler.Report{RunID: "run-1", Created: 6, SuccessRate: 100}}
	defaults := scheduler.DefaultOptions()
	defaults.DepotIDs = []string{"d1"}
	h := NewMassScheduleHandler(fs, defaults, "")

	rr := post(t, h, `{"date":"2025-03-14","timeGap":45}`, "")
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, "2025-03-14", fs.got.Date)
	assert.Equal(t, 45, fs.got.TimeGap)
	assert.Equal(t, 6, fs.got.MaxTripsPerRoute)
	assert.Equal(t, []string{"d1"}, fs.got.DepotIDs)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, true, out["success"])
	data := out["data"].(map[string]any)
	assert.Equal(t, 6.0, data["tripsCreated"])
	assert.Equal(t, 100.0, data["successRate"])
	assert.Equal(t, "run-1", data["runId"])
	assert.NotContains(t, data, "report")
}

func TestMassScheduleIncludesReportOnRequest(t *testing.T) {
	fs := &fakeScheduler{rep: scheduler.Report{RunID: "run-2"}}
	h := NewMassScheduleHandler(fs, scheduler.DefaultOptions(), "")

	rr := post(t, h, `{"generateReports":true}`, "")
	require.Equal(t, http.StatusOK, rr.Code)

	var out struct {
		Data struct {
			Report *scheduler.Report `json:"report"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.NotNil(t, out.Data.Report)
	assert.Equal(t, "run-2", out.Data.Report.RunID)
}

func TestMassScheduleErrorStatuses(t *testing.T) {
	cases := map[string]struct {
		err  error
		want int
	}{
		"in progress": {scheduler.ErrRunInProgress, http.StatusConflict},
		"invalid":     {fmt.Errorf("%w: timeGap must not be negative", scheduler.ErrInvalidOptions), http.StatusBadRequest},
		"auth":        {&scheduler.AuthError{Status: 401}, http.StatusBadGateway},
		"fetch":       {&scheduler.FetchError{Resource: "routes"}, http.StatusBadGateway},
		"other":       {fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := NewMassScheduleHandler(&fakeScheduler{err: tc.err}, scheduler.DefaultOptions(), "")
			rr := post(t, h, `{}`, "")
			assert.Equal(t, tc.want, rr.Code)
			assert.Contains(t, rr.Body.String(), `"success":false`)
		})
	}
}

func TestMassScheduleRejectsBadRequests(t *testing.T) {
	h := NewMassScheduleHandler(&fakeScheduler{}, scheduler.DefaultOptions(), "tok")

	assert.Equal(t, http.StatusUnauthorized, post(t, h, `{}`, "").Code)
	assert.Equal(t, http.StatusBadRequest, post(t, h, `{"timeGap":"x"}`, "tok").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/auto-scheduler/mass-schedule", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestAbortHandler(t *testing.T) {
	h := NewAbortHandler(&fakeScheduler{aborted: true}, "")
	req := httptest.NewRequest(http.MethodPost, "/api/auto-scheduler/abort", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true,"aborted":true}`, rr.Body.String())
}

func TestRunsHandlerAuthAndFilters(t *testing.T) {
	store := runlog.NewMemoryStore()
	now := time.Now()
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, runlog.RunRecord{RunID: "a", Timestamp: now, ServiceDate: "2025-03-14", DepotIDs: []string{"d1"}}))
	require.NoError(t, store.Append(ctx, runlog.RunRecord{RunID: "b", Timestamp: now, ServiceDate: "2025-03-15", DepotIDs: []string{"d2"}}))
	h := NewRunsHandler(store, "tok")

	req := httptest.NewRequest(http.MethodGet, "/api/auto-scheduler/runs?depot_id=d2", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	var recs []runlog.RunRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "b", recs[0].RunID)

	req = httptest.NewRequest(http.MethodGet, "/api/auto-scheduler/runs?date=2025-01-01", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.JSONEq(t, `[]`, rr.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/auto-scheduler/runs?start=yesterday", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/auto-scheduler/runs", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
