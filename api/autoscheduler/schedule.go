package autoscheduler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/yatrik/scheduler/core/scheduler"
)

// Scheduler starts and aborts runs.
type Scheduler interface {
	Schedule(ctx context.Context, opts scheduler.Options) (scheduler.Report, error)
	Abort() bool
}

type massScheduleData struct {
	scheduler.Summary
	RunID     string            `json:"runId"`
	Cancelled bool              `json:"cancelled"`
	Report    *scheduler.Report `json:"report,omitempty"`
}

type massScheduleResponse struct {
	Success bool             `json:"success"`
	Data    massScheduleData `json:"data"`
}

// NewMassScheduleHandler serves POST /api/auto-scheduler/mass-schedule. The
// request body is decoded on top of defaults so omitted fields keep their
// configured values. The run is detached from the request context: only an
// abort stops it once started.
func NewMassScheduleHandler(s Scheduler, defaults scheduler.Options, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if !authorized(w, r, token) {
			return
		}
		opts := defaults
		opts.DepotIDs = append([]string(nil), defaults.DepotIDs...)
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
			return
		}
		rep, err := s.Schedule(context.WithoutCancel(r.Context()), opts)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		data := massScheduleData{Summary: rep.Summary(), RunID: rep.RunID, Cancelled: rep.Cancelled}
		if opts.GenerateReports {
			data.Report = &rep
		}
		writeJSON(w, http.StatusOK, massScheduleResponse{Success: true, Data: data})
	})
}

func statusFor(err error) int {
	var ae *scheduler.AuthError
	var fe *scheduler.FetchError
	switch {
	case errors.Is(err, scheduler.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, scheduler.ErrInvalidOptions):
		return http.StatusBadRequest
	case errors.As(err, &ae), errors.As(err, &fe):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewAbortHandler serves POST /api/auto-scheduler/abort.
func NewAbortHandler(s Scheduler, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if !authorized(w, r, token) {
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Success bool `json:"success"`
			Aborted bool `json:"aborted"`
		}{true, s.Abort()})
	})
}
