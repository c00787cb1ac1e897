package autoscheduler

import (
	"net/http"
	"time"

	"github.com/yatrik/scheduler/core/runlog"
)

// NewRunsHandler serves GET /api/auto-scheduler/runs. Supported query
// parameters are start and end (RFC3339), date (service date) and depot_id.
func NewRunsHandler(store runlog.Store, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r, token) {
			return
		}
		params := r.URL.Query()
		q := runlog.Query{
			ServiceDate: params.Get("date"),
			DepotID:     params.Get("depot_id"),
		}
		for name, dst := range map[string]*time.Time{"start": &q.Start, "end": &q.End} {
			s := params.Get(name)
			if s == "" {
				continue
			}
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid "+name+": "+err.Error())
				return
			}
			*dst = t
		}
		records, err := store.Query(r.Context(), q)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if records == nil {
			records = []runlog.RunRecord{}
		}
		writeJSON(w, http.StatusOK, records)
	})
}
