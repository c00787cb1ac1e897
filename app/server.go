package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yatrik/scheduler/api/autoscheduler"
)

// Handler returns the HTTP API of the service.
func (s *Service) Handler() http.Handler {
	token := s.cfg.Server.Token
	mux := http.NewServeMux()
	mux.Handle("/api/auto-scheduler/mass-schedule", autoscheduler.NewMassScheduleHandler(s, s.Defaults(), token))
	mux.Handle("/api/auto-scheduler/abort", autoscheduler.NewAbortHandler(s, token))
	mux.Handle("/api/auto-scheduler/runs", autoscheduler.NewRunsHandler(s.store, token))
	mux.Handle(s.cfg.Metrics.PrometheusPath, promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "running": s.Running()})
	})
	return mux
}

// Serve listens on cfg.Server.Addr until ctx is canceled. An active run is
// aborted on shutdown so its partial report is still recorded.
func (s *Service) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.Server.ReadHeader(),
	}
	go func() {
		<-ctx.Done()
		s.Abort()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.Shutdown())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("http shutdown: %v", err)
		}
	}()
	s.log.Infof("listening on %s", s.cfg.Server.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
