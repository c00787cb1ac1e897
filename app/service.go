// Package app wires the scheduling engine to the CRUD backend, the run log,
// metrics sinks and progress sinks.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yatrik/scheduler/config"
	"github.com/yatrik/scheduler/core/events"
	coremetrics "github.com/yatrik/scheduler/core/metrics"
	"github.com/yatrik/scheduler/core/monitoring"
	"github.com/yatrik/scheduler/core/runlog"
	"github.com/yatrik/scheduler/core/scheduler"
	"github.com/yatrik/scheduler/infra/api"
	"github.com/yatrik/scheduler/infra/logger"
	"github.com/yatrik/scheduler/infra/metrics"
	"github.com/yatrik/scheduler/internal/eventbus"
	"github.com/yatrik/scheduler/pkg/export"

	// progress sink factories
	_ "github.com/yatrik/scheduler/infra/amqp"
	_ "github.com/yatrik/scheduler/infra/mqtt"
)

// aborter is implemented by progress sinks that accept remote abort
// commands.
type aborter interface {
	OnAbort(fn func() bool)
}

// Service runs mass scheduling jobs one at a time.
type Service struct {
	cfg        *config.Config
	log        logger.Logger
	source     scheduler.ResourceSource
	creator    scheduler.TripCreator
	store      runlog.Store
	bus        *eventbus.Bus
	coord      *scheduler.Coordinator
	now        func() time.Time
	engineOpts []scheduler.EngineOption
	stop       context.CancelFunc
}

// Option customises a Service.
type Option func(*Service)

// WithBackend replaces the CRUD API client.
func WithBackend(source scheduler.ResourceSource, creator scheduler.TripCreator) Option {
	return func(s *Service) {
		s.source = source
		s.creator = creator
	}
}

// WithRunStore replaces the run log configured in cfg.RunLog.
func WithRunStore(store runlog.Store) Option {
	return func(s *Service) { s.store = store }
}

// WithEngineOptions appends engine options, applied after the defaults.
func WithEngineOptions(opts ...scheduler.EngineOption) Option {
	return func(s *Service) { s.engineOpts = append(s.engineOpts, opts...) }
}

// WithClock overrides the clock stamping run records.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service from the configuration.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	s := &Service{cfg: cfg, log: logger.New("service"), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if s.source == nil || s.creator == nil {
		client, err := api.NewClient(cfg.API, api.WithLogger(logger.New("api")))
		if err != nil {
			return nil, fmt.Errorf("api client: %w", err)
		}
		s.source, s.creator = client, client
	}
	if s.store == nil {
		store, err := runlog.New(cfg.RunLog)
		if err != nil {
			return nil, fmt.Errorf("run log: %w", err)
		}
		s.store = store
	}
	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		_ = s.store.Close()
		return nil, fmt.Errorf("metrics sinks: %w", err)
	}
	progress, err := events.NewSinks(cfg.Progress.Sinks)
	if err != nil {
		_ = s.store.Close()
		return nil, fmt.Errorf("progress sinks: %w", err)
	}

	s.bus = eventbus.New(
		eventbus.WithLogger(logger.New("progress")),
		eventbus.WithSendTimeout(time.Duration(cfg.Progress.SendTimeoutMS)*time.Millisecond),
	)
	for _, p := range progress {
		s.bus.Forward(p)
	}
	counter, err := metrics.NewProgressCounter(prometheus.DefaultRegisterer)
	if err != nil {
		s.log.Warnf("progress counter: %v", err)
	}
	ctx, stop := context.WithCancel(context.Background())
	s.stop = stop
	metrics.StartEventCollector(ctx, s.bus, counter)

	engine := scheduler.NewEngine(s.source, s.creator, append([]scheduler.EngineOption{
		scheduler.WithPublisher(s.bus),
		scheduler.WithLogger(logger.New("scheduler")),
		scheduler.WithMetricsSink(sink),
		scheduler.WithWriteTimeout(cfg.API.Timeout()),
	}, s.engineOpts...)...)
	s.coord = scheduler.NewCoordinator(engine)
	for _, p := range progress {
		if a, ok := p.(aborter); ok {
			a.OnAbort(s.coord.Abort)
		}
	}
	return s, nil
}

// Defaults returns the run options configured in the schedule section.
func (s *Service) Defaults() scheduler.Options { return s.cfg.Schedule }

// Schedule executes one run and records it in the run log. Report artifacts
// are written when opts.GenerateReports is set and the report section
// configures at least one path.
func (s *Service) Schedule(ctx context.Context, opts scheduler.Options) (scheduler.Report, error) {
	opts.SetDefaults()
	rep, err := s.coord.Start(ctx, opts)
	if errors.Is(err, scheduler.ErrRunInProgress) || errors.Is(err, scheduler.ErrInvalidOptions) {
		return rep, err
	}
	rec := runlog.NewRecord(opts, rep, err, s.cfg.RunLog.StoreReports, s.now())
	if aerr := s.store.Append(context.WithoutCancel(ctx), rec); aerr != nil {
		s.log.Errorf("run %s: append run log: %v", rep.RunID, aerr)
	}
	if err != nil {
		monitoring.CaptureRunFailure(err, rep.RunID, scheduler.ErrorClass(err))
		return rep, err
	}
	if opts.GenerateReports && s.cfg.Report.Enabled() {
		paths, werr := export.WriteArtifacts(s.cfg.Report, rep)
		if werr != nil {
			s.log.Errorf("run %s: write report: %v", rep.RunID, werr)
			rep.Warnings = append(rep.Warnings, "report artifacts not written: "+werr.Error())
		}
		for _, p := range paths {
			s.log.Infow("report written", map[string]any{"run_id": rep.RunID, "path": p})
		}
	}
	return rep, nil
}

// Abort cancels the active run and reports whether one was active.
func (s *Service) Abort() bool { return s.coord.Abort() }

// Running reports whether a run is active.
func (s *Service) Running() bool { return s.coord.Running() }

// Runs queries the run log.
func (s *Service) Runs(ctx context.Context, q runlog.Query) ([]runlog.RunRecord, error) {
	return s.store.Query(ctx, q)
}

// Resources fetches the resources of depotIDs from the backend.
func (s *Service) Resources(ctx context.Context, depotIDs []string) (scheduler.Resources, error) {
	return s.source.FetchResources(ctx, depotIDs)
}

// Close flushes progress sinks and closes the run log.
func (s *Service) Close() error {
	s.stop()
	return errors.Join(s.bus.Close(), s.store.Close())
}
