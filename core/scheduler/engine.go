package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yatrik/scheduler/core/events"
	"github.com/yatrik/scheduler/core/logger"
	"github.com/yatrik/scheduler/core/metrics"
	"github.com/yatrik/scheduler/core/model"
)

// Engine runs mass scheduling jobs. It is safe to call Run concurrently, but
// runs do not coordinate their reservations; use a Coordinator to serialise
// them.
type Engine struct {
	source       ResourceSource
	creator      TripCreator
	pub          events.Publisher
	log          logger.Logger
	sink         metrics.MetricsSink
	now          func() time.Time
	newID        func() string
	writeTimeout time.Duration
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithPublisher sets the progress event publisher.
func WithPublisher(p events.Publisher) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.pub = p
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetricsSink sets the sink receiving run results.
func WithMetricsSink(s metrics.MetricsSink) EngineOption {
	return func(e *Engine) {
		if s != nil {
			e.sink = s
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator overrides how run ids are produced.
func WithIDGenerator(f func() string) EngineOption {
	return func(e *Engine) {
		if f != nil {
			e.newID = f
		}
	}
}

// WithWriteTimeout bounds each trip create call.
func WithWriteTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.writeTimeout = d }
}

// NewEngine returns an engine reading from source and writing to creator.
func NewEngine(source ResourceSource, creator TripCreator, opts ...EngineOption) *Engine {
	e := &Engine{
		source:       source,
		creator:      creator,
		pub:          events.NopPublisher{},
		log:          logger.NopLogger{},
		sink:         metrics.NopSink{},
		now:          time.Now,
		newID:        uuid.NewString,
		writeTimeout: 15 * time.Second,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run executes one mass scheduling job. Auth and fetch failures abort the
// run and are returned as errors. Every other problem is recorded as a skip
// in the report. When ctx is cancelled the report covers the work done so
// far and has Cancelled set.
func (e *Engine) Run(ctx context.Context, opts Options) (Report, error) {
	opts.SetDefaults()
	if err := opts.Validate(); err != nil {
		return Report{}, err
	}
	day, err := opts.ServiceDay(e.now())
	if err != nil {
		return Report{}, err
	}
	runID := e.newID()
	serviceDate := day.Format(model.DateLayout)
	started := e.now()

	runsInProgress.Inc()
	defer runsInProgress.Dec()

	e.log.Infow("run started", map[string]any{
		"run_id":       runID,
		"service_date": serviceDate,
		"depot_ids":    strings.Join(opts.DepotIDs, ","),
	})
	e.pub.Publish(events.RunStarted{RunID: runID, ServiceDate: serviceDate, DepotIDs: opts.DepotIDs, Time: started})

	res, err := e.source.FetchResources(ctx, opts.DepotIDs)
	if err != nil {
		runsTotal.WithLabelValues("failed").Inc()
		e.log.Errorf("run %s: fetch resources: %v", runID, err)
		e.pub.Publish(events.RunFinished{RunID: runID, Time: e.now()})
		return Report{RunID: runID, ServiceDate: serviceDate}, err
	}

	routes, warnings := planRoutes(res, opts.DepotIDs)
	alloc := NewAllocator(res, opts, NewLedger())
	outcomes, jobs := e.plan(ctx, runID, serviceDate, day, routes, alloc, opts)
	e.log.Debugf("run %s: %d slots, %d allocated", runID, len(outcomes), len(jobs))

	w := NewWriter(e.creator, opts.WriteConcurrency, e.writeTimeout, e.log)
	w.Write(ctx, jobs, outcomes, func(r WriteResult) {
		o := outcomes[r.Index].Slot
		if r.Err != nil {
			var ce cancelledError
			reason := ReasonWriteError
			if errors.As(r.Err, &ce) {
				reason = ReasonCancelled
			}
			e.pub.Publish(events.SlotSkipped{
				RunID: runID, RouteID: o.Route.ID, DepotID: o.DepotID,
				Start: o.Start, End: o.End, Reason: string(reason), Detail: truncate(r.Err.Error(), maxDetail),
			})
			return
		}
		tripWriteLatency.Observe(r.Latency.Seconds())
		e.pub.Publish(events.TripCreated{
			RunID: runID, TripID: r.Trip.ID, RouteID: o.Route.ID, BusID: r.Trip.BusID,
			Start: o.Start, Latency: r.Latency,
		})
	})

	finished := e.now()
	meta := RunMeta{
		RunID:       runID,
		ServiceDate: serviceDate,
		Options:     opts,
		Buses:       alloc.Members(model.KindBus),
		Drivers:     alloc.Members(model.KindDriver),
		Conductors:  alloc.Members(model.KindConductor),
		Warnings:    warnings,
		Cancelled:   ctx.Err() != nil,
		StartedAt:   started,
		FinishedAt:  finished,
	}
	rep := BuildReport(meta, outcomes)

	e.pub.Publish(events.RunFinished{
		RunID: runID, Created: rep.Created, Skipped: rep.Skipped,
		SuccessRate: rep.SuccessRate, Cancelled: rep.Cancelled, Time: finished,
	})
	e.record(rep, outcomes, finished.Sub(started))
	e.log.Infow("run finished", map[string]any{
		"run_id":       runID,
		"created":      rep.Created,
		"skipped":      rep.Skipped,
		"success_rate": rep.SuccessRate,
		"cancelled":    rep.Cancelled,
	})
	return rep, nil
}

// plan generates and allocates every slot in planning order. It returns one
// outcome per slot and the write jobs of the allocated ones.
func (e *Engine) plan(ctx context.Context, runID, serviceDate string, day time.Time, routes []model.Route, alloc *Allocator, opts Options) ([]Outcome, []WriteJob) {
	var (
		outcomes []Outcome
		jobs     []WriteJob
	)
	for _, rt := range routes {
		for _, slot := range GenerateSlots(rt, day, opts) {
			o := Outcome{Slot: slot}
			switch {
			case ctx.Err() != nil:
				o.Reason = ReasonCancelled
				o.Detail = "run aborted before allocation"
			case slot.Skip == ReasonInvalidRoute:
				o.Reason = slot.Skip
				o.Detail = fmt.Sprintf("estimated duration %d min", rt.EstimatedDuration)
			case slot.Skip != "":
				o.Reason = slot.Skip
				o.Detail = fmt.Sprintf("slot %s-%s passes midnight", model.FormatClock(slot.Start), model.FormatClock(slot.End))
			default:
				asg, err := alloc.Allocate(slot)
				if err != nil {
					var skip *AllocationSkip
					if errors.As(err, &skip) {
						o.Reason, o.Detail = skip.Reason, skip.Detail
					} else {
						o.Reason, o.Detail = ReasonNoBus, err.Error()
					}
					break
				}
				o.Assignment = asg
				o.Trip = buildTrip(runID, serviceDate, slot, asg)
				jobs = append(jobs, WriteJob{Index: len(outcomes), Trip: o.Trip})
				e.pub.Publish(events.SlotAllocated{
					RunID: runID, RouteID: rt.ID, DepotID: slot.DepotID,
					BusID: asg.BusID, DriverID: asg.DriverID, ConductorID: asg.ConductorID,
					Start: slot.Start, End: slot.End,
				})
			}
			if o.Reason != "" {
				e.pub.Publish(events.SlotSkipped{
					RunID: runID, RouteID: rt.ID, DepotID: slot.DepotID,
					Start: slot.Start, End: slot.End, Reason: string(o.Reason), Detail: o.Detail,
				})
			}
			outcomes = append(outcomes, o)
		}
	}
	return outcomes, jobs
}

func buildTrip(runID, serviceDate string, slot Slot, asg Assignment) model.Trip {
	t := model.Trip{
		RouteID:     slot.Route.ID,
		BusID:       asg.BusID,
		DriverID:    asg.DriverID,
		ConductorID: asg.ConductorID,
		DepotID:     slot.DepotID,
		ServiceDate: serviceDate,
		StartTime:   model.FormatClock(slot.Start),
		EndTime:     model.FormatClock(slot.End),
		Fare:        slot.Route.BaseFare,
		Capacity:    asg.Capacity,
		Status:      model.TripStatusScheduled,
		Notes:       RunNote(runID),
	}
	if d := slot.End.Format(model.DateLayout); d != serviceDate {
		t.ArrivalDate = d
	}
	return t
}

// RunNote is the marker stored in the notes of every trip a run creates.
func RunNote(runID string) string {
	return "auto-scheduled run:" + runID
}

// planRoutes selects the active routes of the requested depots in planning
// order: depot id, then route number, then route id.
func planRoutes(res Resources, depotIDs []string) ([]model.Route, []string) {
	var warnings []string
	wanted := map[string]bool{}
	for _, id := range depotIDs {
		wanted[id] = true
	}
	known := map[string]bool{}
	for _, d := range res.Depots {
		known[d.ID] = true
	}
	for _, id := range depotIDs {
		if !known[id] {
			warnings = append(warnings, fmt.Sprintf("depot %s not found", id))
		}
	}

	var routes []model.Route
	perDepot := map[string]int{}
	inactive := 0
	for _, rt := range res.Routes {
		if len(wanted) > 0 && !wanted[rt.DepotID] {
			continue
		}
		if !rt.Active() {
			inactive++
			continue
		}
		routes = append(routes, rt)
		perDepot[rt.DepotID]++
	}
	sort.SliceStable(routes, func(i, j int) bool {
		a, b := routes[i], routes[j]
		if a.DepotID != b.DepotID {
			return a.DepotID < b.DepotID
		}
		if a.Number != b.Number {
			return a.Number < b.Number
		}
		return a.ID < b.ID
	})

	depots := depotIDs
	if len(depots) == 0 {
		for _, d := range res.Depots {
			depots = append(depots, d.ID)
		}
	}
	sorted := append([]string(nil), depots...)
	sort.Strings(sorted)
	for _, id := range sorted {
		if known[id] && perDepot[id] == 0 {
			warnings = append(warnings, fmt.Sprintf("depot %s has no active routes", id))
		}
	}
	if inactive > 0 {
		warnings = append(warnings, fmt.Sprintf("%d inactive route(s) ignored", inactive))
	}
	return routes, warnings
}

func (e *Engine) record(rep Report, outcomes []Outcome, d time.Duration) {
	outcome := "completed"
	if rep.Cancelled {
		outcome = "cancelled"
	}
	runsTotal.WithLabelValues(outcome).Inc()
	runDuration.Observe(d.Seconds())
	lastSuccessRate.Set(rep.SuccessRate)

	res := metrics.RunResult{
		RunID:       rep.RunID,
		ServiceDate: rep.ServiceDate,
		Created:     rep.Created,
		Skipped:     rep.Skipped,
		SuccessRate: rep.SuccessRate,
		SkipReasons: make(map[string]int, len(rep.SkipReasons)),
		Duration:    d,
		Cancelled:   rep.Cancelled,
		Time:        rep.FinishedAt,
	}
	for k, v := range rep.SkipReasons {
		res.SkipReasons[string(k)] = v
	}
	for _, ds := range rep.Depots {
		res.Depots = append(res.Depots, metrics.DepotResult{DepotID: ds.DepotID, Created: ds.Created, Skipped: ds.Skipped})
		slotsTotal.WithLabelValues(ds.DepotID, "created").Add(float64(ds.Created))
		for reason, n := range ds.Reasons {
			slotsTotal.WithLabelValues(ds.DepotID, string(reason)).Add(float64(n))
		}
	}
	if err := e.sink.RecordRunResult(res); err != nil {
		e.log.Warnf("record run result: %v", err)
	}

	if rec, ok := e.sink.(metrics.TripRecorder); ok {
		trips := make([]metrics.TripResult, 0, len(outcomes))
		for _, o := range outcomes {
			trips = append(trips, metrics.TripResult{
				RunID:        rep.RunID,
				RouteID:      o.Slot.Route.ID,
				DepotID:      o.Slot.DepotID,
				BusID:        o.Assignment.BusID,
				DriverID:     o.Assignment.DriverID,
				ConductorID:  o.Assignment.ConductorID,
				Start:        o.Slot.Start,
				Created:      o.Created,
				Reason:       string(o.Reason),
				WriteLatency: o.Latency,
			})
		}
		if err := rec.RecordTripResults(trips); err != nil {
			e.log.Warnf("record trip results: %v", err)
		}
	}
	if rec, ok := e.sink.(metrics.UtilizationRecorder); ok {
		var us []metrics.Utilization
		add := func(kind model.ResourceKind, list []Utilization) {
			for _, u := range list {
				us = append(us, metrics.Utilization{
					RunID: rep.RunID, Kind: kind, ResourceID: u.ID,
					Trips: u.Trips, Cap: u.Cap, Ratio: u.Ratio, BusyMinutes: u.BusyMinutes,
					Time: rep.FinishedAt,
				})
			}
		}
		add(model.KindBus, rep.Buses)
		add(model.KindDriver, rep.Drivers)
		add(model.KindConductor, rep.Conductors)
		if err := rec.RecordUtilization(us); err != nil {
			e.log.Warnf("record utilization: %v", err)
		}
	}
}
