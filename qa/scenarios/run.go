package scenarios

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/yatrik/scheduler/core/metrics"
	"github.com/yatrik/scheduler/core/model"
	"github.com/yatrik/scheduler/core/scheduler"
	"github.com/yatrik/scheduler/infra/logger"
	"github.com/yatrik/scheduler/infra/metrics"
	"github.com/yatrik/scheduler/internal/eventbus"
	"github.com/yatrik/scheduler/internal/fakeapi"
)

// Backend builds the fake CRUD store described by the scenario.
func (sc *Scenario) Backend() *fakeapi.Store {
	st := fakeapi.NewStore()
	for _, id := range sc.Depots {
		st.AddDepot(model.Depot{ID: id, Code: id})
	}
	for _, r := range sc.Routes {
		st.AddRoute(r.ToModel())
	}
	for _, b := range sc.Buses {
		st.AddBus(model.Bus{ID: b.ID, DepotID: b.Depot, Capacity: b.Capacity, Status: b.Status})
	}
	for _, d := range sc.Drivers {
		st.AddDriver(d.ToModel())
	}
	for _, c := range sc.Conductors {
		st.AddConductor(c.ToModel())
	}
	if len(sc.FailRoutes) > 0 {
		fail := map[string]bool{}
		for _, id := range sc.FailRoutes {
			fail[id] = true
		}
		st.FailCreate = func(t model.Trip) error {
			if fail[t.RouteID] {
				return &scheduler.WriteError{Status: 422, Msg: "rejected by scenario"}
			}
			return nil
		}
	}
	return st
}

// RunScenario executes the scenario and checks counts, skip reasons, start
// times and that no resource is booked twice at once.
func RunScenario(t *testing.T, sc *Scenario) {
	t.Helper()
	reg := prometheus.NewRegistry()
	sink, err := metrics.NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	if err != nil {
		t.Fatalf("prom sink: %v", err)
	}
	bus := eventbus.New()
	defer func() { _ = bus.Close() }()

	backend := sc.Backend()
	engine := scheduler.NewEngine(backend, backend,
		scheduler.WithPublisher(bus),
		scheduler.WithMetricsSink(sink),
		scheduler.WithLogger(logger.NopLogger{}),
	)
	rep, err := engine.Run(context.Background(), sc.Options)
	if err != nil {
		t.Fatalf("scenario %s: run: %v", sc.Name, err)
	}

	if rep.Created != sc.Expected.Created || rep.Skipped != sc.Expected.Skipped {
		t.Errorf("scenario %s expected Created=%d, Skipped=%d, got %s",
			sc.Name, sc.Expected.Created, sc.Expected.Skipped, rep)
	}
	for reason, n := range sc.Expected.Reasons {
		if got := rep.SkipReasons[scheduler.SkipReason(reason)]; got != n {
			t.Errorf("scenario %s expected %d %s skips, got %d", sc.Name, n, reason, got)
		}
	}
	if got := skipCounter(t, reg); got != float64(rep.Skipped) {
		t.Errorf("scenario %s: skip counter %v, report %d", sc.Name, got, rep.Skipped)
	}

	trips := backend.Trips()
	if len(trips) != rep.Created {
		t.Errorf("scenario %s: %d trips stored, report says %d", sc.Name, len(trips), rep.Created)
	}
	for route, want := range sc.Expected.Starts {
		got := startsOf(rep.Trips, route)
		if !equal(got, want) {
			t.Errorf("scenario %s route %s: starts %v, want %v", sc.Name, route, got, want)
		}
	}
	checkNoDoubleBooking(t, sc.Name, trips)
}

func skipCounter(t *testing.T, reg *prometheus.Registry) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var sum float64
	for _, mf := range families {
		if mf.GetName() != "scheduler_skips_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
	}
	return sum
}

func startsOf(trips []model.Trip, route string) []string {
	var out []string
	for _, tr := range trips {
		if tr.RouteID == route {
			out = append(out, tr.StartTime)
		}
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type span struct {
	trip       string
	start, end int
}

// checkNoDoubleBooking fails when two trips share a bus, driver or conductor
// over overlapping minutes of the service day.
func checkNoDoubleBooking(t *testing.T, name string, trips []model.Trip) {
	t.Helper()
	booked := map[string][]span{}
	for _, tr := range trips {
		start, err := model.ParseClock(tr.StartTime)
		if err != nil {
			t.Fatalf("scenario %s: trip %s: %v", name, tr.ID, err)
		}
		end, err := model.ParseClock(tr.EndTime)
		if err != nil {
			t.Fatalf("scenario %s: trip %s: %v", name, tr.ID, err)
		}
		s := span{trip: tr.ID, start: int(start), end: int(end)}
		if tr.ArrivalDate != "" {
			s.end += 24 * 60
		}
		for _, key := range []string{"bus:" + tr.BusID, "driver:" + tr.DriverID, "conductor:" + tr.ConductorID} {
			if strings.HasSuffix(key, ":") {
				continue
			}
			for _, o := range booked[key] {
				if s.start < o.end && o.start < s.end {
					t.Errorf("scenario %s: %s booked by %s and %s", name, key, o.trip, s.trip)
				}
			}
			booked[key] = append(booked[key], s)
		}
	}
}
