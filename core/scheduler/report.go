package scheduler

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/yatrik/scheduler/core/model"
)

// RunMeta describes a run independently of its slot outcomes.
type RunMeta struct {
	RunID       string
	ServiceDate string
	Options     Options
	// Pool members per kind; members without trips appear in utilization
	// with zero load.
	Buses      []string
	Drivers    []string
	Conductors []string
	Warnings   []string
	Cancelled  bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Skip is one slot that did not become a trip.
type Skip struct {
	RouteID string     `json:"route_id"`
	Route   string     `json:"route"`
	DepotID string     `json:"depot_id"`
	Start   string     `json:"start"`
	End     string     `json:"end"`
	Reason  SkipReason `json:"reason"`
	Detail  string     `json:"detail,omitempty"`
}

// RouteStats aggregates the slots of one route.
type RouteStats struct {
	RouteID string             `json:"route_id"`
	Number  string             `json:"number"`
	DepotID string             `json:"depot_id"`
	Slots   int                `json:"slots"`
	Created int                `json:"created"`
	Skipped int                `json:"skipped"`
	Reasons map[SkipReason]int `json:"reasons,omitempty"`
}

// DepotStats aggregates the slots of one depot.
type DepotStats struct {
	DepotID string             `json:"depot_id"`
	Routes  int                `json:"routes"`
	Slots   int                `json:"slots"`
	Created int                `json:"created"`
	Skipped int                `json:"skipped"`
	Reasons map[SkipReason]int `json:"reasons,omitempty"`
}

// Utilization is the load of one resource.
type Utilization struct {
	ID          string  `json:"id"`
	Trips       int     `json:"trips"`
	Cap         int     `json:"cap"`
	Ratio       float64 `json:"ratio"`
	BusyMinutes int     `json:"busy_minutes"`
}

// UtilizationSummary describes the trip counts across the members of one
// resource kind.
type UtilizationSummary struct {
	Members int     `json:"members"`
	Used    int     `json:"used"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"std_dev"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// Report is the result of a run.
type Report struct {
	RunID          string                                    `json:"run_id"`
	ServiceDate    string                                    `json:"service_date"`
	SlotsGenerated int                                       `json:"slots_generated"`
	Created        int                                       `json:"created"`
	Skipped        int                                       `json:"skipped"`
	SuccessRate    float64                                   `json:"success_rate"`
	Routes         []RouteStats                              `json:"routes"`
	Depots         []DepotStats                              `json:"depots"`
	Buses          []Utilization                             `json:"buses"`
	Drivers        []Utilization                             `json:"drivers"`
	Conductors     []Utilization                             `json:"conductors"`
	Summaries      map[model.ResourceKind]UtilizationSummary `json:"summaries"`
	SkipReasons    map[SkipReason]int                        `json:"skip_reasons"`
	Skips          []Skip                                    `json:"skips"`
	Trips          []model.Trip                              `json:"trips"`
	Warnings       []string                                  `json:"warnings"`
	Cancelled      bool                                      `json:"cancelled"`
	StartedAt      time.Time                                 `json:"started_at"`
	FinishedAt     time.Time                                 `json:"finished_at"`
}

// Summary is the short form of a report returned by the mass-schedule
// endpoint.
type Summary struct {
	TripsCreated       int      `json:"tripsCreated"`
	BusesAssigned      int      `json:"busesAssigned"`
	DriversAssigned    int      `json:"driversAssigned"`
	ConductorsAssigned int      `json:"conductorsAssigned"`
	SuccessRate        float64  `json:"successRate"`
	Warnings           []string `json:"warnings"`
}

// BuildReport aggregates outcomes. It does not modify its inputs and returns
// equal reports for equal inputs.
func BuildReport(meta RunMeta, outcomes []Outcome) Report {
	r := Report{
		RunID:          meta.RunID,
		ServiceDate:    meta.ServiceDate,
		SlotsGenerated: len(outcomes),
		SkipReasons:    map[SkipReason]int{},
		Skips:          []Skip{},
		Trips:          []model.Trip{},
		Cancelled:      meta.Cancelled,
		StartedAt:      meta.StartedAt,
		FinishedAt:     meta.FinishedAt,
	}

	routes := map[string]*RouteStats{}
	var routeOrder []string
	depots := map[string]*DepotStats{}
	depotRoutes := map[string]map[string]bool{}
	type load struct {
		trips int
		busy  int
	}
	loads := map[ResourceRef]*load{}
	addLoad := func(kind model.ResourceKind, id string, minutes int) {
		if id == "" {
			return
		}
		ref := ResourceRef{Kind: kind, ID: id}
		l, ok := loads[ref]
		if !ok {
			l = &load{}
			loads[ref] = l
		}
		l.trips++
		l.busy += minutes
	}

	for _, o := range outcomes {
		rt := o.Slot.Route
		rs, ok := routes[rt.ID]
		if !ok {
			rs = &RouteStats{RouteID: rt.ID, Number: rt.Number, DepotID: o.Slot.DepotID}
			routes[rt.ID] = rs
			routeOrder = append(routeOrder, rt.ID)
		}
		ds, ok := depots[o.Slot.DepotID]
		if !ok {
			ds = &DepotStats{DepotID: o.Slot.DepotID}
			depots[o.Slot.DepotID] = ds
			depotRoutes[o.Slot.DepotID] = map[string]bool{}
		}
		depotRoutes[o.Slot.DepotID][rt.ID] = true
		rs.Slots++
		ds.Slots++

		if o.Created {
			r.Created++
			rs.Created++
			ds.Created++
			r.Trips = append(r.Trips, o.Trip)
			mins := o.Slot.Interval().Minutes()
			addLoad(model.KindBus, o.Assignment.BusID, mins)
			addLoad(model.KindDriver, o.Assignment.DriverID, mins)
			addLoad(model.KindConductor, o.Assignment.ConductorID, mins)
			continue
		}
		r.Skipped++
		rs.Skipped++
		ds.Skipped++
		r.SkipReasons[o.Reason]++
		if rs.Reasons == nil {
			rs.Reasons = map[SkipReason]int{}
		}
		rs.Reasons[o.Reason]++
		if ds.Reasons == nil {
			ds.Reasons = map[SkipReason]int{}
		}
		ds.Reasons[o.Reason]++
		r.Skips = append(r.Skips, Skip{
			RouteID: rt.ID,
			Route:   rt.Number,
			DepotID: o.Slot.DepotID,
			Start:   model.FormatClock(o.Slot.Start),
			End:     model.FormatClock(o.Slot.End),
			Reason:  o.Reason,
			Detail:  o.Detail,
		})
	}

	if r.SlotsGenerated > 0 {
		r.SuccessRate = round2(float64(r.Created) / float64(r.SlotsGenerated) * 100)
	}
	for _, id := range routeOrder {
		r.Routes = append(r.Routes, *routes[id])
	}
	depotIDs := make([]string, 0, len(depots))
	for id := range depots {
		depotIDs = append(depotIDs, id)
	}
	sort.Strings(depotIDs)
	for _, id := range depotIDs {
		ds := *depots[id]
		ds.Routes = len(depotRoutes[id])
		r.Depots = append(r.Depots, ds)
	}

	opts := meta.Options
	utilization := func(kind model.ResourceKind, members []string, limit int) []Utilization {
		ids := map[string]bool{}
		for _, id := range members {
			ids[id] = true
		}
		for ref := range loads {
			if ref.Kind == kind {
				ids[ref.ID] = true
			}
		}
		out := make([]Utilization, 0, len(ids))
		for id := range ids {
			u := Utilization{ID: id, Cap: limit}
			if l, ok := loads[ResourceRef{Kind: kind, ID: id}]; ok {
				u.Trips = l.trips
				u.BusyMinutes = l.busy
			}
			if limit > 0 {
				u.Ratio = round2(float64(u.Trips) / float64(limit))
			}
			out = append(out, u)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return out
	}
	r.Buses = utilization(model.KindBus, meta.Buses, opts.MaxTripsPerBus)
	r.Drivers = utilization(model.KindDriver, meta.Drivers, opts.MaxTripsPerDriver)
	r.Conductors = utilization(model.KindConductor, meta.Conductors, opts.MaxTripsPerConductor)
	r.Summaries = map[model.ResourceKind]UtilizationSummary{
		model.KindBus:       summarize(r.Buses),
		model.KindDriver:    summarize(r.Drivers),
		model.KindConductor: summarize(r.Conductors),
	}

	r.Warnings = append([]string{}, meta.Warnings...)
	reasons := make([]string, 0, len(r.SkipReasons))
	for reason := range r.SkipReasons {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		r.Warnings = append(r.Warnings, fmt.Sprintf("%d slot(s) skipped: %s", r.SkipReasons[SkipReason(reason)], reason))
	}
	if meta.Cancelled {
		r.Warnings = append(r.Warnings, "run aborted before completion")
	}
	return r
}

func summarize(us []Utilization) UtilizationSummary {
	s := UtilizationSummary{Members: len(us)}
	if len(us) == 0 {
		return s
	}
	xs := make([]float64, len(us))
	for i, u := range us {
		xs[i] = float64(u.Trips)
		if u.Trips > 0 {
			s.Used++
		}
	}
	s.Mean = round2(stat.Mean(xs, nil))
	if len(xs) > 1 {
		s.StdDev = round2(stat.StdDev(xs, nil))
	}
	s.Min = floats.Min(xs)
	s.Max = floats.Max(xs)
	return s
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// Summary returns the short form of the report.
func (r Report) Summary() Summary {
	count := func(us []Utilization) int {
		n := 0
		for _, u := range us {
			if u.Trips > 0 {
				n++
			}
		}
		return n
	}
	w := r.Warnings
	if w == nil {
		w = []string{}
	}
	return Summary{
		TripsCreated:       r.Created,
		BusesAssigned:      count(r.Buses),
		DriversAssigned:    count(r.Drivers),
		ConductorsAssigned: count(r.Conductors),
		SuccessRate:        r.SuccessRate,
		Warnings:           w,
	}
}

func (r Report) String() string {
	return fmt.Sprintf("Created=%d, Skipped=%d", r.Created, r.Skipped)
}
