package scheduler

import (
	"time"

	"github.com/yatrik/scheduler/core/model"
)

// Slot is one candidate departure of a route.
type Slot struct {
	// Seq is the position of the slot within its route.
	Seq     int
	Route   model.Route
	DepotID string
	Start   time.Time
	End     time.Time
	// CrossesMidnight is set when the slot ends after midnight of the
	// service date.
	CrossesMidnight bool
	// Skip is set when the slot can never become a trip.
	Skip SkipReason
}

// Interval returns the [Start, End) span of the slot.
func (s Slot) Interval() model.Interval {
	return model.Interval{Start: s.Start, End: s.End}
}

// GenerateSlots returns MaxTripsPerRoute slots for route on the service day.
// The first slot starts at FirstDeparture and each following slot starts
// TimeGap minutes after the previous one ends. Slots starting at or after
// midnight are always marked WRAPAROUND; slots ending after midnight are
// marked WRAPAROUND unless the policy is carry. Routes without a positive
// duration yield INVALID_ROUTE slots. At most MaxSlotsPerRoute slots are
// generated.
func GenerateSlots(route model.Route, day time.Time, opts Options) []Slot {
	n := min(opts.MaxTripsPerRoute, MaxSlotsPerRoute)
	if n <= 0 {
		return nil
	}
	first, err := model.ParseClock(opts.FirstDeparture)
	if err != nil {
		first, _ = model.ParseClock(defaultFirstDeparture)
	}
	dur := time.Duration(route.EstimatedDuration) * time.Minute
	gap := time.Duration(opts.TimeGap) * time.Minute
	midnight := model.Midnight(day)

	slots := make([]Slot, 0, n)
	start := first.On(day)
	for i := 0; i < n; i++ {
		s := Slot{Seq: i, Route: route, DepotID: route.DepotID, Start: start}
		if route.EstimatedDuration <= 0 {
			s.End = start
			s.Skip = ReasonInvalidRoute
			slots = append(slots, s)
			start = start.Add(gap)
			continue
		}
		s.End = start.Add(dur)
		s.CrossesMidnight = s.End.After(midnight)
		switch {
		case !s.Start.Before(midnight):
			s.Skip = ReasonWraparound
		case s.CrossesMidnight && opts.Wraparound != WraparoundCarry:
			s.Skip = ReasonWraparound
		}
		slots = append(slots, s)
		start = s.End.Add(gap)
	}
	return slots
}
