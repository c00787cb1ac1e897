package model

import "time"

// TripStatusScheduled is the status of freshly created trips.
const TripStatusScheduled = "scheduled"

// Trip is a scheduled run of a route by one bus and crew.
type Trip struct {
	ID          string  `json:"id,omitempty"`
	RouteID     string  `json:"route_id"`
	BusID       string  `json:"bus_id,omitempty"`
	DriverID    string  `json:"driver_id,omitempty"`
	ConductorID string  `json:"conductor_id,omitempty"`
	DepotID     string  `json:"depot_id"`
	ServiceDate string  `json:"service_date"`
	StartTime   string  `json:"start_time"`
	EndTime     string  `json:"end_time"`
	ArrivalDate string  `json:"arrival_date,omitempty"`
	Fare        float64 `json:"fare"`
	Capacity    int     `json:"capacity"`
	Status      string  `json:"status"`
	Notes       string  `json:"notes,omitempty"`
}

// Interval is a half-open [Start, End) span of time.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether the two half-open intervals intersect.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Minutes returns the length of the interval in minutes.
func (i Interval) Minutes() int {
	return int(i.End.Sub(i.Start) / time.Minute)
}
