package model

import "strings"

// DepotCapacity mirrors the bus counters kept on a depot record.
type DepotCapacity struct {
	Total       int `json:"total"`
	Available   int `json:"available"`
	Maintenance int `json:"maintenance"`
}

// Depot is an operating base owning buses and crew.
type Depot struct {
	ID       string        `json:"id"`
	Code     string        `json:"code"`
	Name     string        `json:"name"`
	City     string        `json:"city,omitempty"`
	Capacity DepotCapacity `json:"capacity"`
	Status   string        `json:"status,omitempty"`
}

// Endpoint is one end of a route.
type Endpoint struct {
	City string  `json:"city"`
	Lat  float64 `json:"lat,omitempty"`
	Lng  float64 `json:"lng,omitempty"`
}

// Route is a scheduled line between two endpoints.
type Route struct {
	ID                string   `json:"id"`
	Number            string   `json:"number"`
	Name              string   `json:"name,omitempty"`
	DepotID           string   `json:"depot_id"`
	From              Endpoint `json:"from"`
	To                Endpoint `json:"to"`
	EstimatedDuration int      `json:"estimated_duration"` // minutes
	BaseFare          float64  `json:"base_fare"`
	ExpectedDemand    int      `json:"expected_demand,omitempty"`
	Status            string   `json:"status,omitempty"`
}

// Active reports whether the route may be scheduled.
func (r Route) Active() bool {
	switch strings.ToLower(r.Status) {
	case "", "active":
		return true
	default:
		return false
	}
}
