package model

import "strings"

// ResourceKind identifies the type of a schedulable resource.
type ResourceKind string

const (
	KindBus       ResourceKind = "bus"
	KindDriver    ResourceKind = "driver"
	KindConductor ResourceKind = "conductor"
)

// Bus is a vehicle homed at a depot.
type Bus struct {
	ID       string `json:"id"`
	Number   string `json:"number"`
	DepotID  string `json:"depot_id"`
	Capacity int    `json:"capacity"`
	Status   string `json:"status"`
}

// Schedulable reports whether the bus may be given trips.
func (b Bus) Schedulable() bool {
	switch strings.ToLower(b.Status) {
	case "", "active", "idle", "available":
		return true
	default:
		return false
	}
}

// Staff is a driver or conductor homed at a depot.
type Staff struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	DepotID string       `json:"depot_id"`
	Status  string       `json:"status"`
	Kind    ResourceKind `json:"kind"`
}

// Schedulable reports whether the staff member may be given trips.
func (s Staff) Schedulable() bool {
	switch strings.ToLower(s.Status) {
	case "", "active", "available", "idle":
		return true
	default:
		return false
	}
}
