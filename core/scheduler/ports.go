package scheduler

import (
	"context"
	"sort"

	"github.com/yatrik/scheduler/core/model"
)

// Resources is everything a run needs from the backend.
type Resources struct {
	Depots     []model.Depot
	Routes     []model.Route
	Buses      []model.Bus
	Drivers    []model.Staff
	Conductors []model.Staff
}

// ResourceSource loads the resources of the requested depots. An empty
// depotIDs means all depots.
type ResourceSource interface {
	FetchResources(ctx context.Context, depotIDs []string) (Resources, error)
}

// TripCreator persists a trip and returns it with the id assigned by the
// backend.
type TripCreator interface {
	CreateTrip(ctx context.Context, trip model.Trip) (model.Trip, error)
}

// DepotCounts is a per-depot resource tally.
type DepotCounts struct {
	DepotID    string `json:"depot_id"`
	Routes     int    `json:"routes"`
	Buses      int    `json:"buses"`
	Drivers    int    `json:"drivers"`
	Conductors int    `json:"conductors"`
}

// Counts tallies resources per home depot, ordered by depot id. Resources
// homed at a depot missing from Depots are still counted.
func (r Resources) Counts() []DepotCounts {
	idx := map[string]*DepotCounts{}
	get := func(id string) *DepotCounts {
		c, ok := idx[id]
		if !ok {
			c = &DepotCounts{DepotID: id}
			idx[id] = c
		}
		return c
	}
	for _, d := range r.Depots {
		get(d.ID)
	}
	for _, rt := range r.Routes {
		get(rt.DepotID).Routes++
	}
	for _, b := range r.Buses {
		get(b.DepotID).Buses++
	}
	for _, s := range r.Drivers {
		get(s.DepotID).Drivers++
	}
	for _, s := range r.Conductors {
		get(s.DepotID).Conductors++
	}
	out := make([]DepotCounts, 0, len(idx))
	for _, c := range idx {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DepotID < out[j].DepotID })
	return out
}
