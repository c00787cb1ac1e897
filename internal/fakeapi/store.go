// Package fakeapi is an in-memory stand-in for the CRUD backend. Store
// satisfies the scheduler ports directly; Server exposes the same data over
// HTTP with the backend's envelope, pagination and login flow.
package fakeapi

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/yatrik/scheduler/core/model"
	"github.com/yatrik/scheduler/core/scheduler"
)

// Store holds resources and created trips.
type Store struct {
	mu         sync.Mutex
	depots     []model.Depot
	routes     []model.Route
	buses      []model.Bus
	drivers    []model.Staff
	conductors []model.Staff
	trips      []model.Trip
	nextID     int

	// FetchErr, when set, is returned by FetchResources.
	FetchErr error
	// FailCreate, when set, may reject a trip before it is stored.
	FailCreate func(model.Trip) error
	// CreateDelay is waited before each create.
	CreateDelay time.Duration
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

func (s *Store) AddDepot(d ...model.Depot) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.depots = append(s.depots, d...)
	return s
}

func (s *Store) AddRoute(r ...model.Route) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes = append(s.routes, r...)
	return s
}

func (s *Store) AddBus(b ...model.Bus) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buses = append(s.buses, b...)
	return s
}

func (s *Store) AddDriver(st ...model.Staff) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range st {
		m.Kind = model.KindDriver
		s.drivers = append(s.drivers, m)
	}
	return s
}

func (s *Store) AddConductor(st ...model.Staff) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range st {
		m.Kind = model.KindConductor
		s.conductors = append(s.conductors, m)
	}
	return s
}

// FetchResources returns copies of the stored resources. Like the backend,
// crew is filtered by depot when depotIDs is not empty; depots, routes and
// buses are always returned in full.
func (s *Store) FetchResources(ctx context.Context, depotIDs []string) (scheduler.Resources, error) {
	if err := ctx.Err(); err != nil {
		return scheduler.Resources{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FetchErr != nil {
		return scheduler.Resources{}, s.FetchErr
	}
	return scheduler.Resources{
		Depots:     append([]model.Depot(nil), s.depots...),
		Routes:     append([]model.Route(nil), s.routes...),
		Buses:      append([]model.Bus(nil), s.buses...),
		Drivers:    filterStaff(s.drivers, depotIDs),
		Conductors: filterStaff(s.conductors, depotIDs),
	}, nil
}

func filterStaff(list []model.Staff, depotIDs []string) []model.Staff {
	if len(depotIDs) == 0 {
		return append([]model.Staff(nil), list...)
	}
	want := map[string]bool{}
	for _, id := range depotIDs {
		want[id] = true
	}
	var out []model.Staff
	for _, m := range list {
		if want[m.DepotID] {
			out = append(out, m)
		}
	}
	return out
}

// CreateTrip stores trip with a fresh id.
func (s *Store) CreateTrip(ctx context.Context, trip model.Trip) (model.Trip, error) {
	if s.CreateDelay > 0 {
		select {
		case <-time.After(s.CreateDelay):
		case <-ctx.Done():
			return trip, &scheduler.WriteError{Msg: "timeout", Err: ctx.Err()}
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCreate != nil {
		if err := s.FailCreate(trip); err != nil {
			return trip, err
		}
	}
	s.nextID++
	trip.ID = fmt.Sprintf("trip-%04d", s.nextID)
	s.trips = append(s.trips, trip)
	return trip, nil
}

// Trips returns the created trips ordered by id.
func (s *Store) Trips() []model.Trip {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]model.Trip(nil), s.trips...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
