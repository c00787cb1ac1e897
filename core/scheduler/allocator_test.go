package scheduler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yatrik/scheduler/core/model"
)

func crew(depot string, ids ...string) []model.Staff {
	var out []model.Staff
	for _, id := range ids {
		out = append(out, model.Staff{ID: id, DepotID: depot, Status: "active"})
	}
	return out
}

func slotAt(depot string, startMin, endMin int) Slot {
	iv := span(startMin, endMin)
	return Slot{Route: model.Route{ID: "r-" + depot, DepotID: depot}, DepotID: depot, Start: iv.Start, End: iv.End}
}

func skipReason(t *testing.T, err error) SkipReason {
	t.Helper()
	var skip *AllocationSkip
	require.True(t, errors.As(err, &skip), "expected AllocationSkip, got %v", err)
	return skip.Reason
}

func TestAllocator_TieBreakFewestTripsThenID(t *testing.T) {
	res := Resources{
		Buses:      []model.Bus{{ID: "b2", DepotID: "d1", Capacity: 40}, {ID: "b1", DepotID: "d1", Capacity: 40}},
		Drivers:    crew("d1", "dr1", "dr2"),
		Conductors: crew("d1", "c1", "c2"),
	}
	a := NewAllocator(res, testOptions(), nil)

	first, err := a.Allocate(slotAt("d1", 480, 540))
	require.NoError(t, err)
	assert.Equal(t, Assignment{BusID: "b1", DriverID: "dr1", ConductorID: "c1", Capacity: 40}, first)

	second, err := a.Allocate(slotAt("d1", 600, 660))
	require.NoError(t, err)
	assert.Equal(t, "b2", second.BusID, "b1 already has a trip")
	assert.Equal(t, "dr2", second.DriverID)
	assert.Equal(t, "c2", second.ConductorID)
}

func TestAllocator_OverlapAndCapacity(t *testing.T) {
	res := Resources{
		Buses:      []model.Bus{{ID: "big", DepotID: "d1", Capacity: 50}, {ID: "small", DepotID: "d1", Capacity: 20}},
		Drivers:    crew("d1", "dr1", "dr2"),
		Conductors: crew("d1", "c1", "c2"),
	}
	opts := testOptions()
	opts.DefaultDemand = 30
	a := NewAllocator(res, opts, nil)

	asg, err := a.Allocate(slotAt("d1", 480, 600))
	require.NoError(t, err)
	assert.Equal(t, "big", asg.BusID)

	_, err = a.Allocate(slotAt("d1", 500, 560))
	assert.Equal(t, ReasonCapacity, skipReason(t, err), "only the small bus is free")

	s := slotAt("d1", 500, 560)
	s.Route.ExpectedDemand = 10
	asg, err = a.Allocate(s)
	require.NoError(t, err)
	assert.Equal(t, "small", asg.BusID, "route demand overrides the default")

	_, err = a.Allocate(slotAt("d1", 510, 520))
	assert.Equal(t, ReasonNoBus, skipReason(t, err))
}

func TestAllocator_CrewReasonsLeaveLedgerUntouched(t *testing.T) {
	res := Resources{
		Buses:      []model.Bus{{ID: "b1", DepotID: "d1"}, {ID: "b2", DepotID: "d1"}},
		Drivers:    crew("d1", "dr1"),
		Conductors: crew("d1", "c1", "c2"),
	}
	a := NewAllocator(res, testOptions(), nil)
	_, err := a.Allocate(slotAt("d1", 480, 540))
	require.NoError(t, err)

	_, err = a.Allocate(slotAt("d1", 500, 520))
	assert.Equal(t, ReasonNoDriver, skipReason(t, err))
	assert.Equal(t, 0, a.Ledger().Count(ResourceRef{Kind: model.KindBus, ID: "b2"}))
	assert.Equal(t, 0, a.Ledger().Count(ResourceRef{Kind: model.KindConductor, ID: "c2"}))

	res.Drivers = crew("d1", "dr1", "dr2")
	res.Conductors = crew("d1", "c1")
	a = NewAllocator(res, testOptions(), nil)
	_, err = a.Allocate(slotAt("d1", 480, 540))
	require.NoError(t, err)
	_, err = a.Allocate(slotAt("d1", 500, 520))
	assert.Equal(t, ReasonNoConductor, skipReason(t, err))
}

func TestAllocator_Caps(t *testing.T) {
	res := Resources{
		Buses:      []model.Bus{{ID: "b1", DepotID: "d1"}},
		Drivers:    crew("d1", "dr1"),
		Conductors: crew("d1", "c1"),
	}
	opts := testOptions()
	opts.MaxTripsPerBus = 0
	opts.MaxTripsPerDriver = 2
	opts.MaxTripsPerConductor = 0
	a := NewAllocator(res, opts, nil)
	for i := 0; i < 2; i++ {
		_, err := a.Allocate(slotAt("d1", 60*i, 60*i+30))
		require.NoError(t, err)
	}
	_, err := a.Allocate(slotAt("d1", 300, 330))
	assert.Equal(t, ReasonNoDriver, skipReason(t, err))
}

func TestAllocator_DepotPools(t *testing.T) {
	res := Resources{
		Buses:      []model.Bus{{ID: "a1", DepotID: "A"}, {ID: "b1", DepotID: "B"}},
		Drivers:    append(crew("A", "da"), crew("B", "db")...),
		Conductors: crew("B", "cb"),
	}
	a := NewAllocator(res, testOptions(), nil)

	asg, err := a.Allocate(slotAt("A", 480, 540))
	require.NoError(t, err)
	assert.Equal(t, "a1", asg.BusID, "home bus first")
	assert.Equal(t, "da", asg.DriverID)
	assert.Equal(t, "cb", asg.ConductorID, "depot A has no conductors, shared pool used")

	_, err = a.Allocate(slotAt("A", 500, 520))
	assert.Equal(t, ReasonNoBus, skipReason(t, err), "no borrowing by default")

	opts := testOptions()
	opts.BorrowAcrossDepots = true
	res.Conductors = append(res.Conductors, crew("A", "ca")...)
	b := NewAllocator(res, opts, nil)
	_, err = b.Allocate(slotAt("A", 480, 540))
	require.NoError(t, err)
	asg, err = b.Allocate(slotAt("A", 500, 520))
	require.NoError(t, err)
	assert.Equal(t, "b1", asg.BusID)
	assert.Equal(t, "db", asg.DriverID)
	assert.Equal(t, "cb", asg.ConductorID)
}

func TestAllocator_SkipsUnschedulableAndAutoAssignOff(t *testing.T) {
	res := Resources{
		Buses:      []model.Bus{{ID: "b1", DepotID: "d1", Status: "maintenance"}},
		Drivers:    []model.Staff{{ID: "dr1", DepotID: "d1", Status: "on_leave"}},
		Conductors: crew("d1", "c1"),
	}
	a := NewAllocator(res, testOptions(), nil)
	_, err := a.Allocate(slotAt("d1", 480, 540))
	assert.Equal(t, ReasonNoBus, skipReason(t, err))

	opts := testOptions()
	opts.AutoAssignBuses = false
	opts.AutoAssignCrew = false
	a = NewAllocator(res, opts, nil)
	asg, err := a.Allocate(slotAt("d1", 480, 540))
	require.NoError(t, err)
	assert.Equal(t, Assignment{}, asg)
}
