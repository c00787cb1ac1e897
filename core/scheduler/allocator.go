package scheduler

import (
	"fmt"
	"sort"

	"github.com/yatrik/scheduler/core/model"
)

// Assignment is the set of resources reserved for one slot. Ids are empty
// when the corresponding auto-assignment is disabled.
type Assignment struct {
	BusID       string `json:"bus_id,omitempty"`
	DriverID    string `json:"driver_id,omitempty"`
	ConductorID string `json:"conductor_id,omitempty"`
	// Capacity is the seat count of the assigned bus.
	Capacity int `json:"capacity"`
}

type member struct {
	id       string
	depot    string
	capacity int
}

// pool indexes one kind of resource by home depot.
type pool struct {
	kind model.ResourceKind
	home map[string][]member
	all  []member
}

func newPool(kind model.ResourceKind, members []member) pool {
	sort.Slice(members, func(i, j int) bool { return members[i].id < members[j].id })
	p := pool{kind: kind, home: make(map[string][]member)}
	seen := make(map[string]bool, len(members))
	for _, m := range members {
		if m.id == "" || seen[m.id] {
			continue
		}
		seen[m.id] = true
		p.home[m.depot] = append(p.home[m.depot], m)
		p.all = append(p.all, m)
	}
	return p
}

// Allocator picks a bus, a driver and a conductor for each slot. Slots must
// be offered in planning order: earlier slots win scarce resources.
type Allocator struct {
	opts       Options
	ledger     *Ledger
	buses      pool
	drivers    pool
	conductors pool
}

// NewAllocator builds the resource pools from the schedulable members of res.
func NewAllocator(res Resources, opts Options, ledger *Ledger) *Allocator {
	if ledger == nil {
		ledger = NewLedger()
	}
	var buses, drivers, conductors []member
	for _, b := range res.Buses {
		if b.Schedulable() {
			buses = append(buses, member{id: b.ID, depot: b.DepotID, capacity: b.Capacity})
		}
	}
	for _, s := range res.Drivers {
		if s.Schedulable() {
			drivers = append(drivers, member{id: s.ID, depot: s.DepotID})
		}
	}
	for _, s := range res.Conductors {
		if s.Schedulable() {
			conductors = append(conductors, member{id: s.ID, depot: s.DepotID})
		}
	}
	return &Allocator{
		opts:       opts,
		ledger:     ledger,
		buses:      newPool(model.KindBus, buses),
		drivers:    newPool(model.KindDriver, drivers),
		conductors: newPool(model.KindConductor, conductors),
	}
}

// Ledger returns the reservation ledger of the allocator.
func (a *Allocator) Ledger() *Ledger { return a.ledger }

// Members returns the ids of the schedulable resources of kind, sorted.
func (a *Allocator) Members(kind model.ResourceKind) []string {
	var p pool
	switch kind {
	case model.KindBus:
		p = a.buses
	case model.KindDriver:
		p = a.drivers
	case model.KindConductor:
		p = a.conductors
	}
	ids := make([]string, len(p.all))
	for i, m := range p.all {
		ids[i] = m.id
	}
	return ids
}

// Allocate reserves resources for slot. On failure it returns an
// *AllocationSkip and leaves the ledger untouched.
func (a *Allocator) Allocate(slot Slot) (Assignment, error) {
	iv := slot.Interval()
	var asg Assignment
	var refs []ResourceRef

	if a.opts.AutoAssignBuses {
		demand := slot.Route.ExpectedDemand
		if demand <= 0 {
			demand = a.opts.DefaultDemand
		}
		bus, reason := a.pick(a.buses, slot.DepotID, iv, a.opts.MaxTripsPerBus, demand)
		if bus == nil {
			detail := fmt.Sprintf("no free bus for depot %s", slot.DepotID)
			if reason == ReasonCapacity {
				detail = fmt.Sprintf("no free bus with %d seats for depot %s", demand, slot.DepotID)
			}
			return Assignment{}, &AllocationSkip{Reason: reason, Detail: detail}
		}
		asg.BusID = bus.id
		asg.Capacity = bus.capacity
		refs = append(refs, ResourceRef{Kind: model.KindBus, ID: bus.id})
	}
	if a.opts.AutoAssignCrew {
		drv, _ := a.pick(a.drivers, slot.DepotID, iv, a.opts.MaxTripsPerDriver, 0)
		if drv == nil {
			return Assignment{}, &AllocationSkip{Reason: ReasonNoDriver, Detail: fmt.Sprintf("no free driver for depot %s", slot.DepotID)}
		}
		con, _ := a.pick(a.conductors, slot.DepotID, iv, a.opts.MaxTripsPerConductor, 0)
		if con == nil {
			return Assignment{}, &AllocationSkip{Reason: ReasonNoConductor, Detail: fmt.Sprintf("no free conductor for depot %s", slot.DepotID)}
		}
		asg.DriverID = drv.id
		asg.ConductorID = con.id
		refs = append(refs,
			ResourceRef{Kind: model.KindDriver, ID: drv.id},
			ResourceRef{Kind: model.KindConductor, ID: con.id},
		)
	}
	if len(refs) > 0 && !a.ledger.Reserve(iv, refs...) {
		return Assignment{}, &AllocationSkip{Reason: noneReason(refs[0].Kind), Detail: "reservation conflict"}
	}
	return asg, nil
}

// pick chooses the eligible member with the fewest reservations, ties broken
// by id. The home depot is searched first; the shared pool is used when the
// depot has no member of this kind, or when nothing at home is eligible and
// borrowing is enabled.
func (a *Allocator) pick(p pool, depot string, iv model.Interval, limit, demand int) (*member, SkipReason) {
	home := p.home[depot]
	if len(home) == 0 {
		return a.best(p.kind, p.all, iv, limit, demand)
	}
	m, reason := a.best(p.kind, home, iv, limit, demand)
	if m == nil && a.opts.BorrowAcrossDepots {
		bm, breason := a.best(p.kind, p.all, iv, limit, demand)
		if bm != nil {
			return bm, ""
		}
		if reason != ReasonCapacity {
			reason = breason
		}
	}
	return m, reason
}

func (a *Allocator) best(kind model.ResourceKind, members []member, iv model.Interval, limit, demand int) (*member, SkipReason) {
	var chosen *member
	chosenCount := 0
	tooSmall := false
	for i := range members {
		m := &members[i]
		ref := ResourceRef{Kind: kind, ID: m.id}
		n := a.ledger.Count(ref)
		if limit > 0 && n >= limit {
			continue
		}
		if !a.ledger.Free(ref, iv) {
			continue
		}
		if m.capacity < demand {
			tooSmall = true
			continue
		}
		// members are sorted by id, so the first minimum wins ties
		if chosen == nil || n < chosenCount {
			chosen, chosenCount = m, n
		}
	}
	if chosen != nil {
		return chosen, ""
	}
	if tooSmall {
		return nil, ReasonCapacity
	}
	return nil, noneReason(kind)
}

func noneReason(kind model.ResourceKind) SkipReason {
	switch kind {
	case model.KindDriver:
		return ReasonNoDriver
	case model.KindConductor:
		return ReasonNoConductor
	default:
		return ReasonNoBus
	}
}
