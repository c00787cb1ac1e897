package events

import (
	"context"
	"time"
)

// Event is any progress event published during a run.
type Event interface {
	// Name is the stable wire name of the event, used as topic suffix.
	Name() string
	Run() string
}

// Publisher receives progress events. Implementations must not block.
type Publisher interface {
	Publish(Event)
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}

// RunStarted is published once the run has an id and options.
type RunStarted struct {
	RunID       string    `json:"run_id"`
	ServiceDate string    `json:"service_date"`
	DepotIDs    []string  `json:"depot_ids"`
	Time        time.Time `json:"time"`
}

func (RunStarted) Name() string { return "run_started" }
func (e RunStarted) Run() string { return e.RunID }

// SlotAllocated is published when the allocator reserves resources for a slot.
type SlotAllocated struct {
	RunID       string    `json:"run_id"`
	RouteID     string    `json:"route_id"`
	DepotID     string    `json:"depot_id"`
	BusID       string    `json:"bus_id,omitempty"`
	DriverID    string    `json:"driver_id,omitempty"`
	ConductorID string    `json:"conductor_id,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

func (SlotAllocated) Name() string { return "slot_allocated" }
func (e SlotAllocated) Run() string { return e.RunID }

// SlotSkipped is published when a slot ends without a trip.
type SlotSkipped struct {
	RunID   string    `json:"run_id"`
	RouteID string    `json:"route_id"`
	DepotID string    `json:"depot_id"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Reason  string    `json:"reason"`
	Detail  string    `json:"detail,omitempty"`
}

func (SlotSkipped) Name() string { return "slot_skipped" }
func (e SlotSkipped) Run() string { return e.RunID }

// TripCreated is published after the backend accepted a trip.
type TripCreated struct {
	RunID   string        `json:"run_id"`
	TripID  string        `json:"trip_id"`
	RouteID string        `json:"route_id"`
	BusID   string        `json:"bus_id,omitempty"`
	Start   time.Time     `json:"start"`
	Latency time.Duration `json:"latency"`
}

func (TripCreated) Name() string { return "trip_created" }
func (e TripCreated) Run() string { return e.RunID }

// RunFinished is published when the report has been built.
type RunFinished struct {
	RunID       string    `json:"run_id"`
	Created     int       `json:"created"`
	Skipped     int       `json:"skipped"`
	SuccessRate float64   `json:"success_rate"`
	Cancelled   bool      `json:"cancelled"`
	Time        time.Time `json:"time"`
}

func (RunFinished) Name() string { return "run_finished" }
func (e RunFinished) Run() string { return e.RunID }

// Envelope is the wire form of an event forwarded to progress sinks.
type Envelope struct {
	Event string    `json:"event"`
	RunID string    `json:"run_id"`
	Sent  time.Time `json:"sent"`
	Data  Event     `json:"data"`
}

// Wrap builds the envelope for e stamped with now.
func Wrap(e Event, now time.Time) Envelope {
	return Envelope{Event: e.Name(), RunID: e.Run(), Sent: now, Data: e}
}

// Sink delivers envelopes to an external channel such as a broker topic.
type Sink interface {
	Send(ctx context.Context, env Envelope) error
	Close() error
}
