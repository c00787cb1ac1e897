// Package events defines the scheduling progress events emitted while a mass
// scheduling run executes.
//
// Available event types:
//   - RunStarted: a run began for a service date
//   - SlotAllocated: a bus and crew were reserved for a slot
//   - SlotSkipped: a slot could not be scheduled
//   - TripCreated: the backend accepted a trip
//   - RunFinished: the run ended, possibly after an abort
package events
