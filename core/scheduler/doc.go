// Package scheduler implements the mass trip-scheduling engine. It turns a
// service date, a set of depots and the fetched routes, buses and crew into
// trips: slots are generated per route, resources are reserved on an
// interval ledger, trips are written to the backend with bounded
// concurrency, and a report summarises what was created and skipped.
package scheduler
