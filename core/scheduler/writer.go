package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yatrik/scheduler/core/logger"
	"github.com/yatrik/scheduler/core/model"
)

// Outcome is the final state of one generated slot.
type Outcome struct {
	Slot       Slot
	Assignment Assignment
	// Trip is the trip as sent to the backend, with the backend id once
	// created.
	Trip    model.Trip
	Created bool
	Reason  SkipReason
	Detail  string
	Latency time.Duration
}

// WriteJob is an allocated slot waiting to be persisted.
type WriteJob struct {
	// Index is the position of the outcome the job resolves.
	Index int
	Trip  model.Trip
}

// WriteResult is delivered for every job, in completion order.
type WriteResult struct {
	Index   int
	Trip    model.Trip
	Err     error
	Latency time.Duration
}

// Writer persists trips with bounded concurrency.
type Writer struct {
	creator     TripCreator
	concurrency int
	timeout     time.Duration
	log         logger.Logger
}

// NewWriter returns a Writer running at most concurrency creates at once.
// Each create is bounded by timeout when positive.
func NewWriter(creator TripCreator, concurrency int, timeout time.Duration, log logger.Logger) *Writer {
	if concurrency <= 0 {
		concurrency = defaultWriteConcurrency
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Writer{creator: creator, concurrency: concurrency, timeout: timeout, log: log}
}

// Write creates the trips of jobs and stores each result in outcomes at the
// job index, so the outcome order never depends on completion order. Once
// ctx is cancelled no further create is started and the remaining jobs are
// marked CANCELLED. Creates already in flight complete on a context that
// ignores the cancellation. done, when non-nil, is called after each job.
func (w *Writer) Write(ctx context.Context, jobs []WriteJob, outcomes []Outcome, done func(WriteResult)) {
	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(w.concurrency)
	finish := func(res WriteResult) {
		mu.Lock()
		o := &outcomes[res.Index]
		o.Latency = res.Latency
		var ce cancelledError
		switch {
		case errors.As(res.Err, &ce):
			o.Reason = ReasonCancelled
			o.Detail = "run aborted before write"
		case res.Err != nil:
			o.Reason = ReasonWriteError
			o.Detail = truncate(res.Err.Error(), maxDetail)
		default:
			o.Created = true
			o.Trip = res.Trip
		}
		mu.Unlock()
		if done != nil {
			done(res)
		}
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			finish(WriteResult{Index: job.Index, Trip: job.Trip, Err: cancelledError{}})
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				finish(WriteResult{Index: job.Index, Trip: job.Trip, Err: cancelledError{}})
				return nil
			}
			finish(w.create(ctx, job))
			return nil
		})
	}
	_ = g.Wait()
}

func (w *Writer) create(ctx context.Context, job WriteJob) WriteResult {
	wctx := context.WithoutCancel(ctx)
	if w.timeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(wctx, w.timeout)
		defer cancel()
	}
	start := time.Now()
	trip, err := w.creator.CreateTrip(wctx, job.Trip)
	lat := time.Since(start)
	if err != nil {
		w.log.Warnf("create trip for route %s at %s failed: %v", job.Trip.RouteID, job.Trip.StartTime, err)
		return WriteResult{Index: job.Index, Trip: job.Trip, Err: err, Latency: lat}
	}
	return WriteResult{Index: job.Index, Trip: trip, Latency: lat}
}

type cancelledError struct{}

func (cancelledError) Error() string { return "cancelled" }
