package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yatrik/scheduler/core/events"
)

// Subscriber is the part of the progress bus the collector needs.
type Subscriber interface {
	Subscribe() <-chan events.Event
	Unsubscribe(<-chan events.Event)
}

// NewProgressCounter creates the counter fed by StartEventCollector and
// registers it on reg, reusing an existing registration.
func NewProgressCounter(reg prometheus.Registerer) (*prometheus.CounterVec, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_progress_events_total",
		Help: "Progress events published by scheduling runs",
	}, []string{"event"}))
}

// StartEventCollector subscribes to the progress bus and counts events by
// name. It stops when the context is canceled or the bus is closed.
func StartEventCollector(ctx context.Context, bus Subscriber, counter *prometheus.CounterVec) {
	if bus == nil || counter == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				counter.WithLabelValues(ev.Name()).Inc()
			}
		}
	}()
}
