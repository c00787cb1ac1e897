// Package eventbus fans scheduling progress events out to in-process
// subscribers and to external sinks without ever blocking the publisher.
package eventbus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yatrik/scheduler/core/events"
	"github.com/yatrik/scheduler/core/logger"
)

// progressBuffer is large enough to absorb a burst of slot events while a
// broker round-trip is in flight.
const progressBuffer = 1024

// Bus is the progress publisher handed to the engine.
type Bus struct {
	*TypedBus[events.Event]

	log     logger.Logger
	now     func() time.Time
	timeout time.Duration

	mu    sync.Mutex
	sinks []events.Sink
	wg    sync.WaitGroup
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used to report sink failures.
func WithLogger(l logger.Logger) Option { return func(b *Bus) { b.log = l } }

// WithClock overrides the clock that stamps envelopes.
func WithClock(now func() time.Time) Option { return func(b *Bus) { b.now = now } }

// WithSendTimeout bounds each sink delivery.
func WithSendTimeout(d time.Duration) Option { return func(b *Bus) { b.timeout = d } }

// New creates a progress bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		TypedBus: NewTypedBuffered[events.Event](progressBuffer),
		log:      logger.NopLogger{},
		now:      time.Now,
		timeout:  5 * time.Second,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Forward delivers every event published from now on to sink, wrapped in an
// envelope. Each sink gets its own goroutine so a slow broker only delays
// itself.
func (b *Bus) Forward(sink events.Sink) {
	ch := b.Subscribe()
	b.mu.Lock()
	b.sinks = append(b.sinks, sink)
	b.mu.Unlock()
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for e := range ch {
			ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
			if err := sink.Send(ctx, events.Wrap(e, b.now())); err != nil {
				b.log.Warnf("progress sink: %s for run %s: %v", e.Name(), e.Run(), err)
			}
			cancel()
		}
	}()
}

// Close stops accepting events, drains the forwarders and closes every sink.
func (b *Bus) Close() error {
	b.TypedBus.Close()
	b.wg.Wait()
	if n := b.Dropped(); n > 0 {
		b.log.Warnf("progress bus dropped %d event deliveries", n)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	for _, s := range b.sinks {
		errs = append(errs, s.Close())
	}
	b.sinks = nil
	return errors.Join(errs...)
}
