package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yatrik/scheduler/core/events"
)

type recordingSink struct {
	mu     sync.Mutex
	got    []events.Envelope
	err    error
	closed bool
}

func (s *recordingSink) Send(_ context.Context, env events.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, env)
	return s.err
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestBusForwardsEnvelopes(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	bus := New(WithClock(func() time.Time { return now }))
	sink := &recordingSink{}
	bus.Forward(sink)

	bus.Publish(events.RunStarted{RunID: "r1", ServiceDate: "2025-03-01"})
	bus.Publish(events.SlotSkipped{RunID: "r1", RouteID: "rt1", Reason: "NO_BUS"})
	require.NoError(t, bus.Close())

	require.Len(t, sink.got, 2)
	assert.Equal(t, "run_started", sink.got[0].Event)
	assert.Equal(t, "slot_skipped", sink.got[1].Event)
	assert.Equal(t, "r1", sink.got[1].RunID)
	assert.Equal(t, now, sink.got[1].Sent)
	assert.True(t, sink.closed)
}

func TestBusSinkErrorDoesNotStopForwarding(t *testing.T) {
	bus := New()
	failing := &recordingSink{err: errors.New("broker down")}
	ok := &recordingSink{}
	bus.Forward(failing)
	bus.Forward(ok)

	for i := 0; i < 3; i++ {
		bus.Publish(events.TripCreated{RunID: "r2", TripID: "t"})
	}
	require.NoError(t, bus.Close())
	assert.Len(t, failing.got, 3)
	assert.Len(t, ok.got, 3)
}

func TestBusPublishAfterCloseIsIgnored(t *testing.T) {
	bus := New()
	sink := &recordingSink{}
	bus.Forward(sink)
	require.NoError(t, bus.Close())
	bus.Publish(events.RunFinished{RunID: "r3"})
	assert.Empty(t, sink.got)
}

func TestBusSatisfiesPublisher(t *testing.T) {
	var _ events.Publisher = New()
}
