package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/yatrik/scheduler/core/model"
)

func span(startMin, endMin int) model.Interval {
	return model.Interval{
		Start: serviceDay.Add(time.Duration(startMin) * time.Minute),
		End:   serviceDay.Add(time.Duration(endMin) * time.Minute),
	}
}

func TestLedger_FreeAndReserve(t *testing.T) {
	l := NewLedger()
	bus := ResourceRef{Kind: model.KindBus, ID: "b1"}

	assert.True(t, l.Reserve(span(600, 660), bus))
	assert.True(t, l.Reserve(span(480, 540), bus))
	assert.True(t, l.Reserve(span(720, 780), bus))

	assert.False(t, l.Free(bus, span(630, 650)), "inside a reservation")
	assert.False(t, l.Free(bus, span(530, 610)), "spanning two reservations")
	assert.False(t, l.Free(bus, span(400, 900)), "covering everything")
	assert.True(t, l.Free(bus, span(540, 600)), "touching both neighbours")
	assert.True(t, l.Free(bus, span(780, 800)))
	assert.True(t, l.Free(bus, span(0, 480)))

	ivs := l.Intervals(bus)
	assert.Len(t, ivs, 3)
	for i := 1; i < len(ivs); i++ {
		assert.True(t, ivs[i-1].Start.Before(ivs[i].Start), "intervals sorted")
	}
	assert.Equal(t, 3, l.Count(bus))
}

func TestLedger_ReserveIsAtomic(t *testing.T) {
	l := NewLedger()
	bus := ResourceRef{Kind: model.KindBus, ID: "b1"}
	drv := ResourceRef{Kind: model.KindDriver, ID: "d1"}

	assert.True(t, l.Reserve(span(600, 660), drv))
	assert.False(t, l.Reserve(span(630, 700), bus, drv))
	assert.Equal(t, 0, l.Count(bus), "bus must not be booked when the driver is busy")
	assert.Equal(t, 1, l.Count(drv))
}

func TestLedger_KindsAreSeparate(t *testing.T) {
	l := NewLedger()
	assert.True(t, l.Reserve(span(0, 60), ResourceRef{Kind: model.KindBus, ID: "x"}))
	assert.True(t, l.Free(ResourceRef{Kind: model.KindDriver, ID: "x"}, span(0, 60)))
}
