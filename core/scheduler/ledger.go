package scheduler

import (
	"sort"
	"sync"

	"github.com/yatrik/scheduler/core/model"
)

// ResourceRef identifies one bus, driver or conductor.
type ResourceRef struct {
	Kind model.ResourceKind
	ID   string
}

// Ledger records the reserved intervals of every resource. Each resource's
// intervals are kept sorted by start and never overlap.
type Ledger struct {
	mu    sync.Mutex
	spans map[ResourceRef][]model.Interval
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{spans: make(map[ResourceRef][]model.Interval)}
}

// Free reports whether ref has no reservation overlapping iv.
func (l *Ledger) Free(ref ResourceRef, iv model.Interval) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.free(ref, iv)
}

func (l *Ledger) free(ref ResourceRef, iv model.Interval) bool {
	spans := l.spans[ref]
	// first reservation starting at or after the end of iv
	i := sort.Search(len(spans), func(i int) bool { return !spans[i].Start.Before(iv.End) })
	if i == 0 {
		return true
	}
	return !spans[i-1].Overlaps(iv)
}

// Count returns the number of reservations held by ref.
func (l *Ledger) Count(ref ResourceRef) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.spans[ref])
}

// Reserve books iv for every ref, or for none of them when any is busy.
func (l *Ledger) Reserve(iv model.Interval, refs ...ResourceRef) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range refs {
		if !l.free(r, iv) {
			return false
		}
	}
	for _, r := range refs {
		spans := l.spans[r]
		i := sort.Search(len(spans), func(i int) bool { return !spans[i].Start.Before(iv.Start) })
		spans = append(spans, model.Interval{})
		copy(spans[i+1:], spans[i:])
		spans[i] = iv
		l.spans[r] = spans
	}
	return true
}

// Intervals returns a copy of the reservations of ref in start order.
func (l *Ledger) Intervals(ref ResourceRef) []model.Interval {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.Interval(nil), l.spans[ref]...)
}
