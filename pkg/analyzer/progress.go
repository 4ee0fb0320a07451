package analyzer

import (
	"context"
	"sync/atomic"

	"fortio.org/safecast"
)

// ProgressFunc reports progress: done units out of total, and the unit just
// finished (a module path or name).
type ProgressFunc func(done, total int, unit string)

// Tracker counts finished units of work across modules. It is safe for
// concurrent use.
type Tracker struct {
	total    atomic.Int32
	done     atomic.Int32
	callback ProgressFunc
}

// NewTracker creates a tracker calling fn on every Tick.
func NewTracker(fn ProgressFunc) *Tracker {
	return &Tracker{callback: fn}
}

// Add grows the expected total by n. Values that do not fit are ignored.
func (t *Tracker) Add(n int) {
	if t == nil {
		return
	}
	if v, err := safecast.Conv[int32](n); err == nil {
		t.total.Add(v)
	}
}

// Tick marks one unit as finished.
func (t *Tracker) Tick(unit string) {
	if t == nil {
		return
	}
	done := int(t.done.Add(1))
	if t.callback != nil {
		t.callback(done, int(t.total.Load()), unit)
	}
}

// Done returns the number of finished units.
func (t *Tracker) Done() int {
	if t == nil {
		return 0
	}
	return int(t.done.Load())
}

// Total returns the expected number of units.
func (t *Tracker) Total() int {
	if t == nil {
		return 0
	}
	return int(t.total.Load())
}

type trackerKey struct{}

// WithTracker attaches a tracker to ctx.
func WithTracker(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, trackerKey{}, t)
}

// TrackerFromContext returns the tracker attached to ctx. A nil *Tracker is
// returned when none is attached; its methods are no-ops.
func TrackerFromContext(ctx context.Context) *Tracker {
	if t, ok := ctx.Value(trackerKey{}).(*Tracker); ok {
		return t
	}
	return nil
}
