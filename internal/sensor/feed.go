package sensor

import (
	"math"
	"sync"
	"time"
)

// Feed is a motion-sample source fed by callers (the control API, or any
// in-process producer standing in for an accelerometer). Delivery is rate
// limited to one sample per minInterval, matching the fixed sampling
// cadence of a real accelerometer; faster pushes are dropped. Samples
// pushed while the feed is stopped are dropped. Start and Stop are
// idempotent.
type Feed struct {
	mu          sync.Mutex
	onSample    func(magnitude float64)
	minInterval time.Duration
	last        time.Time

	// Now is injectable for tests.
	Now func() time.Time
}

func NewFeed(minInterval time.Duration) *Feed {
	return &Feed{minInterval: minInterval, Now: time.Now}
}

func (f *Feed) Start(onSample func(magnitude float64)) {
	f.mu.Lock()
	f.onSample = onSample
	f.last = time.Time{}
	f.mu.Unlock()
}

func (f *Feed) Stop() {
	f.mu.Lock()
	f.onSample = nil
	f.mu.Unlock()
}

// Push delivers one acceleration magnitude sample, subject to the sampling
// interval.
func (f *Feed) Push(magnitude float64) {
	f.mu.Lock()
	cb := f.onSample
	if cb == nil {
		f.mu.Unlock()
		return
	}
	now := f.Now()
	if f.minInterval > 0 && !f.last.IsZero() && now.Sub(f.last) < f.minInterval {
		f.mu.Unlock()
		return
	}
	f.last = now
	f.mu.Unlock()
	cb(magnitude)
}

// PushVector delivers a raw acceleration vector, converted to magnitude.
func (f *Feed) PushVector(x, y, z float64) {
	f.Push(math.Sqrt(x*x + y*y + z*z))
}
