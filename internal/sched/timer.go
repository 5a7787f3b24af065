package sched

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Timer is an in-process scheduler satisfying the store.Scheduler
// contract: it arms a single time.Timer for the earliest pending fire and
// delivers the alarm id to the handler near the requested wall-clock time.
// Production deployments may swap in a platform notification service; this
// implementation keeps headless runs self-contained.
type Timer struct {
	mu      sync.Mutex
	next    int
	pending map[string]*entry
	q       fireQueue
	wake    chan struct{}
	handler func(alarmID string)
	logger  *slog.Logger

	Now func() time.Time
}

type entry struct {
	handle    string
	alarmID   string
	at        time.Time
	cancelled bool
}

func NewTimer(logger *slog.Logger) *Timer {
	return &Timer{
		pending: make(map[string]*entry),
		wake:    make(chan struct{}, 1),
		logger:  logger,
		Now:     time.Now,
	}
}

// SetHandler installs the fire callback. Must be called before Run.
func (t *Timer) SetHandler(h func(alarmID string)) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

func (t *Timer) Schedule(alarmID string, fireAt time.Time, payload map[string]string) (string, error) {
	t.mu.Lock()
	t.next++
	e := &entry{
		handle:  fmt.Sprintf("sched-%d", t.next),
		alarmID: alarmID,
		at:      fireAt,
	}
	t.pending[e.handle] = e
	heap.Push(&t.q, e)
	t.mu.Unlock()
	t.signal()
	return e.handle, nil
}

// Cancel is idempotent; cancelling an unknown handle is a no-op.
func (t *Timer) Cancel(handle string) error {
	t.mu.Lock()
	if e, ok := t.pending[handle]; ok {
		e.cancelled = true
		delete(t.pending, handle)
	}
	t.mu.Unlock()
	t.signal()
	return nil
}

func (t *Timer) ListScheduled() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.pending))
	for h := range t.pending {
		out = append(out, h)
	}
	return out
}

func (t *Timer) signal() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Run drives the timer loop until ctx is done. The handler is always
// invoked without the internal lock held.
func (t *Timer) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	for {
		fireAt, ok := t.peek()
		if ok {
			d := fireAt.Sub(t.Now())
			if d < 0 {
				d = 0
			}
			timer.Reset(d)
		}

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-t.wake:
			if ok && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
			now := t.Now()
			for {
				e := t.pop(now)
				if e == nil {
					break
				}
				if t.logger != nil {
					t.logger.Debug("delivering scheduled fire", "alarm_id", e.alarmID, "handle", e.handle)
				}
				if h := t.currentHandler(); h != nil {
					h(e.alarmID)
				}
			}
		}
	}
}

// peek returns the earliest non-cancelled fire time, discarding cancelled
// heap entries along the way.
func (t *Timer) peek() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.q.Len() > 0 {
		e := t.q[0]
		if e.cancelled {
			heap.Pop(&t.q)
			continue
		}
		return e.at, true
	}
	return time.Time{}, false
}

// pop removes and returns the earliest due entry, or nil when nothing is
// due at now.
func (t *Timer) pop(now time.Time) *entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.q.Len() > 0 {
		e := t.q[0]
		if e.cancelled {
			heap.Pop(&t.q)
			continue
		}
		if e.at.After(now) {
			return nil
		}
		heap.Pop(&t.q)
		delete(t.pending, e.handle)
		return e
	}
	return nil
}

func (t *Timer) currentHandler() func(string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handler
}

type fireQueue []*entry

var _ heap.Interface = (*fireQueue)(nil)

func (q fireQueue) Len() int           { return len(q) }
func (q fireQueue) Less(i, j int) bool { return q[i].at.Before(q[j].at) }
func (q fireQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *fireQueue) Push(x any) {
	*q = append(*q, x.(*entry))
}

func (q *fireQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return it
}
