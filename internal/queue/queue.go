package queue

import (
	"sync"
	"time"

	"media-render/internal/codec"
	"media-render/internal/gate"
	"media-render/internal/metrics"
	"media-render/internal/rational"
)

// Unit is one ready-to-encode media unit.
type Unit struct {
	PTS  rational.Rational
	Kind codec.MediaKind
	// Data holds an RGBA raster for video or packed samples for audio.
	Data []byte
	// Size is the number of valid bytes in Data.
	Size int
	// Samples is the per-channel sample count of an audio unit.
	Samples int
	// Surface replaces Data for hardware video units.
	Surface codec.Surface
}

// Release frees the unit's hardware surface, if any.
func (u *Unit) Release() {
	if u.Surface != nil {
		u.Surface.Free()
		u.Surface = nil
	}
}

// Queue is a bounded FIFO of units with not-full and not-empty gates.
//
// Enqueue never blocks: the producer is expected to wait for not-full first.
// Dequeue never blocks either; it reports false on an empty queue.
type Queue struct {
	capacity int

	mu    sync.Mutex
	units []*Unit

	notFull  *gate.Value[bool]
	notEmpty *gate.Value[bool]
}

// New creates a queue holding at most capacity units before clearing not-full.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		capacity: capacity,
		units:    make([]*Unit, 0, capacity),
		notFull:  gate.New(true),
		notEmpty: gate.New(false),
	}
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return q.capacity }

// Len returns the number of queued units.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.units)
}

// Enqueue appends u. Once the queue reaches capacity not-full is cleared.
// Not-empty is always signaled.
func (q *Queue) Enqueue(u *Unit) {
	q.mu.Lock()
	q.units = append(q.units, u)
	n := len(q.units)
	if n >= q.capacity {
		q.notFull.Set(false)
	}
	q.notEmpty.Set(true)
	q.mu.Unlock()

	metrics.QueueDepth.Set(float64(n))
	metrics.UnitsEnqueued.WithLabelValues(u.Kind.String()).Inc()
}

// Dequeue removes and returns the oldest unit. It reports false when empty.
func (q *Queue) Dequeue() (*Unit, bool) {
	q.mu.Lock()
	if len(q.units) == 0 {
		q.mu.Unlock()
		return nil, false
	}
	u := q.units[0]
	q.units[0] = nil
	q.units = q.units[1:]
	n := len(q.units)
	if n < q.capacity {
		q.notFull.Set(true)
	}
	if n == 0 {
		q.notEmpty.Set(false)
	}
	q.mu.Unlock()

	metrics.QueueDepth.Set(float64(n))
	return u, true
}

// WaitForNotFull blocks until the queue is below capacity or timeout
// elapses. A zero timeout waits indefinitely.
func (q *Queue) WaitForNotFull(timeout time.Duration) bool {
	return q.notFull.WaitUntil(isSet, timeout)
}

// WaitForNotEmpty blocks until the queue holds a unit or timeout elapses.
// A zero timeout waits indefinitely.
func (q *Queue) WaitForNotEmpty(timeout time.Duration) bool {
	return q.notEmpty.WaitUntil(isSet, timeout)
}

// Discard drops every queued unit, releasing hardware surfaces, and returns
// how many were dropped.
func (q *Queue) Discard() int {
	q.mu.Lock()
	units := q.units
	q.units = make([]*Unit, 0, q.capacity)
	q.notFull.Set(true)
	q.notEmpty.Set(false)
	q.mu.Unlock()

	for _, u := range units {
		u.Release()
	}
	metrics.QueueDepth.Set(0)
	return len(units)
}

func isSet(v bool) bool { return v }
