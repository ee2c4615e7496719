package gate

import (
	"context"
	"sync"
	"time"
)

// Value is a value guarded by a mutex and a condition variable.
// Every mutation wakes all waiters, which re-check their predicate.
type Value[T any] struct {
	mu   sync.Mutex
	cond *sync.Cond
	v    T
}

// New creates a Value holding initial.
func New[T any](initial T) *Value[T] {
	g := &Value[T]{v: initial}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Get returns the current value.
func (g *Value[T]) Get() T {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.v
}

// Set stores v and wakes all waiters.
func (g *Value[T]) Set(v T) {
	g.mu.Lock()
	g.v = v
	g.mu.Unlock()
	g.cond.Broadcast()
}

// Update applies fn to the current value under the lock, stores the result,
// wakes all waiters and returns the new value.
func (g *Value[T]) Update(fn func(T) T) T {
	g.mu.Lock()
	g.v = fn(g.v)
	v := g.v
	g.mu.Unlock()
	g.cond.Broadcast()
	return v
}

// WaitUntil blocks until pred holds for the current value or timeout elapses.
// A timeout of zero or less waits indefinitely. It reports whether pred held.
func (g *Value[T]) WaitUntil(pred func(T) bool, timeout time.Duration) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if pred(g.v) {
		return true
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
		timer := time.AfterFunc(timeout, g.wake)
		defer timer.Stop()
	}

	for !pred(g.v) {
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return false
		}
		g.cond.Wait()
	}
	return true
}

// WaitUntilContext blocks until pred holds or ctx is done.
func (g *Value[T]) WaitUntilContext(ctx context.Context, pred func(T) bool) error {
	stop := context.AfterFunc(ctx, g.wake)
	defer stop()

	g.mu.Lock()
	defer g.mu.Unlock()
	for !pred(g.v) {
		if err := ctx.Err(); err != nil {
			return err
		}
		g.cond.Wait()
	}
	return nil
}

// wake takes the lock before broadcasting so a waiter between its predicate
// check and cond.Wait cannot miss the signal.
func (g *Value[T]) wake() {
	g.mu.Lock()
	g.cond.Broadcast()
	g.mu.Unlock()
}
