package gate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func isTrue(v bool) bool { return v }

func TestGetSet(t *testing.T) {
	g := New(3)
	if g.Get() != 3 {
		t.Errorf("Expected 3, got %d", g.Get())
	}
	g.Set(5)
	if g.Get() != 5 {
		t.Errorf("Expected 5, got %d", g.Get())
	}
	if got := g.Update(func(v int) int { return v * 2 }); got != 10 {
		t.Errorf("Expected Update to return 10, got %d", got)
	}
}

func TestWaitUntilAlreadySatisfied(t *testing.T) {
	g := New(true)
	if !g.WaitUntil(isTrue, time.Millisecond) {
		t.Error("Expected predicate to hold immediately")
	}
}

func TestWaitUntilTimeout(t *testing.T) {
	g := New(false)
	start := time.Now()
	if g.WaitUntil(isTrue, 20*time.Millisecond) {
		t.Error("Expected WaitUntil to time out")
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Expected to wait at least 20ms, waited %v", elapsed)
	}
}

func TestWaitUntilWokenBySet(t *testing.T) {
	g := New(false)
	done := make(chan bool)
	go func() {
		done <- g.WaitUntil(isTrue, 0)
	}()

	time.Sleep(5 * time.Millisecond)
	g.Set(true)

	select {
	case ok := <-done:
		if !ok {
			t.Error("Expected WaitUntil to report success")
		}
	case <-time.After(time.Second):
		t.Fatal("WaitUntil did not wake after Set")
	}
}

func TestWaitUntilManyWaiters(t *testing.T) {
	g := New(0)
	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(threshold int) {
			defer wg.Done()
			if !g.WaitUntil(func(v int) bool { return v >= threshold }, time.Second) {
				t.Errorf("waiter %d timed out", threshold)
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		g.Update(func(v int) int { return v + 1 })
	}
	wg.Wait()
}

func TestWaitUntilContextCancelled(t *testing.T) {
	g := New(false)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error)
	go func() {
		errCh <- g.WaitUntilContext(ctx, isTrue)
	}()

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitUntilContext did not return after cancel")
	}
}
