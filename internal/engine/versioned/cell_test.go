package versioned

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domainerrors "pyanalyzer/internal/core/errors"
)

func TestCell_GetBeforeSet(t *testing.T) {
	var c Cell[string]
	if _, err := c.Get(); !errors.Is(err, domainerrors.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if _, _, ok := c.TryGet(); ok {
		t.Fatal("expected TryGet to report unset cell")
	}
}

func TestCell_VersionMonotonic(t *testing.T) {
	var c Cell[int]
	var last uint64
	for i := 1; i <= 10; i++ {
		v := c.Set(i)
		if v <= last {
			t.Fatalf("version did not increase: %d after %d", v, last)
		}
		last = v
	}
	got, err := c.Get()
	if err != nil || got != 10 {
		t.Fatalf("expected 10, got %d (%v)", got, err)
	}
}

func TestCell_ConcurrentWritersStillIncrease(t *testing.T) {
	var c Cell[int]
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Set(i)
		}(i)
	}
	wg.Wait()
	if c.Version() != 50 {
		t.Fatalf("expected version 50, got %d", c.Version())
	}
}

func TestCell_GetAsyncWaitsForFirstValue(t *testing.T) {
	var c Cell[string]
	got := make(chan string, 1)
	go func() {
		v, err := c.GetAsync(context.Background())
		if err != nil {
			t.Errorf("GetAsync: %v", err)
		}
		got <- v
	}()

	waitForPending(t, &c)
	c.Set("first")
	c.Set("second")

	select {
	case v := <-got:
		if v != "first" {
			t.Fatalf("expected the value that woke the waiter, got %q", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never woke")
	}
}

func TestCell_CoalescedWaiters(t *testing.T) {
	var c Cell[int]
	const n = 16

	// All waiters must observe the same pending channel.
	first := c.Changed()
	for i := 0; i < n; i++ {
		if c.Changed() != first {
			t.Fatal("expected a single shared pending registration")
		}
	}

	results := make(chan int, n)
	for i := 0; i < n; i++ {
		go func() {
			v, err := c.GetAsync(context.Background())
			if err != nil {
				t.Errorf("GetAsync: %v", err)
			}
			results <- v
		}()
	}
	time.Sleep(20 * time.Millisecond)
	c.Set(42)

	for i := 0; i < n; i++ {
		select {
		case v := <-results:
			if v != 42 {
				t.Fatalf("expected 42, got %d", v)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("waiter never woke")
		}
	}

	c.mu.Lock()
	pending := c.next
	c.mu.Unlock()
	if pending != nil {
		t.Fatal("expected pending registration to be released after Set")
	}
}

func TestCell_Cancellation(t *testing.T) {
	t.Run("AlreadyCancelled", func(t *testing.T) {
		var c Cell[int]
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := c.GetAsync(ctx)
		if !errors.Is(err, domainerrors.ErrCancelled) || !errors.Is(err, context.Canceled) {
			t.Fatalf("expected cancellation, got %v", err)
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.next != nil {
			t.Fatal("cancelled call must not register a waiter")
		}
	})

	t.Run("CancelledWhileWaiting", func(t *testing.T) {
		var c Cell[int]
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := c.GetAsync(ctx)
		if !errors.Is(err, domainerrors.ErrCancelled) || !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline cancellation, got %v", err)
		}
		if c.Waiters() != 0 {
			t.Fatalf("expected cancelled waiter to be released, %d remain", c.Waiters())
		}
		c.mu.Lock()
		leaked := c.next != nil
		c.mu.Unlock()
		if leaked {
			t.Fatal("expected pending slot to be dropped with its last waiter")
		}
		c.Set(1)
		if v, err := c.Get(); err != nil || v != 1 {
			t.Fatalf("cell unusable after cancelled wait: %d %v", v, err)
		}
	})
}

func TestCell_WaitNewer(t *testing.T) {
	var c Cell[string]
	c.Set("a")
	_, seen, _ := c.TryGet()

	done := make(chan string, 1)
	go func() {
		v, ver, err := c.WaitNewer(context.Background(), seen)
		if err != nil {
			t.Errorf("WaitNewer: %v", err)
		}
		if ver <= seen {
			t.Errorf("expected newer version than %d, got %d", seen, ver)
		}
		done <- v
	}()
	waitForPending(t, &c)
	c.Set("b")

	select {
	case v := <-done:
		if v != "b" {
			t.Fatalf("expected b, got %q", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitNewer never returned")
	}
}

func waitForPending[T any](t *testing.T, c *Cell[T]) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		pending := c.next != nil
		c.mu.Unlock()
		if pending {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("waiter never registered")
}
