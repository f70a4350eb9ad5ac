package queue

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	domainerrors "pyanalyzer/internal/core/errors"
)

func TestPriorityQueue_StrictPriorityThenFIFO(t *testing.T) {
	q := NewPriorityQueue[string]()
	t.Cleanup(func() { _ = q.Close() })

	must := func(p Priority, s string) {
		if err := q.Enqueue(p, s); err != nil {
			t.Fatalf("enqueue %s: %v", s, err)
		}
	}
	must(BelowNormal, "members")
	must(Normal, "vars-a")
	must(AboveNormal, "changed")
	must(Normal, "vars-b")
	must(High, "urgent")

	if q.Len() != 5 || q.LenAt(Normal) != 2 {
		t.Fatalf("unexpected sizes %d/%d", q.Len(), q.LenAt(Normal))
	}

	want := []string{"urgent", "changed", "vars-a", "vars-b", "members"}
	for _, w := range want {
		got, err := q.Dequeue(context.Background())
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if got != w {
			t.Fatalf("expected %s, got %s", w, got)
		}
	}
	if _, ok := q.TryDequeue(); ok {
		t.Fatal("queue should be empty")
	}
}

func TestPriorityQueue_DequeueBlocksUntilEnqueue(t *testing.T) {
	q := NewPriorityQueue[int]()
	t.Cleanup(func() { _ = q.Close() })

	got := make(chan int, 1)
	go func() {
		v, err := q.Dequeue(context.Background())
		if err == nil {
			got <- v
		}
	}()

	time.Sleep(10 * time.Millisecond)
	if err := q.Enqueue(Low, 7); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	select {
	case v := <-got:
		if v != 7 {
			t.Fatalf("got %d", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked dequeue never woke")
	}
}

func TestPriorityQueue_CloseDrainsThenEOF(t *testing.T) {
	q := NewPriorityQueue[int]()
	if err := q.Enqueue(Normal, 1); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Enqueue(Normal, 2); !errors.Is(err, domainerrors.ErrDisposed) {
		t.Fatalf("expected disposed, got %v", err)
	}

	if v, err := q.Dequeue(context.Background()); err != nil || v != 1 {
		t.Fatalf("expected drained item, got %d, %v", v, err)
	}
	if _, err := q.Dequeue(context.Background()); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestPriorityQueue_CancelledDequeue(t *testing.T) {
	q := NewPriorityQueue[int]()
	t.Cleanup(func() { _ = q.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := q.Dequeue(ctx)
	if !errors.Is(err, domainerrors.ErrCancelled) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestPriorityQueue_InvalidPriorityAndDiscard(t *testing.T) {
	q := NewPriorityQueue[int]()
	if err := q.Enqueue(Priority(42), 1); !domainerrors.IsCode(err, domainerrors.CodeValidationError) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_ = q.Enqueue(High, 1)
	_ = q.Enqueue(Low, 2)
	if n := q.Discard(); n != 2 || q.Len() != 0 {
		t.Fatalf("discard returned %d, len %d", n, q.Len())
	}
}
