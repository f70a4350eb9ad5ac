package queue

import (
	"context"
	"io"
	"sync"

	domainerrors "pyanalyzer/internal/core/errors"
	"pyanalyzer/internal/shared/observability"
)

type Priority int

const (
	High Priority = iota
	AboveNormal
	Normal
	BelowNormal
	Low

	levels = int(Low) + 1
)

func (p Priority) String() string {
	switch p {
	case High:
		return "high"
	case AboveNormal:
		return "above_normal"
	case Normal:
		return "normal"
	case BelowNormal:
		return "below_normal"
	case Low:
		return "low"
	}
	return "invalid"
}

func (p Priority) valid() bool { return p >= High && p <= Low }

// PriorityQueue is an unbounded multi-level queue. Dequeue always takes
// from the highest non-empty level, FIFO within a level.
type PriorityQueue[T any] struct {
	mu     sync.Mutex
	levels [levels][]T
	size   int
	closed bool
	// ready is closed and replaced whenever an item arrives or the queue
	// closes, waking every blocked Dequeue.
	ready chan struct{}
}

func NewPriorityQueue[T any]() *PriorityQueue[T] {
	return &PriorityQueue[T]{ready: make(chan struct{})}
}

func (q *PriorityQueue[T]) signalLocked() {
	close(q.ready)
	q.ready = make(chan struct{})
}

func (q *PriorityQueue[T]) Enqueue(p Priority, item T) error {
	if !p.valid() {
		return domainerrors.New(domainerrors.CodeValidationError, "invalid priority "+p.String())
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return domainerrors.Disposed("queue")
	}
	q.levels[p] = append(q.levels[p], item)
	q.size++
	observability.QueueEnqueuedTotal.WithLabelValues(p.String()).Inc()
	observability.QueueDepth.WithLabelValues(p.String()).Inc()
	q.signalLocked()
	return nil
}

func (q *PriorityQueue[T]) tryDequeueLocked() (T, bool) {
	var zero T
	for p := range q.levels {
		items := q.levels[p]
		if len(items) == 0 {
			continue
		}
		item := items[0]
		items[0] = zero
		q.levels[p] = items[1:]
		q.size--
		observability.QueueDepth.WithLabelValues(Priority(p).String()).Dec()
		return item, true
	}
	return zero, false
}

// TryDequeue takes an item without blocking.
func (q *PriorityQueue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tryDequeueLocked()
}

// Dequeue blocks until an item is available. Once the queue is closed and
// drained it returns io.EOF.
func (q *PriorityQueue[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if item, ok := q.tryDequeueLocked(); ok {
			q.mu.Unlock()
			return item, nil
		}
		if q.closed {
			q.mu.Unlock()
			return zero, io.EOF
		}
		ready := q.ready
		q.mu.Unlock()

		select {
		case <-ready:
		case <-ctx.Done():
			return zero, domainerrors.Cancelled(ctx.Err())
		}
	}
}

func (q *PriorityQueue[T]) Len() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

func (q *PriorityQueue[T]) LenAt(p Priority) int {
	if !p.valid() {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.levels[p])
}

// Close stops accepting items. Items already queued can still be taken.
func (q *PriorityQueue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	q.signalLocked()
	return nil
}

// Discard drops every queued item and returns how many there were.
func (q *PriorityQueue[T]) Discard() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.size
	for p := range q.levels {
		observability.QueueDepth.WithLabelValues(Priority(p).String()).Sub(float64(len(q.levels[p])))
		q.levels[p] = nil
	}
	q.size = 0
	return n
}
