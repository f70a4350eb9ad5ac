package queue

import (
	"context"
	"io"
	"sync"
	"time"
)

// BatchQueue is a bounded FIFO drained in batches. Enqueue never blocks; a
// full or closed queue refuses the item and the caller decides what to do.
type BatchQueue[T any] struct {
	ch     chan T
	mu     sync.RWMutex
	closed bool
}

func NewBatchQueue[T any](capacity int) *BatchQueue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &BatchQueue[T]{ch: make(chan T, capacity)}
}

func (q *BatchQueue[T]) Enqueue(item T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.ch <- item:
		return true
	default:
		return false
	}
}

// DequeueBatch waits up to wait for a first item, then takes whatever else
// is immediately available up to maxItems. A non-positive wait makes it
// non-blocking. io.EOF means the queue was closed and fully drained.
func (q *BatchQueue[T]) DequeueBatch(ctx context.Context, maxItems int, wait time.Duration) ([]T, error) {
	if maxItems <= 0 {
		maxItems = 1
	}
	batch := make([]T, 0, maxItems)

	var timer <-chan time.Time
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		timer = t.C
	}

	select {
	case item, ok := <-q.ch:
		if !ok {
			return nil, io.EOF
		}
		batch = append(batch, item)
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		if wait <= 0 {
			return nil, nil
		}
		select {
		case item, ok := <-q.ch:
			if !ok {
				return nil, io.EOF
			}
			batch = append(batch, item)
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer:
			return nil, nil
		}
	}

	for len(batch) < maxItems {
		select {
		case item, ok := <-q.ch:
			if !ok {
				return batch, io.EOF
			}
			batch = append(batch, item)
		default:
			return batch, nil
		}
	}

	return batch, nil
}

func (q *BatchQueue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.ch)
	return nil
}

func (q *BatchQueue[T]) Len() int {
	if q == nil {
		return 0
	}
	return len(q.ch)
}
