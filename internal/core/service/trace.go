package service

import "sync"

const defaultTraceCapacity = 256

// traceRing keeps the most recent lines written by the pipeline and the
// rule evaluator.
type traceRing struct {
	mu   sync.Mutex
	buf  []string
	next int
	full bool
}

func newTraceRing(capacity int) *traceRing {
	if capacity < 0 {
		capacity = 0
	}
	return &traceRing{buf: make([]string, capacity)}
}

func (r *traceRing) add(line string) {
	if r == nil || len(r.buf) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = line
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *traceRing) lines() []string {
	if r == nil || len(r.buf) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]string(nil), r.buf[:r.next]...)
	}
	out := make([]string, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}
