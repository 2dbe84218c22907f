package ingest

import (
	"sync"
	"sync/atomic"
	"time"

	"vpcollector/internal/okx/profile"
)

// Queue is the bounded FIFO buffer between the feed reader and the
// aggregator. Push never blocks the feed: when the buffer is full the oldest
// buffered event is evicted and counted, favoring bounded staleness over
// stalling the socket read loop.
type Queue struct {
	mu sync.Mutex // serializes producers for the evict-then-push step
	ch chan profile.TradeEvent

	overflow atomic.Uint64
}

// NewQueue creates a queue holding at most capacity events.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		ch: make(chan profile.TradeEvent, capacity),
	}
}

// Push enqueues one event, evicting the oldest buffered event when full.
func (q *Queue) Push(ev profile.TradeEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		select {
		case q.ch <- ev:
			return
		default:
		}

		// Full: drop the head. The consumer may race us for it, in which
		// case the retry simply succeeds without an eviction.
		select {
		case <-q.ch:
			q.overflow.Add(1)
		default:
		}
	}
}

// PopBatch returns up to maxN events in FIFO order, blocking up to timeout
// for the first one. A nil return on timeout is not an error.
func (q *Queue) PopBatch(maxN int, timeout time.Duration) []profile.TradeEvent {
	if maxN <= 0 {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var out []profile.TradeEvent
	select {
	case ev := <-q.ch:
		out = append(out, ev)
	case <-timer.C:
		return nil
	}

	for len(out) < maxN {
		select {
		case ev := <-q.ch:
			out = append(out, ev)
		default:
			return out
		}
	}
	return out
}

// Len returns the number of currently buffered events.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Overflow returns how many events were evicted under backpressure.
func (q *Queue) Overflow() uint64 {
	return q.overflow.Load()
}
