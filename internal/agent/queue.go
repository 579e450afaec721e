package agent

import (
	"context"
	"sync"

	"github.com/strandworks/strand/pkg/models"
)

// EventQueue is an unbounded FIFO of run events with a single consumer.
// Producers never block. After Close the consumer drains buffered events and
// then sees the end of the stream; after Fail the consumer drains and then
// receives the failure. The first terminal call wins; later Close/Fail calls
// are ignored.
type EventQueue struct {
	mu     sync.Mutex
	buf    []*models.Event
	closed bool
	err    error

	// notify wakes a blocked consumer. Capacity 1; a pending wakeup is
	// never lost and duplicate wakeups collapse.
	notify chan struct{}
}

// NewEventQueue returns an empty open queue.
func NewEventQueue() *EventQueue {
	return &EventQueue{notify: make(chan struct{}, 1)}
}

// Push appends an event. Pushes after Close or Fail are dropped.
func (q *EventQueue) Push(ev *models.Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.buf = append(q.buf, ev)
	q.mu.Unlock()
	q.wake()
}

// Close marks the normal end of the stream. Buffered events remain readable.
func (q *EventQueue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
	}
	q.mu.Unlock()
	q.wake()
}

// Fail marks the stream as failed. Buffered events remain readable; once
// drained, Next returns err. A Fail after Close (or a second Fail) is ignored.
func (q *EventQueue) Fail(err error) {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.err = err
	}
	q.mu.Unlock()
	q.wake()
}

func (q *EventQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Next returns the next event in order. It blocks until an event is
// available, the queue terminates, or ctx is done. After the buffer drains it
// returns (nil, nil) for a closed queue or (nil, err) for a failed one.
func (q *EventQueue) Next(ctx context.Context) (*models.Event, error) {
	for {
		q.mu.Lock()
		if len(q.buf) > 0 {
			ev := q.buf[0]
			q.buf = q.buf[1:]
			q.mu.Unlock()
			return ev, nil
		}
		if q.closed {
			err := q.err
			q.mu.Unlock()
			return nil, err
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
