package negotiation

import "sync"

// eventQueue is an unbounded FIFO with a single consumer. push never blocks,
// so relay readers and engine callbacks cannot stall behind a slow session.
type eventQueue struct {
	mu     sync.Mutex
	items  []sessionEvent
	notify chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{notify: make(chan struct{}, 1)}
}

// push appends ev and wakes the consumer.
func (q *eventQueue) push(ev sessionEvent) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// drain removes and returns everything queued so far, in arrival order.
func (q *eventQueue) drain() []sessionEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// ready is signalled after every push.
func (q *eventQueue) ready() <-chan struct{} {
	return q.notify
}
