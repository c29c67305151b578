package queue

import "sync"

const (
	// DefaultQueueSize is the capacity used when none is given
	DefaultQueueSize = 1024
)

// InMemoryQueue implements Queue on a buffered channel.
type InMemoryQueue struct {
	ch   chan interface{}
	lock sync.Mutex
}

// NewInMemoryQueue creates a queue holding at most size items.
func NewInMemoryQueue(size int) *InMemoryQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &InMemoryQueue{
		ch: make(chan interface{}, size),
	}
}

// Enqueue adds an item to the end of the queue without blocking.
func (q *InMemoryQueue) Enqueue(item interface{}) error {
	select {
	case q.ch <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// Size returns the number of pending items.
func (q *InMemoryQueue) Size() int {
	return len(q.ch)
}

// ReadAllMessages removes and returns every pending item in order.
func (q *InMemoryQueue) ReadAllMessages() []interface{} {
	q.lock.Lock()
	defer q.lock.Unlock()

	var messages []interface{}
	for {
		select {
		case m := <-q.ch:
			messages = append(messages, m)
		default:
			return messages
		}
	}
}

// ClearQueue drops every pending item.
func (q *InMemoryQueue) ClearQueue() {
	q.lock.Lock()
	defer q.lock.Unlock()

	for {
		select {
		case <-q.ch:
		default:
			return
		}
	}
}
