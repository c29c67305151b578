package queue

import "errors"

// ErrQueueFull is returned by Enqueue when the queue has no free capacity.
var ErrQueueFull = errors.New("queue is full")

// Queue is a FIFO of pending items drained once per tick.
// Implementations must be safe for one producer per connection and a single
// consumer.
type Queue interface {
	Enqueue(item interface{}) error
	Size() int
	ReadAllMessages() []interface{}
	ClearQueue()
}
