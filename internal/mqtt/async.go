package mqtt

import (
	"errors"
	"log"
	"sync"
)

// ErrQueueFull is returned when the async queue cannot take another event.
var ErrQueueFull = errors.New("mqtt: publish queue full")

// Async wraps a Publisher so Publish and PublishSystem never block the
// caller. Events are forwarded in order by a single goroutine.
type Async struct {
	next  Publisher
	queue chan func() error

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewAsync starts forwarding to next with room for size queued events.
func NewAsync(next Publisher, size int) *Async {
	if size < 1 {
		size = 1
	}
	a := &Async{
		next:  next,
		queue: make(chan func() error, size),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for fn := range a.queue {
		if err := fn(); err != nil {
			log.Printf("mqtt: publish failed: %v", err)
		}
	}
}

func (a *Async) enqueue(fn func() error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errors.New("mqtt: publisher closed")
	}
	select {
	case a.queue <- fn:
		return nil
	default:
		return ErrQueueFull
	}
}

// Publish queues a command event.
func (a *Async) Publish(event CommandEvent) error {
	return a.enqueue(func() error { return a.next.Publish(event) })
}

// PublishSystem queues a system event.
func (a *Async) PublishSystem(event SystemEvent) error {
	return a.enqueue(func() error { return a.next.PublishSystem(event) })
}

// IsConnected reports the wrapped publisher's connection state, or false if
// it does not expose one.
func (a *Async) IsConnected() bool {
	if cs, ok := a.next.(ConnectionStatus); ok {
		return cs.IsConnected()
	}
	return false
}

// Close waits for queued events to be forwarded, then closes the wrapped
// publisher.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	return a.next.Close()
}
