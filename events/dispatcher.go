package events

import (
	"context"
	"log"
	"sync"
	"time"
)

type message struct {
	topic   string
	payload []byte
}

// Dispatcher decouples publishers from the bus. Publish only enqueues, so a
// slow or failing transport never delays the caller; a single worker keeps
// the enqueue order.
type Dispatcher struct {
	bus     Bus
	queue   chan message
	timeout time.Duration

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	started sync.Once
}

func NewDispatcher(bus Bus, size int, timeout time.Duration) *Dispatcher {
	if size <= 0 {
		size = DefaultBuffer
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		bus:     bus,
		queue:   make(chan message, size),
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

// Start launches the worker. It returns immediately.
func (d *Dispatcher) Start() {
	d.started.Do(func() { go d.run() })
}

// Publish enqueues payload for topic. It fails with ErrQueueFull instead of
// blocking and with ErrStopped after Stop.
func (d *Dispatcher) Publish(_ context.Context, topic string, payload []byte) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrStopped
	}
	select {
	case d.queue <- message{topic: topic, payload: payload}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop rejects new messages and waits for the queued ones to be handed to
// the bus, or for ctx to expire.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	d.Start()
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for msg := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.bus.Publish(ctx, msg.topic, msg.payload); err != nil {
			log.Printf("[EVENTS] publish to %s failed: %v", msg.topic, err)
		}
		cancel()
	}
}
