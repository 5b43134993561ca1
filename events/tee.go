package events

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultSinkBuffer is the per-sink queue length of a Tee.
	DefaultSinkBuffer = 256
	sinkSendTimeout   = 10 * time.Second
)

// Sink receives a copy of every published message. Sinks are best effort:
// their failures are logged and never reach the publisher.
type Sink interface {
	Send(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// Tee is a Bus that mirrors every publish to a set of sinks after the
// primary bus has accepted it. Each sink drains its own bounded queue, so a
// slow sink never delays the bus; when its queue is full the copy is dropped.
type Tee struct {
	Bus
	workers []*sinkWorker

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

type sinkWorker struct {
	sink    Sink
	queue   chan message
	done    chan struct{}
	dropped atomic.Uint64
}

func NewTee(bus Bus, sinks ...Sink) *Tee {
	return NewTeeWithBuffer(bus, DefaultSinkBuffer, sinks...)
}

func NewTeeWithBuffer(bus Bus, buffer int, sinks ...Sink) *Tee {
	if buffer <= 0 {
		buffer = DefaultSinkBuffer
	}
	t := &Tee{Bus: bus}
	for _, sink := range sinks {
		w := &sinkWorker{sink: sink, queue: make(chan message, buffer), done: make(chan struct{})}
		t.workers = append(t.workers, w)
		go w.run()
	}
	return t
}

func (w *sinkWorker) run() {
	defer close(w.done)
	for msg := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sinkSendTimeout)
		if err := w.sink.Send(ctx, msg.topic, msg.payload); err != nil {
			log.Printf("[EVENTS] sink %T failed for %s: %v", w.sink, msg.topic, err)
		}
		cancel()
	}
}

func (t *Tee) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := t.Bus.Publish(ctx, topic, payload); err != nil {
		return err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil
	}
	for _, w := range t.workers {
		select {
		case w.queue <- message{topic: topic, payload: payload}:
		default:
			w.dropped.Add(1)
			log.Printf("[EVENTS] sink %T is behind, dropped copy of %s", w.sink, topic)
		}
	}
	return nil
}

// Dropped counts copies discarded because a sink queue was full.
func (t *Tee) Dropped() uint64 {
	var n uint64
	for _, w := range t.workers {
		n += w.dropped.Load()
	}
	return n
}

// Stop stops the bus, lets every sink drain what it has queued, then closes
// the sinks.
func (t *Tee) Stop() error {
	var errs []error
	t.once.Do(func() {
		errs = append(errs, t.Bus.Stop())

		t.mu.Lock()
		t.closed = true
		for _, w := range t.workers {
			close(w.queue)
		}
		t.mu.Unlock()

		for _, w := range t.workers {
			<-w.done
			errs = append(errs, w.sink.Close())
		}
	})
	return errors.Join(errs...)
}
