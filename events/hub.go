package events

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const DefaultBuffer = 64

// Subscription is a live feed of one topic. C is closed when the
// subscription or the hub is closed.
type Subscription struct {
	C     <-chan Event
	ch    chan Event
	topic string
	hub   *Hub
	once  sync.Once
}

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.remove(s) })
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string { return s.topic }

// Hub is the in-process Bus. Every subscriber has its own buffered channel;
// a subscriber that falls behind loses events instead of stalling Publish.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[*Subscription]struct{}
	buffer  int
	stopped bool
	dropped atomic.Uint64
	now     func() time.Time
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
		now:    time.Now,
	}
}

func (h *Hub) Start(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = false
	return nil
}

// Stop closes every subscription. Later publishes fail with ErrStopped.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	for topic, subs := range h.subs {
		for sub := range subs {
			close(sub.ch)
		}
		delete(h.subs, topic)
	}
	return nil
}

func (h *Hub) Publish(_ context.Context, topic string, payload []byte) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	return h.Deliver(Event{
		ID:          uuid.NewString(),
		Topic:       topic,
		Payload:     append([]byte(nil), payload...),
		PublishedAt: h.now(),
	})
}

// Deliver hands an already built event to local subscribers. Transports that
// receive events from elsewhere (Redis) use it to keep the published id.
func (h *Hub) Deliver(evt Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return ErrStopped
	}
	for sub := range h.subs[evt.Topic] {
		select {
		case sub.ch <- evt:
		default:
			h.dropped.Add(1)
			log.Printf("[EVENTS] subscriber on %s is behind, dropped event %s", evt.Topic, evt.ID)
		}
	}
	return nil
}

func (h *Hub) Subscribe(topic string) (*Subscription, error) {
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return nil, ErrStopped
	}
	ch := make(chan Event, h.buffer)
	sub := &Subscription{C: ch, ch: ch, topic: topic, hub: h}
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[*Subscription]struct{})
	}
	h.subs[topic][sub] = struct{}{}
	return sub, nil
}

// Dropped counts events discarded because a subscriber buffer was full.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Subscribers returns the number of live subscriptions on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.subs[sub.topic]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	close(sub.ch)
	if len(subs) == 0 {
		delete(h.subs, sub.topic)
	}
}
