package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisBus carries events between server instances over Redis Pub/Sub.
// Every instance pattern-subscribes to its channel prefix and feeds what it
// receives into a local Hub, which serves the instance's own subscribers.
type RedisBus struct {
	client *redis.Client
	prefix string
	hub    *Hub

	mu     sync.Mutex
	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewRedisBus(client *redis.Client, prefix string, buffer int) *RedisBus {
	return &RedisBus{
		client: client,
		prefix: prefix,
		hub:    NewHub(buffer),
	}
}

// Start subscribes to prefix* and begins relaying. It returns once Redis
// has confirmed the subscription.
func (b *RedisBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub != nil {
		return nil
	}
	if err := b.hub.Start(ctx); err != nil {
		return err
	}

	pubsub := b.client.PSubscribe(ctx, b.prefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe to %s*: %w", b.prefix, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	b.pubsub = pubsub
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.relay(runCtx, pubsub.Channel(), b.done)
	log.Printf("[EVENTS] redis bus listening on %s*", b.prefix)
	return nil
}

func (b *RedisBus) relay(ctx context.Context, ch <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				log.Printf("[EVENTS] discarding malformed message on %s: %v", msg.Channel, err)
				continue
			}
			evt.Topic = strings.TrimPrefix(msg.Channel, b.prefix)
			if err := b.hub.Deliver(evt); err != nil {
				return
			}
		}
	}
}

func (b *RedisBus) Stop() error {
	b.mu.Lock()
	pubsub, cancel, done := b.pubsub, b.cancel, b.done
	b.pubsub, b.cancel, b.done = nil, nil, nil
	b.mu.Unlock()

	var err error
	if pubsub != nil {
		cancel()
		err = pubsub.Close()
		<-done
	}
	if stopErr := b.hub.Stop(); err == nil {
		err = stopErr
	}
	return err
}

// Publish sends the event to Redis. Local subscribers receive it through the
// pattern subscription like every other instance.
func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	data, err := json.Marshal(Event{
		ID:          uuid.NewString(),
		Topic:       topic,
		Payload:     payload,
		PublishedAt: time.Now(),
	})
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.prefix+topic, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(topic string) (*Subscription, error) {
	return b.hub.Subscribe(topic)
}
