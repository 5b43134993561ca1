// Package events fans order lifecycle events out to live dashboards.
//
// Delivery is fire-and-forget: each Publish makes at most one delivery
// attempt per subscriber and nothing is queued durably. Ordering holds per
// subscriber only. Subscribers resynchronise with a full refetch whenever
// they (re)connect, so dropped or duplicated events are tolerated.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrStopped    = errors.New("events: bus stopped")
	ErrQueueFull  = errors.New("events: dispatch queue full")
	ErrEmptyTopic = errors.New("events: topic is required")
)

// Event is one published message as seen by subscribers.
type Event struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic"`
	Payload     json.RawMessage `json:"payload"`
	PublishedAt time.Time       `json:"publishedAt"`
}

// Bus is the publish/subscribe abstraction used by the HTTP layer and the
// lifecycle controller. Implementations have an explicit lifecycle.
type Bus interface {
	Start(ctx context.Context) error
	Stop() error
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(topic string) (*Subscription, error)
}
