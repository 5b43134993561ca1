package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

// KafkaSink mirrors events into Kafka so they outlive the realtime channel.
// Messages are keyed by order id when the payload carries one, keeping each
// order's events on a single partition.
type KafkaSink struct {
	producer    sarama.SyncProducer
	topicPrefix string
}

func NewKafkaSink(producer sarama.SyncProducer, topicPrefix string) *KafkaSink {
	return &KafkaSink{producer: producer, topicPrefix: topicPrefix}
}

// NewKafkaProducer dials brokers, a comma separated list.
func NewKafkaProducer(brokers string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 100 * time.Millisecond
	cfg.Producer.Return.Successes = true
	cfg.Net.DialTimeout = 10 * time.Second

	list := strings.Split(brokers, ",")
	producer, err := sarama.NewSyncProducer(list, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	log.Printf("[EVENTS] kafka producer connected to %v", list)
	return producer, nil
}

func (k *KafkaSink) Send(_ context.Context, topic string, payload []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: k.topicPrefix + topic,
		Value: sarama.ByteEncoder(payload),
	}
	if key := orderKey(payload); key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	if _, _, err := k.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka send %s: %w", msg.Topic, err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	return k.producer.Close()
}

func orderKey(payload []byte) string {
	var probe struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return ""
	}
	return probe.OrderID
}
