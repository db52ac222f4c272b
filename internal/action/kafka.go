package action

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer the action needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func newKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// KafkaAction publishes the match as a JSON event.
type KafkaAction struct {
	w     messageWriter
	topic string
}

func (a *KafkaAction) Kind() string { return "kafka" }

func (a *KafkaAction) Run(ctx context.Context, m Match) error {
	ev := NewEvent(m)
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("kafka: encode event: %w", err)
	}
	key := []byte(ev.ChatID + "_" + ev.SenderID)
	if err := a.w.WriteMessages(ctx, kafka.Message{Key: key, Value: value}); err != nil {
		return fmt.Errorf("kafka: write to %s: %w", a.topic, err)
	}
	return nil
}
