package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaDispatcher publishes notifications to a topic keyed by user id.
type KafkaDispatcher struct {
	writer messageWriter
	topic  string
}

type notificationEvent struct {
	UserID     string            `json:"userId"`
	Template   string            `json:"template"`
	Variables  map[string]string `json:"variables"`
	OccurredAt time.Time         `json:"occurredAt"`
}

func NewKafkaDispatcher(brokers []string, topic string) (*KafkaDispatcher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka dispatcher requires at least one broker")
	}
	return &KafkaDispatcher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		topic: topic,
	}, nil
}

func (d *KafkaDispatcher) Send(ctx context.Context, userID, template string, vars map[string]string) error {
	now := time.Now().UTC()
	payload, err := json.Marshal(notificationEvent{
		UserID:     userID,
		Template:   template,
		Variables:  vars,
		OccurredAt: now,
	})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return d.writer.WriteMessages(ctx, kafka.Message{
		Topic: d.topic,
		Key:   []byte(userID),
		Value: payload,
		Time:  now,
	})
}

func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}
