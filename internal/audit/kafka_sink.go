package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"phone-auth-service/internal/models"
)

// MessageProducer is satisfied by *client.KafkaProducer.
type MessageProducer interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// KafkaSink keys messages by phone number so one number's events stay ordered
// within a partition.
type KafkaSink struct {
	producer MessageProducer
	topic    string
}

func NewKafkaSink(producer MessageProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (s *KafkaSink) Publish(ctx context.Context, event models.AuthEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode auth event: %w", err)
	}

	headers := map[string]string{
		"event_type": string(event.Type),
		"event_id":   event.ID,
	}
	return s.producer.ProduceMessage(ctx, s.topic, []byte(event.PhoneNumber), value, headers)
}
