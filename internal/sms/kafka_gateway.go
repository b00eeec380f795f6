package sms

import (
	"context"
	"encoding/json"
	"time"
)

// MessageProducer is satisfied by *client.KafkaProducer.
type MessageProducer interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

type outboxMessage struct {
	PhoneNumber string    `json:"phone_number"`
	Message     string    `json:"message"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// KafkaGateway writes messages to an outbox topic drained by a separate
// sender. A successful write counts as delivery.
type KafkaGateway struct {
	producer MessageProducer
	topic    string
}

func NewKafkaGateway(producer MessageProducer, topic string) *KafkaGateway {
	return &KafkaGateway{producer: producer, topic: topic}
}

func (g *KafkaGateway) Send(ctx context.Context, phoneNumber, message string) error {
	value, err := json.Marshal(outboxMessage{
		PhoneNumber: phoneNumber,
		Message:     message,
		EnqueuedAt:  time.Now().UTC(),
	})
	if err != nil {
		return deliveryError("encode outbox message: %v", err)
	}

	headers := map[string]string{"content-type": "application/json"}
	if err := g.producer.ProduceMessage(ctx, g.topic, []byte(phoneNumber), value, headers); err != nil {
		return deliveryError("enqueue: %v", err)
	}
	return nil
}
