package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"certify/internal/platform/kafka/producer"
)

// Publisher is the subset of the Kafka producer used for in-app notifications.
type Publisher interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// InApp publishes events to the topic the web app's notification feed consumes.
// Records are keyed by user so one user's notifications stay ordered.
type InApp struct {
	publisher Publisher
	topic     string
}

func NewInApp(publisher Publisher, topic string) *InApp {
	return &InApp{publisher: publisher, topic: topic}
}

func (n *InApp) Notify(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return n.publisher.Produce(ctx, &producer.Message{
		Topic: n.topic,
		Key:   []byte(event.UserID),
		Value: value,
		Headers: map[string]string{
			"event_type":     event.Type,
			"certificate_id": event.CertificateID,
		},
	})
}
