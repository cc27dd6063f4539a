package service

import (
	"context"
	"encoding/json"
	"fmt"

	"authlog-service/internal/client"
	"authlog-service/internal/models"
)

// KafkaActivityPublisher streams persisted records to the activity topic.
// Messages are keyed by subject so one principal's events stay ordered
// within a partition.
type KafkaActivityPublisher struct {
	producer *client.KafkaProducer
	topic    string
}

func NewKafkaActivityPublisher(producer *client.KafkaProducer, topic string) *KafkaActivityPublisher {
	return &KafkaActivityPublisher{
		producer: producer,
		topic:    topic,
	}
}

var _ ActivityPublisher = (*KafkaActivityPublisher)(nil)

func (k *KafkaActivityPublisher) PublishActivity(ctx context.Context, record *models.AuthLog) error {
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode activity record: %w", err)
	}

	headers := map[string]string{
		"event_level": string(record.EventLevel),
	}
	key := []byte(record.Subject().String())

	if err := k.producer.ProduceMessage(ctx, k.topic, key, value, headers); err != nil {
		return fmt.Errorf("failed to produce activity record: %w", err)
	}
	return nil
}
