package repository

import (
	"context"

	"OptEdge/internal/domain/models"
	pkgkafka "OptEdge/pkg/kafka"
)

// KafkaPublisher emits one event per resolved prediction, keyed by symbol so
// consumers see per-symbol ordering.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, res *models.PredictionResult) error {
	return p.producer.Publish(ctx, p.topic, []byte(res.Symbol), res)
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
