package repository

import (
	"context"

	"TradePilot/internal/domain/models"
	pkgkafka "TradePilot/pkg/kafka"
)

// KafkaDecisionPublisher streams emitted decisions for downstream
// consumers (dashboards, alerting). Keyed by asset so one asset's
// decisions stay ordered within a partition.
type KafkaDecisionPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaDecisionPublisher(producer *pkgkafka.Producer, topic string) *KafkaDecisionPublisher {
	return &KafkaDecisionPublisher{producer: producer, topic: topic}
}

func (p *KafkaDecisionPublisher) Publish(ctx context.Context, d models.Decision) error {
	return p.producer.Publish(ctx, p.topic, []byte(d.Asset), map[string]interface{}{
		"asset":      d.Asset,
		"action":     string(d.Action),
		"confidence": d.Confidence,
		"pattern":    string(d.Pattern),
		"rationale":  d.Reasoning(),
		"risk":       string(d.RiskTier),
	})
}

func (p *KafkaDecisionPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
