package events

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/viralforge/escrow-milestone-ledger/internal/domain"
)

// KafkaPublisher writes outbox events to Kafka keyed by account so events of
// one account stay ordered within a partition.
type KafkaPublisher struct {
	writer       *kafka.Writer
	defaultTopic string
	opsTopic     string
	topicByEvent map[string]string
}

type KafkaTopics struct {
	Default string
	Ops     string
	ByEvent map[string]string
}

func NewKafkaPublisher(brokers []string, topics KafkaTopics) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		defaultTopic: topics.Default,
		opsTopic:     topics.Ops,
		topicByEvent: topics.ByEvent,
	}, nil
}

func (p *KafkaPublisher) topicFor(eventType string) string {
	if mapped, ok := p.topicByEvent[eventType]; ok && mapped != "" {
		return mapped
	}
	if p.opsTopic != "" && domain.CanonicalEventClass(eventType) == domain.CanonicalEventClassOps {
		return p.opsTopic
	}
	if p.defaultTopic != "" {
		return p.defaultTopic
	}
	return eventType
}

func (p *KafkaPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topicFor(eventType),
		Key:   []byte(partitionKey),
		Value: payload,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
