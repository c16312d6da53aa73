package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DikshantJangra/hoperxpharma-sub002/entities"
	"github.com/DikshantJangra/hoperxpharma-sub002/interfaces"
)

// Compile-time check to ensure KafkaPublisher implements AuditPublisher
var _ interfaces.AuditPublisher = (*KafkaPublisher)(nil)

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher emits audit entries to a Kafka topic keyed by drug id, so every
// change of one drug lands on the same partition in order.
type KafkaPublisher struct {
	writer kafkaMessageWriter
}

// NewKafkaPublisher creates a publisher. brokers is a comma-separated list of host:port.
func NewKafkaPublisher(brokers, topic string) *KafkaPublisher {
	var addrs []string
	for _, a := range strings.Split(brokers, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(addrs...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 5 * time.Second,
	}}
}

// newKafkaPublisherWith injects a fake writer in tests.
func newKafkaPublisherWith(w kafkaMessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (k *KafkaPublisher) Publish(ctx context.Context, entry entities.AuditLogEntry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(entry.DrugID),
		Value: b,
		Time:  entry.Timestamp,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(entry.Action)},
		},
	})
}

func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}
