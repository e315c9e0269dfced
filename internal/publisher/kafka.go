package publisher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"handsign/internal/models"
)

const kafkaBatchTimeout = 10 * time.Millisecond

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka mirrors broadcast topics into Kafka. Retained messages are keyed by
// their topic so a compacted Kafka topic keeps the last value.
type Kafka struct {
	writer messageWriter
}

func NewKafka(brokers []string) *Kafka {
	return &Kafka{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           kafkaBatchTimeout,
		AllowAutoTopicCreation: true,
	}}
}

// KafkaTopic maps a broadcast topic to a legal Kafka topic name.
func KafkaTopic(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}

func (k *Kafka) Publish(ctx context.Context, topic string, payload []byte, opts Options) error {
	const op = "publisher.Kafka.Publish"

	msg := kafka.Message{
		Topic: KafkaTopic(topic),
		Value: payload,
	}
	if opts.Retain {
		msg.Key = []byte(topic)
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%s: %s: %w: %w", op, msg.Topic, models.ErrDelivery, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
