package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/nkllon/beast-mailbox/mailbox"
)

// KafkaMirrorConfig configures the audit-trail Kafka writer.
type KafkaMirrorConfig struct {
	Brokers      []string
	Topic        string
	RequiredAcks kafka.RequiredAcks
	BatchTimeout time.Duration
}

// DefaultKafkaMirrorConfig returns sane defaults for a local Kafka broker.
func DefaultKafkaMirrorConfig(topic string) KafkaMirrorConfig {
	return KafkaMirrorConfig{
		Brokers:      []string{"localhost:9092"},
		Topic:        topic,
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// KafkaMirror writes every delivered MailboxMessage to a Kafka topic, keyed
// by recipient, as a durable audit trail independent of the mailbox's own
// Redis stream retention: MaxStreamLength trims the inbox stream, Kafka
// does not have to.
type KafkaMirror struct {
	cfg    KafkaMirrorConfig
	writer *kafka.Writer
	logger *slog.Logger
}

// NewKafkaMirror constructs a mirror writing to cfg.Topic.
func NewKafkaMirror(cfg KafkaMirrorConfig, logger *slog.Logger) *KafkaMirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaMirror{
		cfg: cfg,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			RequiredAcks: cfg.RequiredAcks,
			BatchTimeout: cfg.BatchTimeout,
			Balancer:     &kafka.Hash{},
		},
		logger: logger.With("component", "kafka-mirror", "topic", cfg.Topic),
	}
}

// Handler returns a mailbox.Handler that mirrors every delivered message to
// Kafka. Register it alongside an agent's real handlers. A mirror failure is
// logged, never returned, so it can never block or fail the delivery it is
// mirroring.
func (k *KafkaMirror) Handler() mailbox.Handler {
	return func(ctx context.Context, msg mailbox.MailboxMessage) error {
		data, err := json.Marshal(msg)
		if err != nil {
			k.logger.Warn("failed to marshal message for kafka mirror", "error", err)
			return nil
		}

		err = k.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(msg.Recipient),
			Value: data,
			Time:  time.Now(),
		})
		if err != nil {
			k.logger.Warn("failed to mirror message to kafka", "error", err)
		}
		return nil
	}
}

// Close flushes and closes the underlying Kafka writer.
func (k *KafkaMirror) Close() error {
	return k.writer.Close()
}
