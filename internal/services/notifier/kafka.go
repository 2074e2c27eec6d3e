package notifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ordinex/signalrelay/internal/domain"
)

// signalEvent is the wire envelope for signal notifications.
type signalEvent struct {
	Kind   string                 `json:"kind"`
	Signal domain.QualifiedSignal `json:"signal"`
	SentAt time.Time              `json:"sent_at"`
}

// KafkaSink publishes notifications to Kafka topics, keyed by pair so
// per-symbol ordering is preserved across partitions.
type KafkaSink struct {
	writer         *kafka.Writer
	signalsTopic   string
	summariesTopic string
	logger         *zap.Logger
}

func NewKafkaSink(brokers []string, signalsTopic, summariesTopic string, logger *zap.Logger) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  1,
		WriteTimeout: 10 * time.Second,
		BatchTimeout: 50 * time.Millisecond,
	}

	return &KafkaSink{
		writer:         writer,
		signalsTopic:   signalsTopic,
		summariesTopic: summariesTopic,
		logger:         logger,
	}, nil
}

func (s *KafkaSink) PublishSignal(ctx context.Context, sig domain.QualifiedSignal, alertOnly bool) error {
	kind := "execution"
	if alertOnly {
		kind = "alert"
	}
	event := signalEvent{Kind: kind, Signal: sig, SentAt: time.Now().UTC()}

	return s.publish(ctx, s.signalsTopic, sig.Pair.String(), event)
}

func (s *KafkaSink) PublishSummary(ctx context.Context, summary domain.ExecutionSummary) error {
	return s.publish(ctx, s.summariesTopic, summary.Pair.String(), summary)
}

func (s *KafkaSink) publish(ctx context.Context, topic, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "marshal kafka payload")
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now(),
	})
	if err != nil {
		return errors.Wrapf(err, "write to topic %s", topic)
	}

	s.logger.Debug("kafka message published",
		zap.String("topic", topic),
		zap.String("key", key),
		zap.Int("bytes", len(payload)))

	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
