package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/park-waits-etl/internal/config"
	"github.com/couchcryptid/park-waits-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes official hours change events to a Kafka topic.
// It implements pipeline.ChangePublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured changes topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaChangesTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishChanges serializes and publishes change events in a single
// WriteMessages call. Events for one park day share a key and so a partition.
func (w *Writer) PublishChanges(ctx context.Context, events []domain.ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msg, err := serializeToMessage(events[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish hours changes: %w", err)
	}
	w.logger.Debug("published hours changes", "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a ChangeEvent into a Kafka message.
func serializeToMessage(event domain.ChangeEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize change event: %w", err)
	}
	key := domain.HoursKey{ParkDate: event.ParkDate, ParkCode: event.ParkCode}
	return kafkago.Message{
		Key:   []byte(key.String()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "park_code", Value: []byte(event.ParkCode)},
			{Key: "detected_at", Value: []byte(event.DetectedAt.Format(time.RFC3339))},
		},
	}, nil
}
