package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mnbf9rca/family-foqos-sub001/internal/contracts"
	"github.com/mnbf9rca/family-foqos-sub001/internal/domain"
)

type KafkaConsumer struct {
	reader *kafka.Reader
	logger *slog.Logger
}

func NewKafkaConsumer(brokers []string, groupID, topic string, logger *slog.Logger) (*KafkaConsumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka consumer requires at least one broker")
	}
	if groupID == "" {
		return nil, fmt.Errorf("kafka consumer requires group id")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka consumer requires a topic")
	}
	if logger == nil {
		logger = slog.Default()
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	return &KafkaConsumer{reader: reader, logger: logger}, nil
}

func (c *KafkaConsumer) Poll(ctx context.Context, max int) ([]domain.SessionRecord, error) {
	if max <= 0 {
		max = 1
	}
	out := make([]domain.SessionRecord, 0, max)
	for i := 0; i < max; i++ {
		readCtx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
		msg, err := c.reader.ReadMessage(readCtx)
		cancel()
		if err != nil {
			switch {
			case errors.Is(err, context.DeadlineExceeded):
				return out, nil
			case errors.Is(err, context.Canceled):
				return out, ctx.Err()
			default:
				return out, err
			}
		}
		var event contracts.RecordChangedEvent
		if unmarshalErr := json.Unmarshal(msg.Value, &event); unmarshalErr != nil {
			// A malformed notification is skipped; the pull sweep converges
			// the record anyway.
			c.logger.Warn("skip malformed record event", "topic", msg.Topic, "error", unmarshalErr)
			continue
		}
		if event.Record.ProfileID == "" {
			continue
		}
		out = append(out, event.Record)
	}
	return out, nil
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
