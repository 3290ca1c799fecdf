package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/mnbf9rca/family-foqos-sub001/internal/contracts"
	"github.com/mnbf9rca/family-foqos-sub001/internal/domain"
)

type KafkaPublisher struct {
	writer *kafka.Writer
	topic  string
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka publisher requires a topic")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		topic: topic,
	}, nil
}

func (p *KafkaPublisher) PublishRecordChanged(ctx context.Context, rec domain.SessionRecord) error {
	event := contracts.RecordChangedEvent{
		EventID:       uuid.NewString(),
		EventType:     contracts.EventTypeRecordChanged,
		OccurredAt:    time.Now().UTC(),
		SourceDevice:  rec.LastModifiedByDevice,
		SchemaVersion: "v1",
		Record:        rec,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	// Keyed by profile so one profile's mutations stay on one partition.
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(rec.ProfileID),
		Value: payload,
		Time:  time.Now().UTC(),
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
