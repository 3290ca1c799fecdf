package events

import (
	"context"
	"log/slog"

	"github.com/mnbf9rca/family-foqos-sub001/internal/domain"
)

// LoggingPublisher stands in when no broker is configured.
type LoggingPublisher struct {
	logger *slog.Logger
}

func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingPublisher{logger: logger}
}

func (p *LoggingPublisher) PublishRecordChanged(_ context.Context, rec domain.SessionRecord) error {
	p.logger.Info("record changed",
		"profile_id", rec.ProfileID,
		"active", rec.Active,
		"sequence", rec.SequenceNumber,
		"modified_by", rec.LastModifiedByDevice)
	return nil
}

// NoopConsumer stands in when no broker is configured; convergence then
// relies entirely on the pull sweep.
type NoopConsumer struct{}

func NewNoopConsumer() *NoopConsumer { return &NoopConsumer{} }

func (*NoopConsumer) Poll(context.Context, int) ([]domain.SessionRecord, error) { return nil, nil }

func (*NoopConsumer) Close() error { return nil }
