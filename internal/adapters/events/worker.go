package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/mnbf9rca/family-foqos-sub001/internal/application"
	"github.com/mnbf9rca/family-foqos-sub001/internal/ports"
)

// ConsumerWorker drains the change-notification channel into the coordinator
// and, on a slower cadence, sweeps the full record list to cover dropped or
// delayed notifications. Either path alone is sufficient for convergence;
// together they keep reconciliation prompt and complete.
type ConsumerWorker struct {
	consumer     ports.EventConsumer
	store        ports.RecordStore
	coordinator  *application.Coordinator
	logger       *slog.Logger
	pollInterval time.Duration
	sweepEvery   time.Duration
	batchSize    int
}

func NewConsumerWorker(consumer ports.EventConsumer, store ports.RecordStore, coordinator *application.Coordinator, logger *slog.Logger, pollInterval, sweepEvery time.Duration) *ConsumerWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if sweepEvery <= 0 {
		sweepEvery = time.Minute
	}
	return &ConsumerWorker{
		consumer:     consumer,
		store:        store,
		coordinator:  coordinator,
		logger:       logger,
		pollInterval: pollInterval,
		sweepEvery:   sweepEvery,
		batchSize:    50,
	}
}

// Run blocks until the context is cancelled.
func (w *ConsumerWorker) Run(ctx context.Context) {
	poll := time.NewTicker(w.pollInterval)
	defer poll.Stop()
	sweep := time.NewTicker(w.sweepEvery)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			records, err := w.consumer.Poll(ctx, w.batchSize)
			if err != nil {
				w.logger.Warn("poll record events", "error", err)
				continue
			}
			w.coordinator.ApplyAll(records)
		case <-sweep.C:
			records, err := w.store.List(ctx)
			if err != nil {
				w.logger.Warn("sweep record store", "error", err)
				continue
			}
			w.coordinator.ApplyAll(records)
		}
	}
}
