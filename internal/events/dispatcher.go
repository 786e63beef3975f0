package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/metinatakli/payment-service/internal/domain"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultBatchSize    = 100
)

// Dispatcher relays outbox events to a Publisher. Events are marked published
// only after the publisher accepted them, so delivery is at least once.
type Dispatcher struct {
	repo         domain.OutboxRepository
	publisher    Publisher
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int
}

func NewDispatcher(
	repo domain.OutboxRepository,
	publisher Publisher,
	logger *slog.Logger,
	pollInterval time.Duration,
	batchSize int) *Dispatcher {

	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	return &Dispatcher{
		repo:         repo,
		publisher:    publisher,
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    batchSize,
	}
}

func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := d.DispatchOnce(ctx)
			if err != nil {
				d.logger.Error("outbox dispatch failed", "error", err)
			}
		}
	}
}

// DispatchOnce publishes one batch and returns how many events went out. A
// failed event is left unpublished for the next round.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	events, err := d.repo.FindUnpublished(ctx, d.batchSize)
	if err != nil {
		return 0, err
	}

	published := 0

	for _, event := range events {
		err := d.publisher.Publish(ctx, event)
		if err != nil {
			d.logger.Warn("failed to publish outbox event",
				"event_id", event.ID,
				"event_type", event.Type,
				"error", err)
			continue
		}

		err = d.repo.MarkPublished(ctx, event.ID)
		if err != nil {
			d.logger.Error("failed to mark outbox event as published", "event_id", event.ID, "error", err)
			continue
		}

		published++
	}

	return published, nil
}
