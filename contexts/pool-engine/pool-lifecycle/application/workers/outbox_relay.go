package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/ports"
)

// OutboxRelay drains pending outbox rows and publishes them to the event
// sink. Rows are processed in insertion order; a failed publish marks the row
// failed and moves on, so one poison message never blocks the stream.
type OutboxRelay struct {
	Outbox    ports.OutboxRepository
	Publisher ports.EventPublisher
	Clock     ports.Clock
	BatchSize int
	Interval  time.Duration
	Logger    *slog.Logger
}

// Run polls until the context is canceled.
func (w OutboxRelay) Run(ctx context.Context) error {
	interval := w.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.logger().Error("outbox relay pass failed",
					"event", "outbox_relay_pass_failed",
					"module", "pool-engine/pool-lifecycle",
					"layer", "worker",
					"error", err.Error(),
				)
			}
		}
	}
}

// RunOnce publishes one batch of pending messages.
func (w OutboxRelay) RunOnce(ctx context.Context) error {
	batch := w.BatchSize
	if batch <= 0 {
		batch = 100
	}
	pending, err := w.Outbox.ListPending(ctx, batch)
	if err != nil {
		return err
	}
	for _, message := range pending {
		var envelope ports.EventEnvelope
		if err := json.Unmarshal(message.Payload, &envelope); err != nil {
			w.logger().Error("outbox message undecodable",
				"event", "outbox_message_undecodable",
				"module", "pool-engine/pool-lifecycle",
				"layer", "worker",
				"message_id", message.ID,
				"error", err.Error(),
			)
			if err := w.Outbox.MarkFailed(ctx, message.ID); err != nil {
				return err
			}
			continue
		}
		if err := w.Publisher.Publish(ctx, envelope); err != nil {
			w.logger().Error("outbox publish failed",
				"event", "outbox_publish_failed",
				"module", "pool-engine/pool-lifecycle",
				"layer", "worker",
				"message_id", message.ID,
				"event_type", message.EventType,
				"error", err.Error(),
			)
			if err := w.Outbox.MarkFailed(ctx, message.ID); err != nil {
				return err
			}
			continue
		}
		if err := w.Outbox.MarkPublished(ctx, message.ID, w.now()); err != nil {
			return err
		}
	}
	return nil
}

func (w OutboxRelay) now() time.Time {
	if w.Clock != nil {
		return w.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func (w OutboxRelay) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}
