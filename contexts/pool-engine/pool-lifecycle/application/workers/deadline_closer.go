package workers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/application"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/entities"
	domainerrors "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/errors"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/ports"
)

// DeadlineCloser cranks voting close for active pools whose deadline passed,
// so a pool ends on time even when nobody calls the close endpoint.
type DeadlineCloser struct {
	Pools      ports.PoolRepository
	Controller *application.Service
	Clock      ports.Clock
	Interval   time.Duration
	Logger     *slog.Logger
}

// Run polls until the context is canceled.
func (w DeadlineCloser) Run(ctx context.Context) error {
	interval := w.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.logger().Error("deadline close pass failed",
					"event", "deadline_close_pass_failed",
					"module", "pool-engine/pool-lifecycle",
					"layer", "worker",
					"error", err.Error(),
				)
			}
		}
	}
}

// RunOnce closes every active pool whose deadline has passed.
func (w DeadlineCloser) RunOnce(ctx context.Context) error {
	pools, err := w.Pools.ListPoolsByStatus(ctx, entities.PoolStatusActive)
	if err != nil {
		return err
	}
	now := w.now()
	for _, pool := range pools {
		if now.Before(pool.VotingDeadline) {
			continue
		}
		result, err := w.Controller.CloseVoting(ctx, pool.PoolID)
		if err != nil {
			// Someone else closed it between the list and the call.
			if errors.Is(err, domainerrors.ErrInvalidState) {
				continue
			}
			w.logger().Error("deadline close failed",
				"event", "deadline_close_failed",
				"module", "pool-engine/pool-lifecycle",
				"layer", "worker",
				"pool_id", pool.PoolID,
				"error", err.Error(),
			)
			continue
		}
		w.logger().Info("pool closed by deadline",
			"event", "deadline_close_succeeded",
			"module", "pool-engine/pool-lifecycle",
			"layer", "worker",
			"pool_id", pool.PoolID,
			"status", string(result.Pool.Status),
		)
	}
	return nil
}

func (w DeadlineCloser) now() time.Time {
	if w.Clock != nil {
		return w.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func (w DeadlineCloser) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}
