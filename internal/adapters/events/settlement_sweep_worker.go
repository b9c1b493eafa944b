package events

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// StalledSettlementSweeper is the application call the sweep worker drives.
type StalledSettlementSweeper interface {
	SweepStalledSettlements(ctx context.Context) (int, error)
}

// SettlementSweepWorker periodically surfaces settlements stuck in releasing
// as ops events and operator tasks.
type SettlementSweepWorker struct {
	logger   *slog.Logger
	sweeper  StalledSettlementSweeper
	interval time.Duration
}

func NewSettlementSweepWorker(logger *slog.Logger, sweeper StalledSettlementSweeper, interval time.Duration) *SettlementSweepWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SettlementSweepWorker{logger: logger, sweeper: sweeper, interval: interval}
}

func (w *SettlementSweepWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		w.sweepOnce(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *SettlementSweepWorker) sweepOnce(ctx context.Context) {
	swept, err := w.sweeper.SweepStalledSettlements(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			w.logger.ErrorContext(ctx, "settlement sweep failed",
				"module", "events.settlement_sweep_worker",
				"layer", "adapter",
				"operation", "sweep",
				"outcome", "failure",
				"error", err,
			)
		}
		return
	}
	if swept > 0 {
		w.logger.WarnContext(ctx, "stalled settlements handed to operators",
			"module", "events.settlement_sweep_worker",
			"layer", "adapter",
			"operation", "sweep",
			"outcome", "success",
			"swept", swept,
		)
	}
}
