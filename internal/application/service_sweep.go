package application

import (
	"context"
	"fmt"
	"time"

	"github.com/viralforge/escrow-milestone-ledger/internal/domain"
)

const sweepBatchSize = 100

var sweeperActor = Actor{SubjectID: "system:settlement-sweeper", Role: domain.RoleAdmin}

// SweepStalledSettlements queues for operators every milestone that has sat
// in releasing longer than a settlement may take and is not queued yet. A
// process that died between the releasing write and the commit leaves such
// milestones behind.
func (s *Service) SweepStalledSettlements(ctx context.Context) (int, error) {
	if s.queue == nil {
		return 0, nil
	}
	cutoff := s.nowFn().Add(-s.cfg.StaleSettlementAfter)
	stalled, err := s.store.ListStalledSettlements(ctx, cutoff, sweepBatchSize)
	if err != nil {
		return 0, err
	}
	if len(stalled) == 0 {
		return 0, nil
	}
	tasks, err := s.queue.List(ctx)
	if err != nil {
		return 0, err
	}
	queued := make(map[string]bool, len(tasks))
	for _, task := range tasks {
		queued[task.AccountID+"/"+task.MilestoneID] = true
	}

	swept := 0
	for _, m := range stalled {
		if queued[m.AccountID+"/"+m.MilestoneID] {
			continue
		}
		account, err := s.store.GetAccount(ctx, m.AccountID)
		if err != nil {
			return swept, err
		}
		if m.Pending == nil {
			continue
		}
		legs, err := domain.SettlementLegs(account, m)
		if err != nil {
			return swept, err
		}
		cause := fmt.Errorf("settlement stalled in releasing since %s", m.Pending.StartedAt.Format(time.RFC3339))
		s.markIndeterminate(ctx, sweeperActor, account, m, legs, nil, cause)
		s.metrics.ObserveSettlement(string(m.Pending.Target), "stalled")
		swept++
	}
	return swept, nil
}
