package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/viralforge/escrow-milestone-ledger/internal/domain"
	"github.com/viralforge/escrow-milestone-ledger/internal/ports"
)

// ReconcileSettlement lets an arbiter finish a settlement stuck in releasing.
// retry re-runs the transfers under the same idempotency keys, the confirm
// actions record what the operator verified at the processor.
func (s *Service) ReconcileSettlement(ctx context.Context, actor Actor, input ReconcileInput) (domain.EscrowAccount, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.EscrowAccount{}, domain.ErrUnauthorized
	}
	if !actor.principal().IsArbiter() {
		return domain.EscrowAccount{}, domain.ErrForbidden
	}
	account, err := s.store.GetAccount(ctx, strings.TrimSpace(input.AccountID))
	if err != nil {
		return domain.EscrowAccount{}, err
	}
	milestone, err := account.Milestone(strings.TrimSpace(input.MilestoneID))
	if err != nil {
		return domain.EscrowAccount{}, err
	}
	if milestone.Status != domain.MilestoneStatusReleasing {
		return domain.EscrowAccount{}, fmt.Errorf("%w: milestone %s is not awaiting settlement", domain.ErrInvalidTransition, milestone.MilestoneID)
	}

	s.logger.InfoContext(ctx, "settlement reconciliation requested",
		"module", "application.reconcile",
		"layer", "application",
		"operation", "reconcile_settlement",
		"outcome", "started",
		"account_id", account.AccountID,
		"milestone_id", milestone.MilestoneID,
		"action", string(input.Action),
		"actor_id", actor.SubjectID,
	)

	switch input.Action {
	case ReconcileRetry:
		return s.settle(ctx, actor, account.AccountID, milestone.MilestoneID)
	case ReconcileConfirmFailed:
		if err := s.abortSettlement(ctx, actor, account.AccountID, milestone.MilestoneID); err != nil {
			return domain.EscrowAccount{}, err
		}
		return s.store.GetAccount(ctx, account.AccountID)
	case ReconcileConfirmSucceeded:
		legs, err := domain.SettlementLegs(account, *milestone)
		if err != nil {
			return domain.EscrowAccount{}, err
		}
		now := s.nowFn()
		records := make([]domain.TransferRecord, 0, len(legs))
		for _, leg := range legs {
			ref := strings.TrimSpace(input.ProcessorRefs[leg.IdempotencyKey])
			if ref == "" {
				return domain.EscrowAccount{}, fmt.Errorf("%w: processor reference required for transfer %s", domain.ErrInvalidInput, leg.IdempotencyKey)
			}
			records = append(records, domain.TransferRecord{
				TransferID:     uuid.NewString(),
				AccountID:      leg.AccountID,
				MilestoneID:    leg.MilestoneID,
				Direction:      leg.Direction,
				Kind:           leg.Kind,
				Amount:         leg.Amount,
				Currency:       leg.Currency,
				IdempotencyKey: leg.IdempotencyKey,
				ProcessorRef:   ref,
				Fees:           s.cfg.Fees.Apply(leg.Amount),
				CompletedAt:    now,
			})
		}
		return s.commitSettlement(ctx, actor, account.AccountID, milestone.MilestoneID, records)
	default:
		return domain.EscrowAccount{}, fmt.Errorf("%w: unknown reconcile action %q", domain.ErrInvalidInput, input.Action)
	}
}

func (s *Service) ListReconciliations(ctx context.Context, actor Actor) ([]ports.ReconciliationTask, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return nil, domain.ErrUnauthorized
	}
	if !actor.principal().IsArbiter() {
		return nil, domain.ErrForbidden
	}
	if s.queue == nil {
		return []ports.ReconciliationTask{}, nil
	}
	return s.queue.List(ctx)
}
