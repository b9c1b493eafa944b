package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/viralforge/escrow-milestone-ledger/internal/domain"
	"github.com/viralforge/escrow-milestone-ledger/internal/ports"
)

// settle moves the money for a milestone already persisted in the releasing
// sub-state. Transfers run outside the account's exclusive section; the
// releasing status keeps every other mutation of the milestone out meanwhile.
// Ledger balances change only after every leg is confirmed.
//
// The caller's cancellation is ignored from here on: once releasing is
// durable the settlement either finishes or lands in the operator queue.
func (s *Service) settle(ctx context.Context, actor Actor, accountID, milestoneID string) (domain.EscrowAccount, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SettlementTimeout)
	defer cancel()

	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return domain.EscrowAccount{}, err
	}
	milestone, err := account.Milestone(milestoneID)
	if err != nil {
		return domain.EscrowAccount{}, err
	}
	if milestone.Status != domain.MilestoneStatusReleasing {
		return account, nil
	}
	target := string(milestone.Pending.Target)
	legs, err := domain.SettlementLegs(account, *milestone)
	if err != nil {
		return domain.EscrowAccount{}, err
	}

	records := make([]domain.TransferRecord, 0, len(legs))
	var declined, unknown []error
	for _, leg := range legs {
		rec, execErr := s.executor.Execute(ctx, leg)
		switch {
		case execErr == nil:
			records = append(records, rec)
		case errors.Is(execErr, domain.ErrTransferFailed):
			declined = append(declined, execErr)
		default:
			unknown = append(unknown, execErr)
		}
	}

	switch {
	case len(declined) == 0 && len(unknown) == 0:
		out, commitErr := s.commitSettlement(ctx, actor, accountID, milestoneID, records)
		if commitErr == nil {
			s.metrics.ObserveSettlement(target, "committed")
			return out, nil
		}
		// The processor moved the money but the ledger does not show it.
		s.markIndeterminate(ctx, actor, account, *milestone, legs, records, fmt.Errorf("commit confirmed transfers: %w", commitErr))
		s.metrics.ObserveSettlement(target, "commit_failed")
		if errors.Is(commitErr, domain.ErrInvariantViolation) {
			return domain.EscrowAccount{}, commitErr
		}
		return domain.EscrowAccount{}, fmt.Errorf("%w: milestone %s: confirmed transfers not committed: %v", domain.ErrTransferIndeterminate, milestoneID, commitErr)
	case len(unknown) == 0 && len(records) == 0:
		cause := errors.Join(declined...)
		if abortErr := s.abortSettlement(ctx, actor, accountID, milestoneID); abortErr != nil {
			s.markIndeterminate(ctx, actor, account, *milestone, legs, nil, fmt.Errorf("restore after declined transfers: %w", abortErr))
			return domain.EscrowAccount{}, errors.Join(cause, abortErr)
		}
		s.metrics.ObserveSettlement(target, "failed")
		return domain.EscrowAccount{}, fmt.Errorf("settle milestone %s: %w", milestoneID, cause)
	default:
		// Some legs may have moved money. Only an operator can decide.
		cause := errors.Join(append(unknown, declined...)...)
		s.markIndeterminate(ctx, actor, account, *milestone, legs, records, cause)
		s.metrics.ObserveSettlement(target, "indeterminate")
		return domain.EscrowAccount{}, fmt.Errorf("%w: milestone %s: %v", domain.ErrTransferIndeterminate, milestoneID, cause)
	}
}

// commitSettlement applies confirmed transfers to the ledger in one transaction.
func (s *Service) commitSettlement(ctx context.Context, actor Actor, accountID, milestoneID string, records []domain.TransferRecord) (domain.EscrowAccount, error) {
	var out domain.EscrowAccount
	var violation error
	err := s.withAccount(ctx, accountID, func(tx ports.LedgerTx, account *domain.EscrowAccount) error {
		milestone, err := account.Milestone(milestoneID)
		if err != nil {
			return err
		}
		if milestone.Status != domain.MilestoneStatusReleasing {
			if milestone.Status.IsTerminal() {
				out = *account
				return nil
			}
			return fmt.Errorf("%w: milestone %s is no longer settling", domain.ErrConflict, milestoneID)
		}
		if err := account.EnsureMutable(); err != nil {
			return err
		}
		now := s.nowFn()
		plan, err := milestone.CompleteSettlement(now)
		if err != nil {
			return err
		}
		for _, rec := range records {
			inserted, err := tx.AppendTransfer(ctx, rec)
			if err != nil {
				return err
			}
			if !inserted {
				continue
			}
			switch rec.Direction {
			case domain.TransferToPayee:
				err = account.Release(rec.Amount)
			case domain.TransferToPayer:
				err = account.Refund(rec.Amount)
			default:
				err = fmt.Errorf("%w: unknown transfer direction %q", domain.ErrInvariantViolation, rec.Direction)
			}
			if err != nil {
				violation = err
				return err
			}
		}
		if err := account.CheckInvariant(); err != nil {
			violation = err
			return err
		}

		if plan.DisputeID != "" {
			dispute, err := tx.GetDispute(ctx, plan.DisputeID)
			if err != nil {
				return err
			}
			dispute.CompleteResolution(now)
			if err := tx.SaveDispute(ctx, dispute); err != nil {
				return err
			}
			if err := s.enqueueDisputeResolved(ctx, tx, actor, dispute, now); err != nil {
				return err
			}
		}

		wasClosed := account.ClosedAt != nil
		account.RefreshStatus(now)
		if err := tx.SaveAccount(ctx, account); err != nil {
			return err
		}
		if err := s.enqueueMilestoneSettled(ctx, tx, actor, *account, *milestone, plan, now); err != nil {
			return err
		}
		if !wasClosed && account.ClosedAt != nil {
			if err := s.enqueueAccountClosed(ctx, tx, actor, *account, now); err != nil {
				return err
			}
		}
		out = *account
		return nil
	})
	if violation != nil {
		s.freezeAccount(ctx, actor, accountID, violation)
		return domain.EscrowAccount{}, violation
	}
	if err != nil {
		return domain.EscrowAccount{}, err
	}
	s.dequeueReconciliation(ctx, accountID, milestoneID)
	s.logger.InfoContext(ctx, "milestone settled",
		"module", "application.settlement",
		"layer", "application",
		"operation", "commit_settlement",
		"outcome", "success",
		"account_id", accountID,
		"milestone_id", milestoneID,
		"transfers", len(records),
	)
	return out, nil
}

// abortSettlement restores a milestone whose transfers were all declined.
func (s *Service) abortSettlement(ctx context.Context, actor Actor, accountID, milestoneID string) error {
	err := s.withAccount(ctx, accountID, func(tx ports.LedgerTx, account *domain.EscrowAccount) error {
		milestone, err := account.Milestone(milestoneID)
		if err != nil {
			return err
		}
		plan, err := milestone.AbortSettlement()
		if err != nil {
			return err
		}
		if plan.DisputeID != "" {
			dispute, err := tx.GetDispute(ctx, plan.DisputeID)
			if err != nil {
				return err
			}
			dispute.ReopenAfterFailedSettlement()
			if err := tx.SaveDispute(ctx, dispute); err != nil {
				return err
			}
		}
		account.RefreshStatus(s.nowFn())
		return tx.SaveAccount(ctx, account)
	})
	if err != nil {
		return err
	}
	s.dequeueReconciliation(ctx, accountID, milestoneID)
	s.logger.WarnContext(ctx, "settlement aborted after declined transfers",
		"module", "application.settlement",
		"layer", "application",
		"operation", "abort_settlement",
		"outcome", "failure",
		"account_id", accountID,
		"milestone_id", milestoneID,
		"actor_id", actor.SubjectID,
	)
	return nil
}

// markIndeterminate leaves the milestone in releasing and hands it to operators.
// confirmed carries the legs the processor acknowledged, if any.
func (s *Service) markIndeterminate(ctx context.Context, actor Actor, account domain.EscrowAccount, milestone domain.Milestone, legs []domain.TransferRequest, confirmed []domain.TransferRecord, cause error) {
	keys := make([]string, 0, len(legs))
	for _, leg := range legs {
		keys = append(keys, leg.IdempotencyKey)
	}
	task := ports.ReconciliationTask{
		AccountID:    account.AccountID,
		MilestoneID:  milestone.MilestoneID,
		Reason:       cause.Error(),
		TransferKeys: keys,
		EnqueuedAt:   s.nowFn(),
	}
	if len(confirmed) > 0 {
		task.ProcessorRefs = make(map[string]string, len(confirmed))
		for _, rec := range confirmed {
			task.ProcessorRefs[rec.IdempotencyKey] = rec.ProcessorRef
		}
	}
	if milestone.Pending != nil {
		task.DisputeID = milestone.Pending.DisputeID
	}
	s.logger.ErrorContext(ctx, "transfer outcome indeterminate, manual reconciliation required",
		"module", "application.settlement",
		"layer", "application",
		"operation", "settle",
		"outcome", "indeterminate",
		"account_id", account.AccountID,
		"milestone_id", milestone.MilestoneID,
		"error", cause,
	)
	if s.queue != nil {
		if err := s.queue.Enqueue(ctx, task); err != nil {
			s.logger.ErrorContext(ctx, "operator queue enqueue failed",
				"module", "application.settlement",
				"layer", "application",
				"operation", "enqueue_reconciliation",
				"outcome", "failure",
				"account_id", account.AccountID,
				"error", err,
			)
		}
	}
	err := s.store.WithinTx(ctx, func(tx ports.LedgerTx) error {
		return s.enqueueTransferIndeterminate(ctx, tx, actor, task)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "indeterminate transfer event not recorded",
			"module", "application.settlement",
			"layer", "application",
			"operation", "enqueue_event",
			"outcome", "failure",
			"account_id", account.AccountID,
			"error", err,
		)
	}
}

func (s *Service) dequeueReconciliation(ctx context.Context, accountID, milestoneID string) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Remove(ctx, accountID, milestoneID); err != nil {
		s.logger.WarnContext(ctx, "operator queue cleanup failed",
			"module", "application.settlement",
			"layer", "application",
			"operation", "dequeue_reconciliation",
			"outcome", "failure",
			"account_id", accountID,
			"milestone_id", milestoneID,
			"error", err,
		)
	}
}
