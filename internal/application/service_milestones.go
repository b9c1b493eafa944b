package application

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/viralforge/escrow-milestone-ledger/internal/domain"
	"github.com/viralforge/escrow-milestone-ledger/internal/ports"
)

func (s *Service) StartWork(ctx context.Context, actor Actor, accountID, milestoneID string) (domain.EscrowAccount, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.EscrowAccount{}, domain.ErrUnauthorized
	}
	var out domain.EscrowAccount
	err := s.withAccount(ctx, accountID, func(tx ports.LedgerTx, account *domain.EscrowAccount) error {
		if !actor.principal().CanStartWork(*account) {
			return domain.ErrForbidden
		}
		if err := account.EnsureMutable(); err != nil {
			return err
		}
		milestone, err := account.Milestone(milestoneID)
		if err != nil {
			return err
		}
		if err := milestone.StartWork(); err != nil {
			return err
		}
		now := s.nowFn()
		account.RefreshStatus(now)
		if err := tx.SaveAccount(ctx, account); err != nil {
			return err
		}
		out = *account
		return s.enqueueMilestoneProgress(ctx, tx, actor, domain.EventEscrowMilestoneStarted, *milestone, now)
	})
	if err != nil {
		return domain.EscrowAccount{}, err
	}
	return out, nil
}

// SubmitForApproval records the payee's submission. Milestones that do not
// require approval are settled right away.
func (s *Service) SubmitForApproval(ctx context.Context, actor Actor, accountID, milestoneID string) (domain.EscrowAccount, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.EscrowAccount{}, domain.ErrUnauthorized
	}
	var out domain.EscrowAccount
	autoRelease := false
	err := s.withAccount(ctx, accountID, func(tx ports.LedgerTx, account *domain.EscrowAccount) error {
		if !actor.principal().CanSubmit(*account) {
			return domain.ErrForbidden
		}
		if err := account.EnsureMutable(); err != nil {
			return err
		}
		milestone, err := account.Milestone(milestoneID)
		if err != nil {
			return err
		}
		now := s.nowFn()
		if err := milestone.Submit(actor.SubjectID, now); err != nil {
			return err
		}
		if err := s.enqueueMilestoneProgress(ctx, tx, actor, domain.EventEscrowMilestoneSubmitted, *milestone, now); err != nil {
			return err
		}
		if !milestone.ApprovalRequired {
			milestone.MarkApproved(actor.SubjectID, now)
			if err := milestone.BeginSettlement(domain.MilestoneStatusCompleted, milestone.Amount, decimal.Zero, "", now); err != nil {
				return err
			}
			autoRelease = true
		}
		account.RefreshStatus(now)
		if err := tx.SaveAccount(ctx, account); err != nil {
			return err
		}
		out = *account
		return nil
	})
	if err != nil {
		return domain.EscrowAccount{}, err
	}
	if autoRelease {
		return s.settle(ctx, actor, out.AccountID, milestoneID)
	}
	return out, nil
}

// Approve completes an in-progress milestone and releases its amount to the
// payee. For milestones without required approval the call is a no-op.
func (s *Service) Approve(ctx context.Context, actor Actor, accountID, milestoneID string) (domain.EscrowAccount, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.EscrowAccount{}, domain.ErrUnauthorized
	}
	var out domain.EscrowAccount
	noop := false
	err := s.withAccount(ctx, accountID, func(tx ports.LedgerTx, account *domain.EscrowAccount) error {
		if !actor.principal().CanApprove(*account) {
			return domain.ErrForbidden
		}
		if err := account.EnsureMutable(); err != nil {
			return err
		}
		milestone, err := account.Milestone(milestoneID)
		if err != nil {
			return err
		}
		if !milestone.ApprovalRequired && milestone.Status == domain.MilestoneStatusInProgress {
			noop = true
			out = *account
			return nil
		}
		if err := milestone.CheckApprovable(); err != nil {
			return err
		}
		now := s.nowFn()
		milestone.MarkApproved(actor.SubjectID, now)
		if err := milestone.BeginSettlement(domain.MilestoneStatusCompleted, milestone.Amount, decimal.Zero, "", now); err != nil {
			return err
		}
		account.RefreshStatus(now)
		if err := tx.SaveAccount(ctx, account); err != nil {
			return err
		}
		out = *account
		return nil
	})
	if err != nil {
		return domain.EscrowAccount{}, err
	}
	if noop {
		return out, nil
	}
	return s.settle(ctx, actor, out.AccountID, milestoneID)
}
