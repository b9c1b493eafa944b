package application

import (
	"context"
	"strings"

	"github.com/viralforge/escrow-milestone-ledger/internal/domain"
	"github.com/viralforge/escrow-milestone-ledger/internal/ports"
)

// OpenDispute freezes an in-progress milestone until an outcome is decided.
func (s *Service) OpenDispute(ctx context.Context, actor Actor, accountID, milestoneID, reason string) (domain.Dispute, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.Dispute{}, domain.ErrUnauthorized
	}
	var out domain.Dispute
	err := s.withAccount(ctx, accountID, func(tx ports.LedgerTx, account *domain.EscrowAccount) error {
		if !actor.principal().CanDispute(*account) {
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
		dispute, err := domain.NewDispute(s.newID(), account.AccountID, milestone.MilestoneID, reason, actor.SubjectID, now)
		if err != nil {
			return err
		}
		if err := milestone.OpenDispute(); err != nil {
			return err
		}
		if err := tx.CreateDispute(ctx, dispute); err != nil {
			return err
		}
		account.RefreshStatus(now)
		if err := tx.SaveAccount(ctx, account); err != nil {
			return err
		}
		out = dispute
		return s.enqueueDisputeOpened(ctx, tx, actor, dispute)
	})
	if err != nil {
		return domain.Dispute{}, err
	}
	s.logger.InfoContext(ctx, "dispute opened",
		"module", "application.disputes",
		"layer", "application",
		"operation", "open_dispute",
		"outcome", "success",
		"account_id", out.AccountID,
		"milestone_id", out.MilestoneID,
		"dispute_id", out.DisputeID,
	)
	return out, nil
}

// ResolveDispute applies an outcome exactly once. Later calls fail with
// domain.ErrAlreadyResolved and leave balances untouched.
func (s *Service) ResolveDispute(ctx context.Context, actor Actor, input ResolveDisputeInput) (DisputeResolution, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return DisputeResolution{}, domain.ErrUnauthorized
	}
	outcome, err := domain.ParseOutcome(input.Outcome, input.PayeeRatio)
	if err != nil {
		return DisputeResolution{}, err
	}
	existing, err := s.store.GetDispute(ctx, strings.TrimSpace(input.DisputeID))
	if err != nil {
		return DisputeResolution{}, err
	}

	err = s.withAccount(ctx, existing.AccountID, func(tx ports.LedgerTx, account *domain.EscrowAccount) error {
		if !actor.principal().CanResolve(*account, outcome) {
			return domain.ErrForbidden
		}
		dispute, err := tx.GetDispute(ctx, existing.DisputeID)
		if err != nil {
			return err
		}
		if err := dispute.BeginResolution(outcome, actor.SubjectID); err != nil {
			return err
		}
		if err := account.EnsureMutable(); err != nil {
			return err
		}
		milestone, err := account.Milestone(dispute.MilestoneID)
		if err != nil {
			return err
		}
		payee, payer := outcome.Allocate(milestone.Amount)
		now := s.nowFn()
		if err := milestone.BeginSettlement(outcome.TargetStatus(), payee, payer, dispute.DisputeID, now); err != nil {
			return err
		}
		if err := tx.SaveDispute(ctx, dispute); err != nil {
			return err
		}
		account.RefreshStatus(now)
		return tx.SaveAccount(ctx, account)
	})
	if err != nil {
		return DisputeResolution{}, err
	}

	account, settleErr := s.settle(ctx, actor, existing.AccountID, existing.MilestoneID)
	dispute, err := s.store.GetDispute(context.WithoutCancel(ctx), existing.DisputeID)
	if err != nil {
		return DisputeResolution{}, err
	}
	if settleErr != nil {
		return DisputeResolution{Dispute: dispute}, settleErr
	}
	return DisputeResolution{Dispute: dispute, Account: account}, nil
}

func (s *Service) ListDisputes(ctx context.Context, actor Actor, accountID string) ([]domain.Dispute, error) {
	account, err := s.viewableAccount(ctx, actor, accountID)
	if err != nil {
		return nil, err
	}
	return s.store.ListDisputes(ctx, account.AccountID)
}

func (s *Service) GetDispute(ctx context.Context, actor Actor, disputeID string) (domain.Dispute, error) {
	dispute, err := s.store.GetDispute(ctx, strings.TrimSpace(disputeID))
	if err != nil {
		return domain.Dispute{}, err
	}
	if _, err := s.viewableAccount(ctx, actor, dispute.AccountID); err != nil {
		return domain.Dispute{}, err
	}
	return dispute, nil
}
