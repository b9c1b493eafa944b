package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/viralforge/escrow-milestone-ledger/internal/domain"
	"github.com/viralforge/escrow-milestone-ledger/internal/ports"
)

func (s *Service) CreateAccount(ctx context.Context, actor Actor, input CreateAccountInput) (domain.EscrowAccount, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.EscrowAccount{}, domain.ErrUnauthorized
	}
	if strings.TrimSpace(actor.IdempotencyKey) == "" {
		return domain.EscrowAccount{}, domain.ErrIdempotencyRequired
	}
	if input.PayerID == "" && actor.Role == domain.RoleBrand {
		input.PayerID = actor.SubjectID
	}
	if !actor.principal().CanCreateAccount(strings.TrimSpace(input.PayerID)) {
		return domain.EscrowAccount{}, domain.ErrForbidden
	}

	spec := domain.AccountSpec{
		CampaignID: input.CampaignID,
		PayerID:    input.PayerID,
		PayeeID:    input.PayeeID,
		Currency:   domain.Currency(input.Currency),
		Total:      input.Total,
		Milestones: make([]domain.MilestoneSpec, 0, len(input.Milestones)),
	}
	for _, m := range input.Milestones {
		spec.Milestones = append(spec.Milestones, domain.MilestoneSpec{
			Title:            m.Title,
			Description:      m.Description,
			Amount:           m.Amount,
			DueDate:          m.DueDate,
			Deliverables:     m.Deliverables,
			ApprovalRequired: m.ApprovalRequired,
		})
	}
	now := s.nowFn()
	account, err := domain.NewEscrowAccount(spec, s.newID, now)
	if err != nil {
		return domain.EscrowAccount{}, err
	}

	requestHash := hashJSON(input)
	if cached, ok, err := s.getIdempotentAccount(ctx, actor.IdempotencyKey, requestHash); err != nil {
		return domain.EscrowAccount{}, err
	} else if ok {
		return cached, nil
	}
	deposit := domain.NewDeposit(account, s.newID(), strings.TrimSpace(input.PaymentMethodID))
	err = s.store.WithinTx(ctx, func(tx ports.LedgerTx) error {
		if err := tx.CreateAccount(ctx, account); err != nil {
			return err
		}
		if err := tx.RecordDeposit(ctx, deposit); err != nil {
			return err
		}
		if err := s.enqueueAccountCreated(ctx, tx, actor, account); err != nil {
			return err
		}
		return s.recordIdempotentAccount(ctx, tx, actor.IdempotencyKey, requestHash, account.AccountID)
	})
	if errors.Is(err, domain.ErrConflict) {
		// A concurrent request under the same key committed first.
		if cached, ok, getErr := s.getIdempotentAccount(ctx, actor.IdempotencyKey, requestHash); getErr != nil {
			return domain.EscrowAccount{}, getErr
		} else if ok {
			return cached, nil
		}
	}
	if err != nil {
		return domain.EscrowAccount{}, err
	}

	s.logger.InfoContext(ctx, "escrow account created",
		"module", "application.accounts",
		"layer", "application",
		"operation", "create_account",
		"outcome", "success",
		"account_id", account.AccountID,
		"milestones", len(account.Milestones),
		"total", account.Total.String(),
		"currency", string(account.Currency),
	)
	return account, nil
}

func (s *Service) GetAccount(ctx context.Context, actor Actor, accountID string) (domain.EscrowAccount, error) {
	return s.viewableAccount(ctx, actor, accountID)
}

func (s *Service) GetBalance(ctx context.Context, actor Actor, accountID string) (domain.Balance, error) {
	account, err := s.viewableAccount(ctx, actor, accountID)
	if err != nil {
		return domain.Balance{}, err
	}
	return account.Balance(), nil
}

func (s *Service) ListMilestones(ctx context.Context, actor Actor, accountID string) ([]domain.Milestone, error) {
	account, err := s.viewableAccount(ctx, actor, accountID)
	if err != nil {
		return nil, err
	}
	return account.Milestones, nil
}

func (s *Service) ListTransfers(ctx context.Context, actor Actor, accountID string) ([]domain.TransferRecord, error) {
	account, err := s.viewableAccount(ctx, actor, accountID)
	if err != nil {
		return nil, err
	}
	return s.store.ListTransfers(ctx, account.AccountID)
}

// ListDeposits returns the funding recorded when the account opened.
func (s *Service) ListDeposits(ctx context.Context, actor Actor, accountID string) ([]domain.Deposit, error) {
	account, err := s.viewableAccount(ctx, actor, accountID)
	if err != nil {
		return nil, err
	}
	return s.store.ListDeposits(ctx, account.AccountID)
}

// CancelAccount refunds every milestone whose money has not moved and closes
// the account. Accounts with open disputes or settlements in flight are refused.
func (s *Service) CancelAccount(ctx context.Context, actor Actor, accountID string) (domain.EscrowAccount, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.EscrowAccount{}, domain.ErrUnauthorized
	}
	var toSettle []string
	var snapshot domain.EscrowAccount
	err := s.withAccount(ctx, accountID, func(tx ports.LedgerTx, account *domain.EscrowAccount) error {
		if !actor.principal().CanCancel(*account) {
			return domain.ErrForbidden
		}
		if err := account.EnsureMutable(); err != nil {
			return err
		}
		if account.Status == domain.AccountStatusCompleted || account.Status == domain.AccountStatusCancelled {
			return fmt.Errorf("%w: account %s is %s", domain.ErrInvalidTransition, account.AccountID, account.Status)
		}
		if account.Status == domain.AccountStatusDisputed || account.HasSettlementInFlight() {
			return fmt.Errorf("%w: account %s has open disputes or settlements in flight", domain.ErrInvalidTransition, account.AccountID)
		}
		now := s.nowFn()
		for i := range account.Milestones {
			m := &account.Milestones[i]
			if m.Status.IsTerminal() {
				continue
			}
			if err := m.BeginSettlement(domain.MilestoneStatusCancelled, decimal.Zero, m.Amount, "", now); err != nil {
				return err
			}
			toSettle = append(toSettle, m.MilestoneID)
		}
		account.RefreshStatus(now)
		if err := tx.SaveAccount(ctx, account); err != nil {
			return err
		}
		snapshot = *account
		return nil
	})
	if err != nil {
		return domain.EscrowAccount{}, err
	}

	out := snapshot
	var errs []error
	for _, milestoneID := range toSettle {
		settled, err := s.settle(ctx, actor, snapshot.AccountID, milestoneID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = settled
	}
	if len(errs) > 0 {
		return domain.EscrowAccount{}, errors.Join(errs...)
	}
	return out, nil
}
