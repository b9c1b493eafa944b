package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/viralforge/escrow-milestone-ledger/internal/domain"
	"github.com/viralforge/escrow-milestone-ledger/internal/ports"
)

// withAccount runs fn inside the account's exclusive section and a single
// store transaction, with the account freshly loaded.
func (s *Service) withAccount(ctx context.Context, accountID string, fn func(tx ports.LedgerTx, account *domain.EscrowAccount) error) error {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return domain.ErrInvalidInput
	}
	release, err := s.locker.Lock(ctx, accountID)
	if err != nil {
		return fmt.Errorf("lock account %s: %w", accountID, err)
	}
	defer release()
	return s.store.WithinTx(ctx, func(tx ports.LedgerTx) error {
		account, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		return fn(tx, &account)
	})
}

func (s *Service) viewableAccount(ctx context.Context, actor Actor, accountID string) (domain.EscrowAccount, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.EscrowAccount{}, domain.ErrUnauthorized
	}
	account, err := s.store.GetAccount(ctx, strings.TrimSpace(accountID))
	if err != nil {
		return domain.EscrowAccount{}, err
	}
	if !actor.principal().CanView(account) {
		return domain.EscrowAccount{}, domain.ErrForbidden
	}
	return account, nil
}

// freezeAccount halts further mutation after an invariant violation. It never
// repairs balances.
func (s *Service) freezeAccount(ctx context.Context, actor Actor, accountID string, cause error) {
	s.logger.ErrorContext(ctx, "ledger invariant violated, freezing account",
		"module", "application.ledger",
		"layer", "application",
		"operation", "freeze_account",
		"outcome", "failure",
		"account_id", accountID,
		"error", cause,
	)
	err := s.store.WithinTx(ctx, func(tx ports.LedgerTx) error {
		account, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		account.Frozen = true
		account.FrozenReason = cause.Error()
		account.UpdatedAt = s.nowFn()
		if err := tx.SaveAccount(ctx, &account); err != nil {
			return err
		}
		return s.enqueueInvariantViolated(ctx, tx, actor, accountID, cause)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "freeze account failed",
			"module", "application.ledger",
			"layer", "application",
			"operation", "freeze_account",
			"outcome", "failure",
			"account_id", accountID,
			"error", err,
		)
	}
}

func (s *Service) getIdempotentAccount(ctx context.Context, key, requestHash string) (domain.EscrowAccount, bool, error) {
	if s.idempotency == nil || strings.TrimSpace(key) == "" {
		return domain.EscrowAccount{}, false, nil
	}
	rec, err := s.idempotency.Get(ctx, key, s.nowFn())
	if err != nil || rec == nil {
		return domain.EscrowAccount{}, false, err
	}
	if rec.RequestHash != requestHash {
		return domain.EscrowAccount{}, false, domain.ErrIdempotencyConflict
	}
	var accountID string
	if err := json.Unmarshal(rec.ResponseBody, &accountID); err != nil || accountID == "" {
		return domain.EscrowAccount{}, false, nil
	}
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return domain.EscrowAccount{}, false, err
	}
	return account, true, nil
}

// recordIdempotentAccount stores the created account ID under key inside tx,
// so a replay never sees a key without the account it names.
func (s *Service) recordIdempotentAccount(ctx context.Context, tx ports.LedgerTx, key, requestHash, accountID string) error {
	if s.idempotency == nil || strings.TrimSpace(key) == "" {
		return nil
	}
	body, err := json.Marshal(accountID)
	if err != nil {
		return err
	}
	return tx.RecordIdempotency(ctx, ports.IdempotencyRecord{
		Key:          key,
		RequestHash:  requestHash,
		ResponseCode: 201,
		ResponseBody: body,
		ExpiresAt:    s.nowFn().Add(s.cfg.IdempotencyTTL),
	})
}

func hashJSON(v any) string {
	b, _ := json.Marshal(v)
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}
