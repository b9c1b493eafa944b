package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/viralforge/escrow-milestone-ledger/internal/domain"
	"github.com/viralforge/escrow-milestone-ledger/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerStore is the durable source of truth for accounts, milestones,
// disputes and transfer records.
type LedgerStore struct {
	ledgerReader
}

func NewLedgerStore(db *gorm.DB) *LedgerStore {
	return &LedgerStore{ledgerReader{db: db}}
}

func (s *LedgerStore) WithinTx(ctx context.Context, fn func(tx ports.LedgerTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&ledgerTx{ledgerReader{db: tx}})
	})
}

func (s *LedgerStore) ListStalledSettlements(ctx context.Context, startedBefore time.Time, limit int) ([]domain.Milestone, error) {
	var rows []milestoneModel
	q := s.db.WithContext(ctx).
		Where("status = ? AND pending_started_at < ?", string(domain.MilestoneStatusReleasing), startedBefore.UTC()).
		Order("pending_started_at asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Milestone, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainMilestone(row))
	}
	return out, nil
}

type ledgerReader struct {
	db *gorm.DB
}

func (r ledgerReader) GetAccount(ctx context.Context, accountID string) (domain.EscrowAccount, error) {
	var row escrowAccountModel
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.EscrowAccount{}, fmt.Errorf("%w: account %s", domain.ErrNotFound, accountID)
		}
		return domain.EscrowAccount{}, err
	}
	var milestones []milestoneModel
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).Order("position asc").Find(&milestones).Error; err != nil {
		return domain.EscrowAccount{}, err
	}
	return toDomainAccount(row, milestones), nil
}

func (r ledgerReader) GetDispute(ctx context.Context, disputeID string) (domain.Dispute, error) {
	var row disputeModel
	if err := r.db.WithContext(ctx).Where("dispute_id = ?", disputeID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Dispute{}, fmt.Errorf("%w: dispute %s", domain.ErrNotFound, disputeID)
		}
		return domain.Dispute{}, err
	}
	return toDomainDispute(row), nil
}

func (r ledgerReader) ListDisputes(ctx context.Context, accountID string) ([]domain.Dispute, error) {
	var rows []disputeModel
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).Order("opened_at asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Dispute, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainDispute(row))
	}
	return out, nil
}

func (r ledgerReader) ListTransfers(ctx context.Context, accountID string) ([]domain.TransferRecord, error) {
	var rows []transferRecordModel
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).Order("completed_at asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.TransferRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainTransfer(row))
	}
	return out, nil
}

func (r ledgerReader) ListDeposits(ctx context.Context, accountID string) ([]domain.Deposit, error) {
	var rows []depositModel
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Deposit, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainDeposit(row))
	}
	return out, nil
}

func (r ledgerReader) GetTransferByKey(ctx context.Context, idempotencyKey string) (*domain.TransferRecord, error) {
	var row transferRecordModel
	if err := r.db.WithContext(ctx).Where("idempotency_key = ?", idempotencyKey).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	rec := toDomainTransfer(row)
	return &rec, nil
}

type ledgerTx struct {
	ledgerReader
}

func (t *ledgerTx) CreateAccount(ctx context.Context, account domain.EscrowAccount) error {
	row := toAccountModel(account)
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: account %s exists", domain.ErrConflict, account.AccountID)
		}
		return err
	}
	milestones := make([]milestoneModel, 0, len(account.Milestones))
	for _, m := range account.Milestones {
		milestones = append(milestones, toMilestoneModel(m))
	}
	return t.db.WithContext(ctx).Create(&milestones).Error
}

func (t *ledgerTx) SaveAccount(ctx context.Context, account *domain.EscrowAccount) error {
	res := t.db.WithContext(ctx).Model(&escrowAccountModel{}).
		Where("account_id = ? AND version = ?", account.AccountID, account.Version).
		Updates(map[string]any{
			"held":          account.Held,
			"released":      account.Released,
			"refunded":      account.Refunded,
			"status":        string(account.Status),
			"frozen":        account.Frozen,
			"frozen_reason": account.FrozenReason,
			"version":       account.Version + 1,
			"updated_at":    account.UpdatedAt,
			"closed_at":     account.ClosedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: account %s changed concurrently", domain.ErrConflict, account.AccountID)
	}
	for _, m := range account.Milestones {
		if err := t.db.WithContext(ctx).Model(&milestoneModel{}).
			Where("milestone_id = ?", m.MilestoneID).
			Updates(milestoneUpdates(m)).Error; err != nil {
			return err
		}
	}
	account.Version++
	return nil
}

func (t *ledgerTx) CreateDispute(ctx context.Context, dispute domain.Dispute) error {
	row := toDisputeModel(dispute)
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: dispute %s exists", domain.ErrConflict, dispute.DisputeID)
		}
		return err
	}
	return nil
}

func (t *ledgerTx) SaveDispute(ctx context.Context, dispute domain.Dispute) error {
	row := toDisputeModel(dispute)
	res := t.db.WithContext(ctx).Model(&disputeModel{}).
		Where("dispute_id = ?", dispute.DisputeID).
		Updates(map[string]any{
			"status":      row.Status,
			"outcome":     row.Outcome,
			"payee_ratio": row.PayeeRatio,
			"resolved_by": row.ResolvedBy,
			"resolved_at": row.ResolvedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: dispute %s", domain.ErrNotFound, dispute.DisputeID)
	}
	return nil
}

func (t *ledgerTx) AppendTransfer(ctx context.Context, record domain.TransferRecord) (bool, error) {
	row := toTransferModel(record)
	res := t.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "idempotency_key"}}, DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (t *ledgerTx) RecordDeposit(ctx context.Context, deposit domain.Deposit) error {
	row := toDepositModel(deposit)
	return t.db.WithContext(ctx).Create(&row).Error
}

func (t *ledgerTx) EnqueueOutbox(ctx context.Context, record ports.OutboxRecord) error {
	row := outboxModel{
		OutboxID:     record.RecordID,
		EventType:    record.EventType,
		EventClass:   record.EventClass,
		PartitionKey: record.PartitionKey,
		Payload:      string(record.Payload),
		CreatedAt:    record.CreatedAt,
	}
	return t.db.WithContext(ctx).Create(&row).Error
}

// RecordIdempotency stores the completed response for rec.Key alongside the
// writes it describes.
func (t *ledgerTx) RecordIdempotency(ctx context.Context, rec ports.IdempotencyRecord) error {
	body := string(rec.ResponseBody)
	now := time.Now().UTC()
	row := idempotencyModel{
		IdempotencyKey: rec.Key,
		RequestHash:    rec.RequestHash,
		Status:         "completed",
		ResponseCode:   rec.ResponseCode,
		ResponseBody:   &body,
		ExpiresAt:      rec.ExpiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: idempotency key %s taken", domain.ErrConflict, rec.Key)
		}
		return err
	}
	return nil
}
