package postgres

import (
	"context"
	"time"

	"github.com/viralforge/escrow-milestone-ledger/internal/ports"
	"gorm.io/gorm"
)

type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) FetchUnpublished(ctx context.Context, limit int) ([]ports.OutboxRecord, error) {
	var rows []outboxModel
	if err := r.db.WithContext(ctx).Where("published_at IS NULL").Order("created_at asc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ports.OutboxRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, ports.OutboxRecord{
			RecordID: row.OutboxID, EventType: row.EventType, EventClass: row.EventClass,
			PartitionKey: row.PartitionKey, Payload: []byte(row.Payload), RetryCount: row.RetryCount,
			CreatedAt: row.CreatedAt, PublishedAt: row.PublishedAt, LastError: row.LastError, LastErrorAt: row.LastErrorAt,
		})
	}
	return out, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, recordID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&outboxModel{}).Where("outbox_id = ?", recordID).Update("published_at", at).Error
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, recordID, errMsg string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&outboxModel{}).Where("outbox_id = ?", recordID).Updates(map[string]any{
		"retry_count":   gorm.Expr("retry_count + 1"),
		"last_error":    errMsg,
		"last_error_at": at,
	}).Error
}
