package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viralforge/escrow-milestone-ledger/internal/domain"
	"github.com/viralforge/escrow-milestone-ledger/internal/ports"
	"github.com/viralforge/escrow-milestone-ledger/internal/testutil"
)

func recordKey(t *testing.T, store *LedgerStore, rec ports.IdempotencyRecord) error {
	t.Helper()
	return store.WithinTx(context.Background(), func(tx ports.LedgerTx) error {
		return tx.RecordIdempotency(context.Background(), rec)
	})
}

func TestIdempotencyRepository_Lifecycle(t *testing.T) {
	db := testutil.NewTestDB(t, AllModels()...)
	store := NewLedgerStore(db)
	repo := NewIdempotencyRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	rec, err := repo.Get(ctx, "idem-1", now)
	require.NoError(t, err)
	assert.Nil(t, rec)

	entry := ports.IdempotencyRecord{
		Key: "idem-1", RequestHash: "hash-a", ResponseCode: 201,
		ResponseBody: []byte(`"acc_1"`), ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, recordKey(t, store, entry))
	require.ErrorIs(t, recordKey(t, store, entry), domain.ErrConflict)

	rec, err = repo.Get(ctx, "idem-1", now)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "completed", rec.Status)
	assert.Equal(t, 201, rec.ResponseCode)
	assert.Equal(t, `"acc_1"`, string(rec.ResponseBody))
	assert.Equal(t, "hash-a", rec.RequestHash)
}

func TestIdempotencyRepository_RolledBackWithTx(t *testing.T) {
	db := testutil.NewTestDB(t, AllModels()...)
	store := NewLedgerStore(db)
	repo := NewIdempotencyRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	err := store.WithinTx(ctx, func(tx ports.LedgerTx) error {
		if err := tx.RecordIdempotency(ctx, ports.IdempotencyRecord{Key: "idem-rb", RequestHash: "h", ExpiresAt: now.Add(time.Hour)}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)
	rec, err := repo.Get(ctx, "idem-rb", now)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestIdempotencyRepository_ExpiredKeyCanBeReused(t *testing.T) {
	db := testutil.NewTestDB(t, AllModels()...)
	store := NewLedgerStore(db)
	repo := NewIdempotencyRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, recordKey(t, store, ports.IdempotencyRecord{Key: "idem-old", RequestHash: "hash-a", ExpiresAt: now.Add(-time.Minute)}))
	rec, err := repo.Get(ctx, "idem-old", now)
	require.NoError(t, err)
	assert.Nil(t, rec)
	require.NoError(t, recordKey(t, store, ports.IdempotencyRecord{Key: "idem-old", RequestHash: "hash-b", ExpiresAt: now.Add(time.Hour)}))
}

func TestOutboxRepository_PublishAndFail(t *testing.T) {
	db := testutil.NewTestDB(t, AllModels()...)
	store := NewLedgerStore(db)
	repo := NewOutboxRepository(db)
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, store.WithinTx(ctx, func(tx ports.LedgerTx) error {
		for i, id := range []string{"evt_1", "evt_2", "evt_3"} {
			if err := tx.EnqueueOutbox(ctx, ports.OutboxRecord{
				RecordID:     id,
				EventType:    domain.EventEscrowMilestoneSettled,
				EventClass:   domain.CanonicalEventClassDomain,
				PartitionKey: "acc_1",
				Payload:      []byte(`{}`),
				CreatedAt:    base.Add(time.Duration(i) * time.Second),
			}); err != nil {
				return err
			}
		}
		return nil
	}))

	batch, err := repo.FetchUnpublished(ctx, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "evt_1", batch[0].RecordID)
	assert.Equal(t, "acc_1", batch[0].PartitionKey)

	require.NoError(t, repo.MarkPublished(ctx, "evt_1", base))
	require.NoError(t, repo.MarkFailed(ctx, "evt_2", "broker down", base))
	require.NoError(t, repo.MarkFailed(ctx, "evt_2", "broker down", base))

	pending, err := repo.FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "evt_2", pending[0].RecordID)
	assert.Equal(t, 2, pending[0].RetryCount)
	assert.Equal(t, "broker down", pending[0].LastError)
	assert.NotNil(t, pending[0].LastErrorAt)
}
