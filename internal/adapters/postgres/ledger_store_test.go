package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viralforge/escrow-milestone-ledger/internal/domain"
	"github.com/viralforge/escrow-milestone-ledger/internal/ports"
	"github.com/viralforge/escrow-milestone-ledger/internal/testutil"
)

func newStore(t *testing.T) *LedgerStore {
	t.Helper()
	return NewLedgerStore(testutil.NewTestDB(t, AllModels()...))
}

func seedAccount(t *testing.T, store *LedgerStore) domain.EscrowAccount {
	t.Helper()
	n := 0
	ids := func() string {
		n++
		return []string{"acc_1", "ms_1", "ms_2"}[n-1]
	}
	account, err := domain.NewEscrowAccount(domain.AccountSpec{
		CampaignID: "cmp_1",
		PayerID:    "brand_1",
		PayeeID:    "creator_1",
		Currency:   domain.CurrencyUSD,
		Milestones: []domain.MilestoneSpec{
			{Title: "Draft", Amount: decimal.RequireFromString("1000.50"), Deliverables: []string{"script", "storyboard"}, ApprovalRequired: true},
			{Title: "Final", Amount: decimal.NewFromInt(2000)},
		},
	}, ids, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, store.WithinTx(context.Background(), func(tx ports.LedgerTx) error {
		return tx.CreateAccount(context.Background(), account)
	}))
	return account
}

func TestLedgerStore_RoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seeded := seedAccount(t, store)

	got, err := store.GetAccount(ctx, seeded.AccountID)
	require.NoError(t, err)
	assert.Equal(t, "brand_1", got.PayerID)
	assert.True(t, got.Total.Equal(decimal.RequireFromString("3000.50")))
	assert.True(t, got.Held.Equal(got.Total))
	assert.Equal(t, int64(1), got.Version)
	require.Len(t, got.Milestones, 2)
	assert.Equal(t, "ms_1", got.Milestones[0].MilestoneID)
	assert.Equal(t, []string{"script", "storyboard"}, got.Milestones[0].Deliverables)
	assert.True(t, got.Milestones[0].ApprovalRequired)
	assert.Nil(t, got.Milestones[0].Pending)

	_, err = store.GetAccount(ctx, "acc_missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	err = store.WithinTx(ctx, func(tx ports.LedgerTx) error {
		return tx.CreateAccount(ctx, seeded)
	})
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestLedgerStore_Deposits(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seeded := seedAccount(t, store)

	deposit := domain.NewDeposit(seeded, "dep_1", "pm_card")
	require.NoError(t, store.WithinTx(ctx, func(tx ports.LedgerTx) error {
		return tx.RecordDeposit(ctx, deposit)
	}))

	got, err := store.ListDeposits(ctx, seeded.AccountID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "dep_1", got[0].DepositID)
	assert.Equal(t, "pm_card", got[0].PaymentMethodID)
	assert.True(t, got[0].Amount.Equal(decimal.RequireFromString("3000.50")))
	assert.Equal(t, domain.CurrencyUSD, got[0].Currency)

	none, err := store.ListDeposits(ctx, "acc_missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLedgerStore_SaveAccountPersistsPendingSettlement(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seeded := seedAccount(t, store)
	now := time.Now().UTC()

	err := store.WithinTx(ctx, func(tx ports.LedgerTx) error {
		account, err := tx.GetAccount(ctx, seeded.AccountID)
		if err != nil {
			return err
		}
		m := &account.Milestones[0]
		if err := m.StartWork(); err != nil {
			return err
		}
		if err := m.BeginSettlement(domain.MilestoneStatusCompleted, m.Amount, decimal.Zero, "", now); err != nil {
			return err
		}
		return tx.SaveAccount(ctx, &account)
	})
	require.NoError(t, err)

	got, err := store.GetAccount(ctx, seeded.AccountID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	m := got.Milestones[0]
	assert.Equal(t, domain.MilestoneStatusReleasing, m.Status)
	require.NotNil(t, m.Pending)
	assert.Equal(t, domain.MilestoneStatusInProgress, m.Pending.PriorStatus)
	assert.Equal(t, domain.MilestoneStatusCompleted, m.Pending.Target)
	assert.True(t, m.Pending.PayeeAmount.Equal(decimal.RequireFromString("1000.50")))
	assert.True(t, m.Pending.PayerAmount.IsZero())
}

func TestLedgerStore_ListStalledSettlements(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seeded := seedAccount(t, store)
	now := time.Now().UTC()

	err := store.WithinTx(ctx, func(tx ports.LedgerTx) error {
		account, err := tx.GetAccount(ctx, seeded.AccountID)
		if err != nil {
			return err
		}
		for i, started := range []time.Time{now.Add(-2 * time.Hour), now} {
			m := &account.Milestones[i]
			if err := m.StartWork(); err != nil {
				return err
			}
			if err := m.BeginSettlement(domain.MilestoneStatusCompleted, m.Amount, decimal.Zero, "", started); err != nil {
				return err
			}
		}
		return tx.SaveAccount(ctx, &account)
	})
	require.NoError(t, err)

	stalled, err := store.ListStalledSettlements(ctx, now.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stalled, 1)
	assert.Equal(t, "ms_1", stalled[0].MilestoneID)
	require.NotNil(t, stalled[0].Pending)

	stalled, err = store.ListStalledSettlements(ctx, now.Add(time.Minute), 1)
	require.NoError(t, err)
	require.Len(t, stalled, 1)
	assert.Equal(t, "ms_1", stalled[0].MilestoneID)
}

func TestLedgerStore_SaveAccountRejectsStaleVersion(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seeded := seedAccount(t, store)

	stale := seeded
	require.NoError(t, store.WithinTx(ctx, func(tx ports.LedgerTx) error {
		fresh, err := tx.GetAccount(ctx, seeded.AccountID)
		if err != nil {
			return err
		}
		fresh.FrozenReason = "first writer"
		return tx.SaveAccount(ctx, &fresh)
	}))

	err := store.WithinTx(ctx, func(tx ports.LedgerTx) error {
		stale.FrozenReason = "second writer"
		return tx.SaveAccount(ctx, &stale)
	})
	require.ErrorIs(t, err, domain.ErrConflict)

	got, err := store.GetAccount(ctx, seeded.AccountID)
	require.NoError(t, err)
	assert.Equal(t, "first writer", got.FrozenReason)
}

func TestLedgerStore_AppendTransferDeduplicatesOnKey(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seeded := seedAccount(t, store)
	key := domain.TransferIdempotencyKey(seeded.AccountID, "ms_1", domain.TransferToPayee)
	record := domain.TransferRecord{
		TransferID:     "tr_1",
		AccountID:      seeded.AccountID,
		MilestoneID:    "ms_1",
		Direction:      domain.TransferToPayee,
		Kind:           domain.TransferKindRelease,
		Amount:         decimal.RequireFromString("1000.50"),
		Currency:       domain.CurrencyUSD,
		IdempotencyKey: key,
		ProcessorRef:   "pr_1",
		Fees:           domain.DefaultFeeSchedule().Apply(decimal.RequireFromString("1000.50")),
		CompletedAt:    time.Now().UTC(),
	}

	var first, second bool
	require.NoError(t, store.WithinTx(ctx, func(tx ports.LedgerTx) error {
		var err error
		first, err = tx.AppendTransfer(ctx, record)
		return err
	}))
	dup := record
	dup.TransferID = "tr_2"
	require.NoError(t, store.WithinTx(ctx, func(tx ports.LedgerTx) error {
		var err error
		second, err = tx.AppendTransfer(ctx, dup)
		return err
	}))
	assert.True(t, first)
	assert.False(t, second)

	transfers, err := store.ListTransfers(ctx, seeded.AccountID)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, "tr_1", transfers[0].TransferID)
	assert.True(t, transfers[0].Fees.PlatformFee.Equal(decimal.RequireFromString("50.03")))

	byKey, err := store.GetTransferByKey(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, byKey)
	assert.Equal(t, "pr_1", byKey.ProcessorRef)
	missing, err := store.GetTransferByKey(ctx, "esc_missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLedgerStore_Disputes(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seeded := seedAccount(t, store)
	now := time.Now().UTC()

	dispute, err := domain.NewDispute("dsp_1", seeded.AccountID, "ms_1", "late", "brand_1", now)
	require.NoError(t, err)
	require.NoError(t, store.WithinTx(ctx, func(tx ports.LedgerTx) error {
		return tx.CreateDispute(ctx, dispute)
	}))

	ratio := decimal.RequireFromString("0.4")
	require.NoError(t, dispute.BeginResolution(domain.Outcome{Kind: domain.OutcomeSplit, PayeeRatio: ratio}, "ops_1"))
	dispute.CompleteResolution(now)
	require.NoError(t, store.WithinTx(ctx, func(tx ports.LedgerTx) error {
		return tx.SaveDispute(ctx, dispute)
	}))

	got, err := store.GetDispute(ctx, "dsp_1")
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeStatusResolved, got.Status)
	require.NotNil(t, got.Outcome)
	assert.Equal(t, domain.OutcomeSplit, got.Outcome.Kind)
	assert.True(t, got.Outcome.PayeeRatio.Equal(ratio))
	assert.Equal(t, "ops_1", got.ResolvedBy)

	list, err := store.ListDisputes(ctx, seeded.AccountID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = store.GetDispute(ctx, "dsp_missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
	err = store.WithinTx(ctx, func(tx ports.LedgerTx) error {
		missing := dispute
		missing.DisputeID = "dsp_missing"
		return tx.SaveDispute(ctx, missing)
	})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLedgerStore_RollbackDiscardsWrites(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seeded := seedAccount(t, store)

	err := store.WithinTx(ctx, func(tx ports.LedgerTx) error {
		if err := tx.EnqueueOutbox(ctx, ports.OutboxRecord{RecordID: "evt_1", EventType: domain.EventEscrowAccountClosed, CreatedAt: time.Now()}); err != nil {
			return err
		}
		account, err := tx.GetAccount(ctx, seeded.AccountID)
		if err != nil {
			return err
		}
		account.Frozen = true
		if err := tx.SaveAccount(ctx, &account); err != nil {
			return err
		}
		return domain.ErrInvariantViolation
	})
	require.ErrorIs(t, err, domain.ErrInvariantViolation)

	got, err := store.GetAccount(ctx, seeded.AccountID)
	require.NoError(t, err)
	assert.False(t, got.Frozen)
	assert.Equal(t, int64(1), got.Version)

	pending, err := NewOutboxRepository(store.db).FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
