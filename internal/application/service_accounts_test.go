package application_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viralforge/escrow-milestone-ledger/internal/application"
	"github.com/viralforge/escrow-milestone-ledger/internal/domain"
	"github.com/viralforge/escrow-milestone-ledger/internal/ports"
)

func TestCreateAccount_HoldsTotal(t *testing.T) {
	h := newHarness(t)
	account := h.createAccount(t, "idem-create-1", true)

	assert.Equal(t, brand.SubjectID, account.PayerID)
	assert.Equal(t, domain.AccountStatusActive, account.Status)
	requireBalances(t, h.account(t, account.AccountID), "3000", "0", "0")

	milestones, err := h.svc.ListMilestones(context.Background(), creator, account.AccountID)
	require.NoError(t, err)
	require.Len(t, milestones, 2)
	assert.Equal(t, "Draft video", milestones[0].Title)
	assert.Equal(t, domain.MilestoneStatusPending, milestones[1].Status)

	assert.Contains(t, h.eventTypes(t), domain.EventEscrowAccountCreated)

	deposits, err := h.svc.ListDeposits(context.Background(), brand, account.AccountID)
	require.NoError(t, err)
	require.Len(t, deposits, 1)
	assert.True(t, deposits[0].Amount.Equal(amount("3000")))
	assert.Equal(t, brand.SubjectID, deposits[0].PayerID)
	assert.Equal(t, "cmp_1", deposits[0].CampaignID)
	assert.Equal(t, domain.DepositDescription, deposits[0].Description)
	_, err = h.svc.ListDeposits(context.Background(), application.Actor{SubjectID: "brand_9", Role: domain.RoleBrand}, account.AccountID)
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestCreateAccount_RejectsMismatchedTotal(t *testing.T) {
	h := newHarness(t)
	total := amount("2500")
	actor := brand
	actor.IdempotencyKey = "idem-bad-total"
	_, err := h.svc.CreateAccount(context.Background(), actor, application.CreateAccountInput{
		PayeeID:  creator.SubjectID,
		Currency: "USD",
		Total:    &total,
		Milestones: []application.MilestoneInput{
			{Title: "Draft", Amount: amount("1000")},
			{Title: "Final", Amount: amount("2000")},
		},
	})
	require.ErrorIs(t, err, domain.ErrInvalidSpec)
	assert.Empty(t, h.eventTypes(t))
}

func TestCreateAccount_Idempotency(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.createAccount(t, "idem-replay", true)
	again := h.createAccount(t, "idem-replay", true)
	assert.Equal(t, first.AccountID, again.AccountID)

	actor := brand
	actor.IdempotencyKey = "idem-replay"
	_, err := h.svc.CreateAccount(ctx, actor, application.CreateAccountInput{
		PayeeID:    creator.SubjectID,
		Currency:   "USD",
		Milestones: []application.MilestoneInput{{Title: "Other", Amount: amount("10")}},
	})
	require.ErrorIs(t, err, domain.ErrIdempotencyConflict)

	_, err = h.svc.CreateAccount(ctx, brand, application.CreateAccountInput{
		PayeeID:    creator.SubjectID,
		Currency:   "USD",
		Milestones: []application.MilestoneInput{{Title: "Other", Amount: amount("10")}},
	})
	require.ErrorIs(t, err, domain.ErrIdempotencyRequired)

	created := 0
	for _, et := range h.eventTypes(t) {
		if et == domain.EventEscrowAccountCreated {
			created++
		}
	}
	assert.Equal(t, 1, created)
}

// staleIdempotency answers the next lookup with "unknown key", as a reader
// would when a concurrent request commits between its lookup and its write.
type staleIdempotency struct {
	ports.IdempotencyRepository
	miss atomic.Bool
}

func (r *staleIdempotency) Get(ctx context.Context, key string, now time.Time) (*ports.IdempotencyRecord, error) {
	if r.miss.CompareAndSwap(true, false) {
		return nil, nil
	}
	return r.IdempotencyRepository.Get(ctx, key, now)
}

func TestCreateAccount_KeyRecordedWithAccount(t *testing.T) {
	stale := &staleIdempotency{}
	h := newHarness(t, withIdempotency(func(inner ports.IdempotencyRepository) ports.IdempotencyRepository {
		stale.IdempotencyRepository = inner
		return stale
	}))
	ctx := context.Background()
	first := h.createAccount(t, "idem-race", true)

	stale.miss.Store(true)
	again := h.createAccount(t, "idem-race", true)
	assert.Equal(t, first.AccountID, again.AccountID)

	stale.miss.Store(true)
	actor := brand
	actor.IdempotencyKey = "idem-race"
	_, err := h.svc.CreateAccount(ctx, actor, application.CreateAccountInput{
		PayeeID:    creator.SubjectID,
		Currency:   "USD",
		Milestones: []application.MilestoneInput{{Title: "Other", Amount: amount("10")}},
	})
	require.ErrorIs(t, err, domain.ErrIdempotencyConflict)

	var accounts, deposits int64
	require.NoError(t, h.db.Table("escrow_accounts").Count(&accounts).Error)
	require.NoError(t, h.db.Table("escrow_deposits").Count(&deposits).Error)
	assert.Equal(t, int64(1), accounts)
	assert.Equal(t, int64(1), deposits)
	created := 0
	for _, et := range h.eventTypes(t) {
		if et == domain.EventEscrowAccountCreated {
			created++
		}
	}
	assert.Equal(t, 1, created)
}

func TestCreateAccount_Authorization(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	input := application.CreateAccountInput{
		PayerID:    "brand_2",
		PayeeID:    creator.SubjectID,
		Currency:   "USD",
		Milestones: []application.MilestoneInput{{Title: "Post", Amount: amount("50")}},
	}

	actor := brand
	actor.IdempotencyKey = "idem-other-payer"
	_, err := h.svc.CreateAccount(ctx, actor, input)
	require.ErrorIs(t, err, domain.ErrForbidden)

	influencer := creator
	influencer.IdempotencyKey = "idem-influencer"
	_, err = h.svc.CreateAccount(ctx, influencer, input)
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = h.svc.CreateAccount(ctx, application.Actor{IdempotencyKey: "idem-anon"}, input)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	operator := admin
	operator.IdempotencyKey = "idem-admin"
	account, err := h.svc.CreateAccount(ctx, operator, input)
	require.NoError(t, err)
	assert.Equal(t, "brand_2", account.PayerID)
}

func TestReads_RequireParticipant(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := h.createAccount(t, "idem-reads", true)
	stranger := application.Actor{SubjectID: "brand_9", Role: domain.RoleBrand}

	_, err := h.svc.GetAccount(ctx, stranger, account.AccountID)
	require.ErrorIs(t, err, domain.ErrForbidden)
	_, err = h.svc.GetBalance(ctx, stranger, account.AccountID)
	require.ErrorIs(t, err, domain.ErrForbidden)
	_, err = h.svc.GetAccount(ctx, admin, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	balance, err := h.svc.GetBalance(ctx, creator, account.AccountID)
	require.NoError(t, err)
	assert.True(t, balance.Held.Equal(amount("3000")))
	assert.Equal(t, domain.CurrencyUSD, balance.Currency)
}

func TestCancelAccount_RefundsOpenMilestones(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := h.createAccount(t, "idem-cancel", true)
	first := account.Milestones[0].MilestoneID

	h.startAndSubmit(t, account.AccountID, first)
	_, err := h.svc.Approve(ctx, brand, account.AccountID, first)
	require.NoError(t, err)

	_, err = h.svc.CancelAccount(ctx, creator, account.AccountID)
	require.ErrorIs(t, err, domain.ErrForbidden)

	cancelled, err := h.svc.CancelAccount(ctx, brand, account.AccountID)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.ClosedAt)
	assert.Equal(t, domain.MilestoneStatusCompleted, cancelled.Milestones[0].Status)
	assert.Equal(t, domain.MilestoneStatusCancelled, cancelled.Milestones[1].Status)
	requireBalances(t, h.account(t, account.AccountID), "0", "1000", "2000")

	transfers, err := h.svc.ListTransfers(ctx, brand, account.AccountID)
	require.NoError(t, err)
	require.Len(t, transfers, 2)
	assert.Equal(t, domain.TransferKindCancellationRefund, transfers[1].Kind)

	_, err = h.svc.CancelAccount(ctx, brand, account.AccountID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Contains(t, h.eventTypes(t), domain.EventEscrowAccountClosed)
}

func TestCancelAccount_RefusedWhileDisputed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := h.createAccount(t, "idem-cancel-disputed", true)
	first := account.Milestones[0].MilestoneID

	_, err := h.svc.StartWork(ctx, creator, account.AccountID, first)
	require.NoError(t, err)
	_, err = h.svc.OpenDispute(ctx, brand, account.AccountID, first, "missed brief")
	require.NoError(t, err)

	_, err = h.svc.CancelAccount(ctx, brand, account.AccountID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	requireBalances(t, h.account(t, account.AccountID), "3000", "0", "0")
}

func TestFrozenAccount_RejectsMutations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := h.createAccount(t, "idem-frozen", true)
	require.NoError(t, h.db.Exec("UPDATE escrow_accounts SET frozen = ? WHERE account_id = ?", true, account.AccountID).Error)

	_, err := h.svc.StartWork(ctx, creator, account.AccountID, account.Milestones[0].MilestoneID)
	require.ErrorIs(t, err, domain.ErrAccountFrozen)
	_, err = h.svc.CancelAccount(ctx, brand, account.AccountID)
	require.ErrorIs(t, err, domain.ErrAccountFrozen)

	// Reads stay available for investigation.
	_, err = h.svc.GetBalance(ctx, brand, account.AccountID)
	require.NoError(t, err)
}

func TestRankCampaigns(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.RankCampaigns(ctx, creator, matchingProfile(), nil, 5)
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	scores, err := h.svc.RankCampaigns(ctx, creator, matchingProfile(), matchingCampaigns(), 1)
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, "cmp_video", scores[0].CampaignID)
}
