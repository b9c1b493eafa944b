package application_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/viralforge/escrow-milestone-ledger/internal/adapters/cache"
	"github.com/viralforge/escrow-milestone-ledger/internal/adapters/locks"
	"github.com/viralforge/escrow-milestone-ledger/internal/adapters/payments"
	"github.com/viralforge/escrow-milestone-ledger/internal/adapters/postgres"
	"github.com/viralforge/escrow-milestone-ledger/internal/application"
	"github.com/viralforge/escrow-milestone-ledger/internal/domain"
	"github.com/viralforge/escrow-milestone-ledger/internal/ports"
	"github.com/viralforge/escrow-milestone-ledger/internal/testutil"
	"gorm.io/gorm"
)

var (
	brand   = application.Actor{SubjectID: "brand_1", Role: domain.RoleBrand, RequestID: "req-brand"}
	creator = application.Actor{SubjectID: "creator_1", Role: domain.RoleInfluencer, RequestID: "req-creator"}
	admin   = application.Actor{SubjectID: "ops_1", Role: domain.RoleAdmin, RequestID: "req-admin"}
)

const testMaxAttempts = 3

type harness struct {
	svc       *application.Service
	db        *gorm.DB
	store     *postgres.LedgerStore
	outbox    *postgres.OutboxRepository
	processor *payments.SandboxProcessor
	queue     *cache.MemoryOperatorQueue
}

type harnessOptions struct {
	retry           application.RetryPolicy
	wrapProcessor   func(ports.PaymentProcessor) ports.PaymentProcessor
	wrapLocker      func(ports.AccountLocker) ports.AccountLocker
	wrapIdempotency func(ports.IdempotencyRepository) ports.IdempotencyRepository
}

type harnessOption func(*harnessOptions)

func withProcessor(wrap func(ports.PaymentProcessor) ports.PaymentProcessor) harnessOption {
	return func(o *harnessOptions) { o.wrapProcessor = wrap }
}

func withLocker(wrap func(ports.AccountLocker) ports.AccountLocker) harnessOption {
	return func(o *harnessOptions) { o.wrapLocker = wrap }
}

func withIdempotency(wrap func(ports.IdempotencyRepository) ports.IdempotencyRepository) harnessOption {
	return func(o *harnessOptions) { o.wrapIdempotency = wrap }
}

func withAttemptTimeout(d time.Duration) harnessOption {
	return func(o *harnessOptions) { o.retry.AttemptTimeout = d }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	options := harnessOptions{
		retry: application.RetryPolicy{
			MaxAttempts:    testMaxAttempts,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
			AttemptTimeout: time.Second,
		},
	}
	for _, opt := range opts {
		opt(&options)
	}
	db := testutil.NewTestDB(t, postgres.AllModels()...)
	h := &harness{
		db:        db,
		store:     postgres.NewLedgerStore(db),
		outbox:    postgres.NewOutboxRepository(db),
		processor: payments.NewSandboxProcessor(),
		queue:     cache.NewMemoryOperatorQueue(),
	}
	var processor ports.PaymentProcessor = h.processor
	if options.wrapProcessor != nil {
		processor = options.wrapProcessor(processor)
	}
	var locker ports.AccountLocker = locks.NewLocalAccountLocker()
	if options.wrapLocker != nil {
		locker = options.wrapLocker(locker)
	}
	var idempotency ports.IdempotencyRepository = postgres.NewIdempotencyRepository(db)
	if options.wrapIdempotency != nil {
		idempotency = options.wrapIdempotency(idempotency)
	}
	h.svc = application.NewService(application.Dependencies{
		Config:      application.Config{Retry: options.retry},
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:       h.store,
		Idempotency: idempotency,
		Locker:      locker,
		Processor:   processor,
		Queue:       h.queue,
	})
	return h
}

func amount(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

// createAccount opens the reference escrow: 1000 and 2000 against a total of 3000.
func (h *harness) createAccount(t *testing.T, key string, approvalRequired bool) domain.EscrowAccount {
	t.Helper()
	total := amount("3000")
	actor := brand
	actor.IdempotencyKey = key
	account, err := h.svc.CreateAccount(context.Background(), actor, application.CreateAccountInput{
		CampaignID: "cmp_1",
		PayeeID:    creator.SubjectID,
		Currency:   "USD",
		Total:      &total,
		Milestones: []application.MilestoneInput{
			{Title: "Draft video", Amount: amount("1000"), ApprovalRequired: approvalRequired},
			{Title: "Final video", Amount: amount("2000"), ApprovalRequired: approvalRequired},
		},
	})
	require.NoError(t, err)
	return account
}

// startAndSubmit moves a milestone to in_progress with a submission on record.
func (h *harness) startAndSubmit(t *testing.T, accountID, milestoneID string) {
	t.Helper()
	ctx := context.Background()
	_, err := h.svc.StartWork(ctx, creator, accountID, milestoneID)
	require.NoError(t, err)
	_, err = h.svc.SubmitForApproval(ctx, creator, accountID, milestoneID)
	require.NoError(t, err)
}

func (h *harness) account(t *testing.T, accountID string) domain.EscrowAccount {
	t.Helper()
	account, err := h.store.GetAccount(context.Background(), accountID)
	require.NoError(t, err)
	return account
}

func (h *harness) milestone(t *testing.T, accountID, milestoneID string) domain.Milestone {
	t.Helper()
	account := h.account(t, accountID)
	m, err := account.Milestone(milestoneID)
	require.NoError(t, err)
	return *m
}

func (h *harness) eventTypes(t *testing.T) []string {
	t.Helper()
	records, err := h.outbox.FetchUnpublished(context.Background(), 500)
	require.NoError(t, err)
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.EventType)
	}
	return out
}

func (h *harness) reconciliations(t *testing.T) []ports.ReconciliationTask {
	t.Helper()
	tasks, err := h.queue.List(context.Background())
	require.NoError(t, err)
	return tasks
}

func requireBalances(t *testing.T, account domain.EscrowAccount, held, released, refunded string) {
	t.Helper()
	require.True(t, account.Held.Equal(amount(held)), "held %s, want %s", account.Held, held)
	require.True(t, account.Released.Equal(amount(released)), "released %s, want %s", account.Released, released)
	require.True(t, account.Refunded.Equal(amount(refunded)), "refunded %s, want %s", account.Refunded, refunded)
	require.NoError(t, account.CheckInvariant())
}
