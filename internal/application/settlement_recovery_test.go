package application_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viralforge/escrow-milestone-ledger/internal/adapters/payments"
	"github.com/viralforge/escrow-milestone-ledger/internal/application"
	"github.com/viralforge/escrow-milestone-ledger/internal/domain"
	"github.com/viralforge/escrow-milestone-ledger/internal/ports"
)

// afterTransfer runs a hook once the wrapped processor has answered.
type afterTransfer struct {
	next ports.PaymentProcessor
	mu   sync.Mutex
	hook func()
}

func (p *afterTransfer) Transfer(ctx context.Context, req domain.TransferRequest) (ports.PaymentResult, error) {
	res, err := p.next.Transfer(ctx, req)
	p.mu.Lock()
	hook := p.hook
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
	return res, err
}

func (p *afterTransfer) setHook(hook func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hook = hook
}

// failingLocker refuses locks while armed.
type failingLocker struct {
	next  ports.AccountLocker
	armed atomic.Bool
}

func (l *failingLocker) Lock(ctx context.Context, accountID string) (func(), error) {
	if l.armed.Load() {
		return nil, errors.New("lock service unavailable")
	}
	return l.next.Lock(ctx, accountID)
}

// slowThenBusy never answers the first call for a key within the attempt
// timeout and reports later calls as still in progress, like a processor
// whose first request is still running.
type slowThenBusy struct {
	mu          sync.Mutex
	calls       map[string]int
	declineLate bool
}

func (p *slowThenBusy) Transfer(ctx context.Context, req domain.TransferRequest) (ports.PaymentResult, error) {
	p.mu.Lock()
	p.calls[req.IdempotencyKey]++
	n := p.calls[req.IdempotencyKey]
	p.mu.Unlock()
	if n == 1 {
		<-ctx.Done()
		return ports.PaymentResult{}, fmt.Errorf("processor transfer: %w", ctx.Err())
	}
	if p.declineLate {
		return ports.PaymentResult{Status: ports.PaymentDeclined, Reason: "duplicate request"}, nil
	}
	return ports.PaymentResult{}, fmt.Errorf("processor transfer: %w", payments.ErrTransferInProgress)
}

func TestApprove_CallerCancellationDoesNotStrandSettlement(t *testing.T) {
	wrapper := &afterTransfer{}
	h := newHarness(t, withProcessor(func(next ports.PaymentProcessor) ports.PaymentProcessor {
		wrapper.next = next
		return wrapper
	}))
	account := h.createAccount(t, "idem-cancelled-caller", true)
	first := account.Milestones[0].MilestoneID
	h.startAndSubmit(t, account.AccountID, first)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wrapper.setHook(cancel)

	settled, err := h.svc.Approve(ctx, brand, account.AccountID, first)
	require.NoError(t, err)
	require.Error(t, ctx.Err())

	m, err := settled.Milestone(first)
	require.NoError(t, err)
	assert.Equal(t, domain.MilestoneStatusCompleted, m.Status)
	requireBalances(t, h.account(t, account.AccountID), "2000", "1000", "0")
	transfers, err := h.svc.ListTransfers(context.Background(), admin, account.AccountID)
	require.NoError(t, err)
	assert.Len(t, transfers, 1)
	assert.Empty(t, h.reconciliations(t))
}

func TestApprove_CommitFailureAfterPaymentIsQueued(t *testing.T) {
	wrapper := &afterTransfer{}
	locker := &failingLocker{}
	h := newHarness(t,
		withProcessor(func(next ports.PaymentProcessor) ports.PaymentProcessor {
			wrapper.next = next
			return wrapper
		}),
		withLocker(func(next ports.AccountLocker) ports.AccountLocker {
			locker.next = next
			return locker
		}),
	)
	ctx := context.Background()
	account := h.createAccount(t, "idem-commit-failure", true)
	first := account.Milestones[0].MilestoneID
	h.startAndSubmit(t, account.AccountID, first)
	wrapper.setHook(func() { locker.armed.Store(true) })

	_, err := h.svc.Approve(ctx, brand, account.AccountID, first)
	require.ErrorIs(t, err, domain.ErrTransferIndeterminate)

	transferKey := domain.TransferIdempotencyKey(account.AccountID, first, domain.TransferToPayee)
	paid, ok := h.processor.Settled(transferKey)
	require.True(t, ok)
	requireBalances(t, h.account(t, account.AccountID), "3000", "0", "0")
	assert.Equal(t, domain.MilestoneStatusReleasing, h.milestone(t, account.AccountID, first).Status)

	tasks := h.reconciliations(t)
	require.Len(t, tasks, 1)
	assert.Equal(t, first, tasks[0].MilestoneID)
	assert.Equal(t, paid.ProcessorRef, tasks[0].ProcessorRefs[transferKey])
	assert.Contains(t, h.eventTypes(t), domain.EventEscrowTransferIndeterminate)

	wrapper.setHook(nil)
	locker.armed.Store(false)
	_, err = h.svc.ReconcileSettlement(ctx, admin, application.ReconcileInput{
		AccountID:     account.AccountID,
		MilestoneID:   first,
		Action:        application.ReconcileConfirmSucceeded,
		ProcessorRefs: tasks[0].ProcessorRefs,
	})
	require.NoError(t, err)
	requireBalances(t, h.account(t, account.AccountID), "2000", "1000", "0")
	assert.Empty(t, h.reconciliations(t))
	assert.Equal(t, 1, h.processor.Calls(transferKey))
}

func TestResolveDispute_BusyKeyAfterTimeoutIsIndeterminate(t *testing.T) {
	processor := &slowThenBusy{calls: map[string]int{}}
	h := newHarness(t,
		withAttemptTimeout(20*time.Millisecond),
		withProcessor(func(ports.PaymentProcessor) ports.PaymentProcessor { return processor }),
	)
	ctx := context.Background()
	account, dispute := disputedAccount(t, h, "idem-busy-key")

	_, err := h.svc.ResolveDispute(ctx, admin, application.ResolveDisputeInput{DisputeID: dispute.DisputeID, Outcome: "released"})
	require.ErrorIs(t, err, domain.ErrTransferIndeterminate)
	require.NotErrorIs(t, err, domain.ErrTransferFailed)

	// The first request may still pay the creator, so the dispute stays
	// closed to a contrary resolution.
	_, err = h.svc.ResolveDispute(ctx, admin, application.ResolveDisputeInput{DisputeID: dispute.DisputeID, Outcome: "refunded"})
	require.ErrorIs(t, err, domain.ErrAlreadyResolved)
	got, err := h.svc.GetDispute(ctx, admin, dispute.DisputeID)
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeStatusResolving, got.Status)
	assert.Equal(t, domain.MilestoneStatusReleasing, h.milestone(t, account.AccountID, dispute.MilestoneID).Status)
	requireBalances(t, h.account(t, account.AccountID), "3000", "0", "0")
	assert.Len(t, h.reconciliations(t), 1)
}

func TestTransferExecutor_UnknownOutcomeIsNeverDowngraded(t *testing.T) {
	req := domain.TransferRequest{
		AccountID:   "acc_1",
		MilestoneID: "ms_1",
		Direction:   domain.TransferToPayee,
		Kind:        domain.TransferKindRelease,
		Amount:      amount("1000"),
		Currency:    domain.CurrencyUSD,
		FromParty:   "escrow:acc_1",
		ToParty:     "creator_1",
	}
	policy := application.RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, AttemptTimeout: 20 * time.Millisecond}

	cases := []struct {
		name        string
		declineLate bool
		wantCalls   int
	}{
		{name: "in progress after timeout", declineLate: false, wantCalls: 3},
		{name: "decline after timeout", declineLate: true, wantCalls: 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			processor := &slowThenBusy{calls: map[string]int{}, declineLate: tc.declineLate}
			executor := application.NewTransferExecutor(processor, nil, policy, domain.DefaultFeeSchedule(), nil, nil, nil)

			_, err := executor.Execute(context.Background(), req)
			require.ErrorIs(t, err, domain.ErrTransferIndeterminate)
			require.NotErrorIs(t, err, domain.ErrTransferFailed)
			key := domain.TransferIdempotencyKey(req.AccountID, req.MilestoneID, req.Direction)
			assert.Equal(t, tc.wantCalls, processor.calls[key])
		})
	}
}

func TestTransferExecutor_FirstDeclineIsDefinitive(t *testing.T) {
	processor := payments.NewSandboxProcessor()
	processor.DeclineTransfersTo("creator_1", "account closed")
	executor := application.NewTransferExecutor(processor, nil, application.RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond}, domain.DefaultFeeSchedule(), nil, nil, nil)

	_, err := executor.Execute(context.Background(), domain.TransferRequest{
		AccountID: "acc_1", MilestoneID: "ms_1", Direction: domain.TransferToPayee, Kind: domain.TransferKindRelease,
		Amount: amount("10"), Currency: domain.CurrencyUSD, FromParty: "escrow:acc_1", ToParty: "creator_1",
	})
	require.ErrorIs(t, err, domain.ErrTransferFailed)
	key := domain.TransferIdempotencyKey("acc_1", "ms_1", domain.TransferToPayee)
	assert.Equal(t, 1, processor.Calls(key))
}

func TestSweepStalledSettlements_QueuesOrphanedReleasing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := h.createAccount(t, "idem-sweep", true)
	first := account.Milestones[0].MilestoneID
	second := account.Milestones[1].MilestoneID
	h.startAndSubmit(t, account.AccountID, first)
	h.startAndSubmit(t, account.AccountID, second)

	// A process died after persisting releasing: nothing was queued.
	orphan := func(milestoneID, payee string, startedAt time.Time) {
		require.NoError(t, h.db.Exec(`UPDATE escrow_milestones
			SET status = ?, pending_prior_status = ?, pending_target = ?, pending_payee_amount = ?,
			    pending_payer_amount = ?, pending_started_at = ?
			WHERE milestone_id = ?`,
			string(domain.MilestoneStatusReleasing), string(domain.MilestoneStatusInProgress), string(domain.MilestoneStatusCompleted),
			payee, "0", startedAt.UTC(), milestoneID).Error)
	}
	orphan(first, "1000", time.Now().Add(-2*time.Hour))
	orphan(second, "2000", time.Now())

	swept, err := h.svc.SweepStalledSettlements(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)
	tasks := h.reconciliations(t)
	require.Len(t, tasks, 1)
	assert.Equal(t, first, tasks[0].MilestoneID)
	assert.Equal(t, []string{domain.TransferIdempotencyKey(account.AccountID, first, domain.TransferToPayee)}, tasks[0].TransferKeys)
	assert.Contains(t, h.eventTypes(t), domain.EventEscrowTransferIndeterminate)

	swept, err = h.svc.SweepStalledSettlements(ctx)
	require.NoError(t, err)
	assert.Zero(t, swept)

	_, err = h.svc.ReconcileSettlement(ctx, admin, application.ReconcileInput{AccountID: account.AccountID, MilestoneID: first, Action: application.ReconcileRetry})
	require.NoError(t, err)
	assert.Equal(t, domain.MilestoneStatusCompleted, h.milestone(t, account.AccountID, first).Status)
	assert.Empty(t, h.reconciliations(t))
}
