package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/viralforge/escrow-milestone-ledger/internal/domain"
	"github.com/viralforge/escrow-milestone-ledger/internal/ports"
)

// RetryPolicy bounds how long a single transfer leg may be retried before its
// outcome is declared failed or indeterminate.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 4
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 200 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 5 * time.Second
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = 10 * time.Second
	}
	return p
}

// LegBudget is the longest one leg can take with every attempt timing out.
func (p RetryPolicy) LegBudget() time.Duration {
	p = p.withDefaults()
	return time.Duration(p.MaxAttempts)*p.AttemptTimeout + time.Duration(p.MaxAttempts-1)*p.MaxBackoff
}

type TransferExecutor struct {
	processor ports.PaymentProcessor
	transfers ports.LedgerReader
	policy    RetryPolicy
	fees      domain.FeeSchedule
	metrics   ports.SettlementMetrics
	logger    *slog.Logger
	nowFn     func() time.Time
}

func NewTransferExecutor(processor ports.PaymentProcessor, transfers ports.LedgerReader, policy RetryPolicy, fees domain.FeeSchedule, metrics ports.SettlementMetrics, logger *slog.Logger, nowFn func() time.Time) *TransferExecutor {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &TransferExecutor{
		processor: processor,
		transfers: transfers,
		policy:    policy.withDefaults(),
		fees:      fees,
		metrics:   metrics,
		logger:    logger,
		nowFn:     nowFn,
	}
}

// Execute performs one transfer leg. A leg already recorded under the same
// idempotency key is returned as is and the processor is not contacted. The
// returned record is not persisted; committing it is the caller's job.
//
// ErrTransferFailed is returned only when the first answer for the key was a
// decline. Once any attempt ended without an answer, every non-success is
// ErrTransferIndeterminate.
func (e *TransferExecutor) Execute(ctx context.Context, req domain.TransferRequest) (domain.TransferRecord, error) {
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = domain.TransferIdempotencyKey(req.AccountID, req.MilestoneID, req.Direction)
	}
	if !req.Amount.IsPositive() {
		return domain.TransferRecord{}, fmt.Errorf("%w: transfer amount must be positive", domain.ErrInvalidInput)
	}
	if e.transfers != nil {
		existing, err := e.transfers.GetTransferByKey(ctx, req.IdempotencyKey)
		if err != nil {
			return domain.TransferRecord{}, err
		}
		if existing != nil {
			return *existing, nil
		}
	}
	if e.processor == nil {
		return domain.TransferRecord{}, fmt.Errorf("%w: no payment processor configured", domain.ErrTransferFailed)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.policy.InitialBackoff
	b.MaxInterval = e.policy.MaxBackoff
	b.Multiplier = 2

	outcomeUnknown := false
	attempt := 0
	operation := func() (ports.PaymentResult, error) {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, e.policy.AttemptTimeout)
		defer cancel()
		start := time.Now()
		res, err := e.processor.Transfer(attemptCtx, req)
		elapsed := time.Since(start)
		switch {
		case err != nil:
			outcomeUnknown = true
			e.metrics.ObserveTransferAttempt(string(req.Direction), "unknown", elapsed)
			e.logger.WarnContext(ctx, "transfer attempt outcome unknown",
				"module", "application.transfer_executor",
				"layer", "application",
				"operation", "execute",
				"outcome", "unknown",
				"attempt", attempt,
				"idempotency_key", req.IdempotencyKey,
				"error", err,
			)
			return res, err
		case res.Status == ports.PaymentSucceeded:
			e.metrics.ObserveTransferAttempt(string(req.Direction), "succeeded", elapsed)
			return res, nil
		default:
			e.metrics.ObserveTransferAttempt(string(req.Direction), "declined", elapsed)
			if outcomeUnknown {
				// An earlier attempt under this key may still settle, so a
				// later decline proves nothing about it.
				return res, backoff.Permanent(fmt.Errorf("declined after unknown attempt: %s", res.Reason))
			}
			return res, backoff.Permanent(fmt.Errorf("%w: %s", domain.ErrTransferFailed, res.Reason))
		}
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(e.policy.MaxAttempts)),
	)
	if err != nil {
		if outcomeUnknown {
			return domain.TransferRecord{}, fmt.Errorf("%w: key %s after %d attempts: %v", domain.ErrTransferIndeterminate, req.IdempotencyKey, attempt, err)
		}
		if errors.Is(err, domain.ErrTransferFailed) {
			return domain.TransferRecord{}, err
		}
		return domain.TransferRecord{}, fmt.Errorf("%w: %v", domain.ErrTransferFailed, err)
	}

	return domain.TransferRecord{
		TransferID:     uuid.NewString(),
		AccountID:      req.AccountID,
		MilestoneID:    req.MilestoneID,
		Direction:      req.Direction,
		Kind:           req.Kind,
		Amount:         req.Amount,
		Currency:       req.Currency,
		IdempotencyKey: req.IdempotencyKey,
		ProcessorRef:   res.ProcessorRef,
		Fees:           e.fees.Apply(req.Amount),
		CompletedAt:    e.nowFn(),
	}, nil
}
