package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/escrow-milestone-ledger/internal/contracts"
	"github.com/viralforge/escrow-milestone-ledger/internal/domain"
	"github.com/viralforge/escrow-milestone-ledger/internal/ports"
)

func (s *Service) enqueueEvent(ctx context.Context, tx ports.LedgerTx, eventType, traceID, accountID string, data any, now time.Time) error {
	if !domain.IsCanonicalEmittedEvent(eventType) {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedEvent, eventType)
	}
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	if strings.TrimSpace(traceID) == "" {
		traceID = uuid.NewString()
	}
	env := contracts.EventEnvelope{
		EventID:          uuid.NewString(),
		EventType:        eventType,
		EventClass:       domain.CanonicalEventClass(eventType),
		OccurredAt:       now,
		PartitionKeyPath: domain.CanonicalPartitionKeyPath(eventType),
		PartitionKey:     accountID,
		SourceService:    s.cfg.ServiceName,
		TraceID:          traceID,
		SchemaVersion:    "v1",
		Data:             b,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", eventType, err)
	}
	return tx.EnqueueOutbox(ctx, ports.OutboxRecord{
		RecordID:     env.EventID,
		EventType:    eventType,
		EventClass:   env.EventClass,
		PartitionKey: accountID,
		Payload:      payload,
		CreatedAt:    now,
	})
}

func (s *Service) enqueueAccountCreated(ctx context.Context, tx ports.LedgerTx, actor Actor, account domain.EscrowAccount) error {
	return s.enqueueEvent(ctx, tx, domain.EventEscrowAccountCreated, actor.RequestID, account.AccountID, contracts.AccountCreatedPayload{
		AccountID:      account.AccountID,
		CampaignID:     account.CampaignID,
		PayerID:        account.PayerID,
		PayeeID:        account.PayeeID,
		Currency:       string(account.Currency),
		Total:          account.Total.StringFixed(domain.MinorUnits),
		MilestoneCount: len(account.Milestones),
		CreatedAt:      account.CreatedAt.Format(time.RFC3339),
	}, account.CreatedAt)
}

func (s *Service) enqueueMilestoneProgress(ctx context.Context, tx ports.LedgerTx, actor Actor, eventType string, m domain.Milestone, now time.Time) error {
	return s.enqueueEvent(ctx, tx, eventType, actor.RequestID, m.AccountID, contracts.MilestoneProgressPayload{
		AccountID:   m.AccountID,
		MilestoneID: m.MilestoneID,
		Status:      string(m.Status),
		ActorID:     actor.SubjectID,
		OccurredAt:  now.Format(time.RFC3339),
	}, now)
}

func (s *Service) enqueueMilestoneSettled(ctx context.Context, tx ports.LedgerTx, actor Actor, account domain.EscrowAccount, m domain.Milestone, plan domain.PendingSettlement, now time.Time) error {
	return s.enqueueEvent(ctx, tx, domain.EventEscrowMilestoneSettled, actor.RequestID, account.AccountID, contracts.MilestoneSettledPayload{
		AccountID:   account.AccountID,
		MilestoneID: m.MilestoneID,
		Status:      string(m.Status),
		PayeeAmount: plan.PayeeAmount.StringFixed(domain.MinorUnits),
		PayerAmount: plan.PayerAmount.StringFixed(domain.MinorUnits),
		DisputeID:   plan.DisputeID,
		Held:        account.Held.StringFixed(domain.MinorUnits),
		Released:    account.Released.StringFixed(domain.MinorUnits),
		Refunded:    account.Refunded.StringFixed(domain.MinorUnits),
		SettledAt:   now.Format(time.RFC3339),
	}, now)
}

func (s *Service) enqueueDisputeOpened(ctx context.Context, tx ports.LedgerTx, actor Actor, d domain.Dispute) error {
	return s.enqueueEvent(ctx, tx, domain.EventEscrowDisputeOpened, actor.RequestID, d.AccountID, contracts.DisputeOpenedPayload{
		AccountID:   d.AccountID,
		MilestoneID: d.MilestoneID,
		DisputeID:   d.DisputeID,
		RaisedBy:    d.RaisedBy,
		Reason:      d.Reason,
		OpenedAt:    d.OpenedAt.Format(time.RFC3339),
	}, d.OpenedAt)
}

func (s *Service) enqueueDisputeResolved(ctx context.Context, tx ports.LedgerTx, actor Actor, d domain.Dispute, now time.Time) error {
	payload := contracts.DisputeResolvedPayload{
		AccountID:   d.AccountID,
		MilestoneID: d.MilestoneID,
		DisputeID:   d.DisputeID,
		ResolvedBy:  d.ResolvedBy,
		ResolvedAt:  now.Format(time.RFC3339),
	}
	if d.Outcome != nil {
		payload.Outcome = string(d.Outcome.Kind)
		if d.Outcome.Kind == domain.OutcomeSplit {
			payload.PayeeRatio = d.Outcome.PayeeRatio.String()
		}
	}
	return s.enqueueEvent(ctx, tx, domain.EventEscrowDisputeResolved, actor.RequestID, d.AccountID, payload, now)
}

func (s *Service) enqueueAccountClosed(ctx context.Context, tx ports.LedgerTx, actor Actor, account domain.EscrowAccount, now time.Time) error {
	return s.enqueueEvent(ctx, tx, domain.EventEscrowAccountClosed, actor.RequestID, account.AccountID, contracts.AccountClosedPayload{
		AccountID: account.AccountID,
		Status:    string(account.Status),
		Released:  account.Released.StringFixed(domain.MinorUnits),
		Refunded:  account.Refunded.StringFixed(domain.MinorUnits),
		ClosedAt:  now.Format(time.RFC3339),
	}, now)
}

func (s *Service) enqueueTransferIndeterminate(ctx context.Context, tx ports.LedgerTx, actor Actor, task ports.ReconciliationTask) error {
	return s.enqueueEvent(ctx, tx, domain.EventEscrowTransferIndeterminate, actor.RequestID, task.AccountID, contracts.TransferIndeterminatePayload{
		AccountID:    task.AccountID,
		MilestoneID:  task.MilestoneID,
		TransferKeys: task.TransferKeys,
		Reason:       task.Reason,
		DetectedAt:   task.EnqueuedAt.Format(time.RFC3339),
	}, task.EnqueuedAt)
}

func (s *Service) enqueueInvariantViolated(ctx context.Context, tx ports.LedgerTx, actor Actor, accountID string, cause error) error {
	now := s.nowFn()
	return s.enqueueEvent(ctx, tx, domain.EventEscrowInvariantViolated, actor.RequestID, accountID, contracts.InvariantViolatedPayload{
		AccountID:  accountID,
		Detail:     cause.Error(),
		DetectedAt: now.Format(time.RFC3339),
	}, now)
}
