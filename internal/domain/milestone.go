package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type MilestoneStatus string

const (
	MilestoneStatusPending           MilestoneStatus = "pending"
	MilestoneStatusInProgress        MilestoneStatus = "in_progress"
	MilestoneStatusReleasing         MilestoneStatus = "releasing"
	MilestoneStatusDisputed          MilestoneStatus = "disputed"
	MilestoneStatusCompleted         MilestoneStatus = "completed"
	MilestoneStatusRefunded          MilestoneStatus = "refunded"
	MilestoneStatusPartiallyResolved MilestoneStatus = "partially_resolved"
	MilestoneStatusCancelled         MilestoneStatus = "cancelled"
)

func (s MilestoneStatus) IsTerminal() bool {
	switch s {
	case MilestoneStatusCompleted, MilestoneStatusRefunded, MilestoneStatusPartiallyResolved, MilestoneStatusCancelled:
		return true
	default:
		return false
	}
}

// settlementSources lists, per settlement target, the statuses a milestone may
// leave when money starts moving.
var settlementSources = map[MilestoneStatus][]MilestoneStatus{
	MilestoneStatusCompleted:         {MilestoneStatusInProgress, MilestoneStatusDisputed},
	MilestoneStatusRefunded:          {MilestoneStatusDisputed},
	MilestoneStatusPartiallyResolved: {MilestoneStatusDisputed},
	MilestoneStatusCancelled:         {MilestoneStatusPending, MilestoneStatusInProgress},
}

// PendingSettlement is the persisted plan of a milestone in the releasing
// sub-state. It survives restarts so the settlement can be retried or
// reconciled with the same transfer idempotency keys.
type PendingSettlement struct {
	PriorStatus MilestoneStatus
	Target      MilestoneStatus
	PayeeAmount decimal.Decimal
	PayerAmount decimal.Decimal
	DisputeID   string
	StartedAt   time.Time
}

type Milestone struct {
	MilestoneID      string
	AccountID        string
	Position         int
	Title            string
	Description      string
	Amount           decimal.Decimal
	DueDate          *time.Time
	Deliverables     []string
	ApprovalRequired bool
	Status           MilestoneStatus
	SubmittedAt      *time.Time
	SubmittedBy      string
	ApprovedAt       *time.Time
	ApprovedBy       string
	SettledAt        *time.Time
	Pending          *PendingSettlement
}

func (m *Milestone) StartWork() error {
	if m.Status != MilestoneStatusPending {
		return transitionError(m, "start work")
	}
	m.Status = MilestoneStatusInProgress
	return nil
}

// Submit records that deliverables were handed over. The status is unchanged.
func (m *Milestone) Submit(by string, now time.Time) error {
	if m.Status != MilestoneStatusInProgress {
		return transitionError(m, "submit")
	}
	at := now
	m.SubmittedAt = &at
	m.SubmittedBy = by
	return nil
}

// CheckApprovable reports whether an approval may move the milestone to completed.
func (m *Milestone) CheckApprovable() error {
	if m.Status != MilestoneStatusInProgress {
		return transitionError(m, "approve")
	}
	if m.ApprovalRequired && m.SubmittedAt == nil {
		return fmt.Errorf("%w: milestone %s", ErrNotSubmitted, m.MilestoneID)
	}
	return nil
}

func (m *Milestone) MarkApproved(by string, now time.Time) {
	at := now
	m.ApprovedAt = &at
	m.ApprovedBy = by
}

func (m *Milestone) OpenDispute() error {
	if m.Status != MilestoneStatusInProgress {
		return transitionError(m, "dispute")
	}
	m.Status = MilestoneStatusDisputed
	return nil
}

// BeginSettlement moves the milestone into the releasing sub-state. The two
// legs must add up to the milestone amount exactly.
func (m *Milestone) BeginSettlement(target MilestoneStatus, payee, payer decimal.Decimal, disputeID string, now time.Time) error {
	sources, ok := settlementSources[target]
	if !ok {
		return fmt.Errorf("%w: %s is not a settlement target", ErrInvalidTransition, target)
	}
	allowed := false
	for _, s := range sources {
		if s == m.Status {
			allowed = true
			break
		}
	}
	if !allowed {
		return transitionError(m, "settle to "+string(target))
	}
	if payee.IsNegative() || payer.IsNegative() || !payee.Add(payer).Equal(m.Amount) {
		return fmt.Errorf("%w: settlement legs %s + %s do not match milestone amount %s", ErrInvariantViolation, payee, payer, m.Amount)
	}
	m.Pending = &PendingSettlement{
		PriorStatus: m.Status,
		Target:      target,
		PayeeAmount: payee,
		PayerAmount: payer,
		DisputeID:   disputeID,
		StartedAt:   now,
	}
	m.Status = MilestoneStatusReleasing
	return nil
}

// CompleteSettlement finalizes a releasing milestone and returns the plan it applied.
func (m *Milestone) CompleteSettlement(now time.Time) (PendingSettlement, error) {
	if m.Status != MilestoneStatusReleasing || m.Pending == nil {
		return PendingSettlement{}, transitionError(m, "complete settlement")
	}
	plan := *m.Pending
	at := now
	m.Status = plan.Target
	m.SettledAt = &at
	m.Pending = nil
	return plan, nil
}

// AbortSettlement restores the status held before the settlement began.
func (m *Milestone) AbortSettlement() (PendingSettlement, error) {
	if m.Status != MilestoneStatusReleasing || m.Pending == nil {
		return PendingSettlement{}, transitionError(m, "abort settlement")
	}
	plan := *m.Pending
	m.Status = plan.PriorStatus
	m.Pending = nil
	return plan, nil
}

func transitionError(m *Milestone, action string) error {
	return fmt.Errorf("%w: cannot %s milestone %s in status %s", ErrInvalidTransition, action, m.MilestoneID, m.Status)
}
