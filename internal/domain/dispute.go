package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type DisputeStatus string

const (
	DisputeStatusOpen      DisputeStatus = "open"
	DisputeStatusResolving DisputeStatus = "resolving"
	DisputeStatusResolved  DisputeStatus = "resolved"
)

type OutcomeKind string

const (
	OutcomeReleased OutcomeKind = "released"
	OutcomeRefunded OutcomeKind = "refunded"
	OutcomeSplit    OutcomeKind = "split"
)

// SplitRatioPlaces is the precision a split ratio is stored with.
const SplitRatioPlaces = 6

// Outcome is the arbiter's decision. PayeeRatio is only meaningful for splits
// and is the share of the milestone amount paid to the payee.
type Outcome struct {
	Kind       OutcomeKind
	PayeeRatio decimal.Decimal
}

func ParseOutcome(kind string, ratio *decimal.Decimal) (Outcome, error) {
	switch OutcomeKind(strings.ToLower(strings.TrimSpace(kind))) {
	case OutcomeReleased:
		return Outcome{Kind: OutcomeReleased}, nil
	case OutcomeRefunded:
		return Outcome{Kind: OutcomeRefunded}, nil
	case OutcomeSplit:
		if ratio == nil {
			return Outcome{}, fmt.Errorf("%w: split outcome requires a ratio", ErrInvalidInput)
		}
		if !ratio.IsPositive() || !ratio.LessThan(decimal.NewFromInt(1)) {
			return Outcome{}, fmt.Errorf("%w: split ratio must be between 0 and 1 exclusive", ErrInvalidInput)
		}
		if !ratio.Equal(ratio.Truncate(SplitRatioPlaces)) {
			return Outcome{}, fmt.Errorf("%w: split ratio allows at most %d decimal places", ErrInvalidInput, SplitRatioPlaces)
		}
		return Outcome{Kind: OutcomeSplit, PayeeRatio: ratio.Truncate(SplitRatioPlaces)}, nil
	default:
		return Outcome{}, fmt.Errorf("%w: unknown dispute outcome %q", ErrInvalidInput, kind)
	}
}

// Allocate splits amount between payee and payer. The two parts always sum to amount.
func (o Outcome) Allocate(amount decimal.Decimal) (payee, payer decimal.Decimal) {
	switch o.Kind {
	case OutcomeReleased:
		return amount, decimal.Zero
	case OutcomeRefunded:
		return decimal.Zero, amount
	default:
		payee = amount.Mul(o.PayeeRatio).Round(MinorUnits)
		return payee, amount.Sub(payee)
	}
}

func (o Outcome) TargetStatus() MilestoneStatus {
	switch o.Kind {
	case OutcomeReleased:
		return MilestoneStatusCompleted
	case OutcomeRefunded:
		return MilestoneStatusRefunded
	default:
		return MilestoneStatusPartiallyResolved
	}
}

type Dispute struct {
	DisputeID   string
	AccountID   string
	MilestoneID string
	Reason      string
	RaisedBy    string
	Status      DisputeStatus
	Outcome     *Outcome
	ResolvedBy  string
	OpenedAt    time.Time
	ResolvedAt  *time.Time
}

func NewDispute(id, accountID, milestoneID, reason, raisedBy string, now time.Time) (Dispute, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Dispute{}, fmt.Errorf("%w: dispute reason is required", ErrInvalidInput)
	}
	return Dispute{
		DisputeID:   id,
		AccountID:   accountID,
		MilestoneID: milestoneID,
		Reason:      reason,
		RaisedBy:    raisedBy,
		Status:      DisputeStatusOpen,
		OpenedAt:    now,
	}, nil
}

// BeginResolution fixes the outcome. Once an outcome is recorded the dispute
// cannot be resolved again, even while the settlement is still in flight.
func (d *Dispute) BeginResolution(outcome Outcome, by string) error {
	if d.Status != DisputeStatusOpen {
		return fmt.Errorf("%w: dispute %s is %s", ErrAlreadyResolved, d.DisputeID, d.Status)
	}
	o := outcome
	d.Outcome = &o
	d.ResolvedBy = by
	d.Status = DisputeStatusResolving
	return nil
}

func (d *Dispute) CompleteResolution(now time.Time) {
	at := now
	d.Status = DisputeStatusResolved
	d.ResolvedAt = &at
}

// ReopenAfterFailedSettlement clears an outcome whose transfers were declined.
func (d *Dispute) ReopenAfterFailedSettlement() {
	d.Status = DisputeStatusOpen
	d.Outcome = nil
	d.ResolvedBy = ""
}
