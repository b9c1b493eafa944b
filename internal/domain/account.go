package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusCompleted AccountStatus = "completed"
	AccountStatusDisputed  AccountStatus = "disputed"
	AccountStatusCancelled AccountStatus = "cancelled"
)

type MilestoneSpec struct {
	Title            string
	Description      string
	Amount           decimal.Decimal
	DueDate          *time.Time
	Deliverables     []string
	ApprovalRequired bool
}

type AccountSpec struct {
	CampaignID string
	PayerID    string
	PayeeID    string
	Currency   Currency
	// Total is optional; when present it must equal the sum of milestone amounts.
	Total      *decimal.Decimal
	Milestones []MilestoneSpec
}

type EscrowAccount struct {
	AccountID    string
	CampaignID   string
	PayerID      string
	PayeeID      string
	Currency     Currency
	Total        decimal.Decimal
	Held         decimal.Decimal
	Released     decimal.Decimal
	Refunded     decimal.Decimal
	Status       AccountStatus
	Frozen       bool
	FrozenReason string
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ClosedAt     *time.Time
	Milestones   []Milestone
}

type Balance struct {
	AccountID string
	Currency  Currency
	Total     decimal.Decimal
	Held      decimal.Decimal
	Released  decimal.Decimal
	Refunded  decimal.Decimal
}

// NewEscrowAccount validates the requested milestones and allocates the held funds.
// Nothing is returned unless every check passes.
func NewEscrowAccount(spec AccountSpec, newID func() string, now time.Time) (EscrowAccount, error) {
	spec.CampaignID = strings.TrimSpace(spec.CampaignID)
	spec.PayerID = strings.TrimSpace(spec.PayerID)
	spec.PayeeID = strings.TrimSpace(spec.PayeeID)
	if spec.PayerID == "" || spec.PayeeID == "" {
		return EscrowAccount{}, fmt.Errorf("%w: payer and payee are required", ErrInvalidSpec)
	}
	if spec.PayerID == spec.PayeeID {
		return EscrowAccount{}, fmt.Errorf("%w: payer and payee must differ", ErrInvalidSpec)
	}
	currency, err := ParseCurrency(string(spec.Currency))
	if err != nil {
		return EscrowAccount{}, err
	}
	if len(spec.Milestones) == 0 {
		return EscrowAccount{}, fmt.Errorf("%w: at least one milestone is required", ErrInvalidSpec)
	}

	accountID := newID()
	total := decimal.Zero
	milestones := make([]Milestone, 0, len(spec.Milestones))
	for i, ms := range spec.Milestones {
		title := strings.TrimSpace(ms.Title)
		if title == "" {
			return EscrowAccount{}, fmt.Errorf("%w: milestone %d has no title", ErrInvalidSpec, i+1)
		}
		if err := ValidateAmount(ms.Amount); err != nil {
			return EscrowAccount{}, fmt.Errorf("milestone %d: %w", i+1, err)
		}
		total = total.Add(ms.Amount)
		milestones = append(milestones, Milestone{
			MilestoneID:      newID(),
			AccountID:        accountID,
			Position:         i + 1,
			Title:            title,
			Description:      strings.TrimSpace(ms.Description),
			Amount:           ms.Amount,
			DueDate:          ms.DueDate,
			Deliverables:     append([]string(nil), ms.Deliverables...),
			ApprovalRequired: ms.ApprovalRequired,
			Status:           MilestoneStatusPending,
		})
	}
	if spec.Total != nil && !spec.Total.Equal(total) {
		return EscrowAccount{}, fmt.Errorf("%w: milestone amounts sum to %s, declared total is %s", ErrInvalidSpec, total, spec.Total)
	}

	return EscrowAccount{
		AccountID:  accountID,
		CampaignID: spec.CampaignID,
		PayerID:    spec.PayerID,
		PayeeID:    spec.PayeeID,
		Currency:   currency,
		Total:      total,
		Held:       total,
		Released:   decimal.Zero,
		Refunded:   decimal.Zero,
		Status:     AccountStatusActive,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
		Milestones: milestones,
	}, nil
}

func (a *EscrowAccount) Milestone(milestoneID string) (*Milestone, error) {
	for i := range a.Milestones {
		if a.Milestones[i].MilestoneID == milestoneID {
			return &a.Milestones[i], nil
		}
	}
	return nil, fmt.Errorf("%w: milestone %s", ErrNotFound, milestoneID)
}

func (a EscrowAccount) Balance() Balance {
	return Balance{
		AccountID: a.AccountID,
		Currency:  a.Currency,
		Total:     a.Total,
		Held:      a.Held,
		Released:  a.Released,
		Refunded:  a.Refunded,
	}
}

// EnsureMutable rejects mutations on accounts frozen after an invariant violation.
func (a EscrowAccount) EnsureMutable() error {
	if a.Frozen {
		return fmt.Errorf("%w: %w: account %s", ErrAccountFrozen, ErrInvariantViolation, a.AccountID)
	}
	return nil
}

// Release moves amount from held to released.
func (a *EscrowAccount) Release(amount decimal.Decimal) error {
	if !amount.IsPositive() || amount.GreaterThan(a.Held) {
		return fmt.Errorf("%w: release of %s exceeds held %s on account %s", ErrInvariantViolation, amount, a.Held, a.AccountID)
	}
	a.Held = a.Held.Sub(amount)
	a.Released = a.Released.Add(amount)
	return nil
}

// Refund returns amount from held to the payer.
func (a *EscrowAccount) Refund(amount decimal.Decimal) error {
	if !amount.IsPositive() || amount.GreaterThan(a.Held) {
		return fmt.Errorf("%w: refund of %s exceeds held %s on account %s", ErrInvariantViolation, amount, a.Held, a.AccountID)
	}
	a.Held = a.Held.Sub(amount)
	a.Refunded = a.Refunded.Add(amount)
	return nil
}

// CheckInvariant verifies conservation of funds and that held equals the sum
// of milestones whose money has not moved yet.
func (a EscrowAccount) CheckInvariant() error {
	if a.Held.IsNegative() || a.Released.IsNegative() || a.Refunded.IsNegative() {
		return fmt.Errorf("%w: negative balance on account %s", ErrInvariantViolation, a.AccountID)
	}
	if sum := a.Held.Add(a.Released).Add(a.Refunded); !sum.Equal(a.Total) {
		return fmt.Errorf("%w: held %s + released %s + refunded %s != total %s on account %s",
			ErrInvariantViolation, a.Held, a.Released, a.Refunded, a.Total, a.AccountID)
	}
	outstanding := decimal.Zero
	for _, m := range a.Milestones {
		if !m.Status.IsTerminal() {
			outstanding = outstanding.Add(m.Amount)
		}
	}
	if !outstanding.Equal(a.Held) {
		return fmt.Errorf("%w: held %s does not match outstanding milestones %s on account %s",
			ErrInvariantViolation, a.Held, outstanding, a.AccountID)
	}
	return nil
}

// RefreshStatus derives the account status from its milestones.
func (a *EscrowAccount) RefreshStatus(now time.Time) {
	if a.Status == AccountStatusCancelled {
		return
	}
	disputed := false
	allTerminal := true
	anyCancelled := false
	for _, m := range a.Milestones {
		switch {
		case m.Status == MilestoneStatusDisputed:
			disputed = true
		case m.Status == MilestoneStatusReleasing && m.Pending != nil && m.Pending.DisputeID != "":
			disputed = true
		case m.Status == MilestoneStatusCancelled:
			anyCancelled = true
		}
		if !m.Status.IsTerminal() {
			allTerminal = false
		}
	}
	switch {
	case disputed:
		a.Status = AccountStatusDisputed
	case allTerminal && anyCancelled:
		a.Status = AccountStatusCancelled
	case allTerminal:
		a.Status = AccountStatusCompleted
	default:
		a.Status = AccountStatusActive
	}
	if allTerminal && a.ClosedAt == nil {
		at := now
		a.ClosedAt = &at
	}
	a.UpdatedAt = now
}

func (a EscrowAccount) HasSettlementInFlight() bool {
	for _, m := range a.Milestones {
		if m.Status == MilestoneStatusReleasing {
			return true
		}
	}
	return false
}
