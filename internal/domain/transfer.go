package domain

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"
)

type TransferDirection string

const (
	TransferToPayee TransferDirection = "payee"
	TransferToPayer TransferDirection = "payer"
)

type TransferKind string

const (
	TransferKindRelease            TransferKind = "release"
	TransferKindDisputePayout      TransferKind = "dispute_payout"
	TransferKindDisputeRefund      TransferKind = "dispute_refund"
	TransferKindCancellationRefund TransferKind = "cancellation_refund"
)

// TransferRequest is one leg of a settlement as handed to the payment collaborator.
type TransferRequest struct {
	AccountID      string
	MilestoneID    string
	Direction      TransferDirection
	Kind           TransferKind
	Amount         decimal.Decimal
	Currency       Currency
	FromParty      string
	ToParty        string
	IdempotencyKey string
}

// TransferRecord is the immutable proof that a leg settled.
type TransferRecord struct {
	TransferID     string
	AccountID      string
	MilestoneID    string
	Direction      TransferDirection
	Kind           TransferKind
	Amount         decimal.Decimal
	Currency       Currency
	IdempotencyKey string
	ProcessorRef   string
	Fees           FeeBreakdown
	CompletedAt    time.Time
}

// TransferIdempotencyKey is stable for a given account, milestone and
// direction, so any retry of the same leg reaches the processor with the same key.
func TransferIdempotencyKey(accountID, milestoneID string, direction TransferDirection) string {
	sum := blake2b.Sum256([]byte(accountID + "\x00" + milestoneID + "\x00" + string(direction)))
	return "esc_" + hex.EncodeToString(sum[:16])
}

// SettlementLegs expands a pending settlement into its non-zero transfer legs.
func SettlementLegs(account EscrowAccount, milestone Milestone) ([]TransferRequest, error) {
	if milestone.Pending == nil {
		return nil, fmt.Errorf("%w: milestone %s has no pending settlement", ErrInvalidTransition, milestone.MilestoneID)
	}
	plan := milestone.Pending
	escrowParty := "escrow:" + account.AccountID
	legs := make([]TransferRequest, 0, 2)
	if plan.PayeeAmount.IsPositive() {
		kind := TransferKindRelease
		if plan.DisputeID != "" {
			kind = TransferKindDisputePayout
		}
		legs = append(legs, TransferRequest{
			AccountID:      account.AccountID,
			MilestoneID:    milestone.MilestoneID,
			Direction:      TransferToPayee,
			Kind:           kind,
			Amount:         plan.PayeeAmount,
			Currency:       account.Currency,
			FromParty:      escrowParty,
			ToParty:        account.PayeeID,
			IdempotencyKey: TransferIdempotencyKey(account.AccountID, milestone.MilestoneID, TransferToPayee),
		})
	}
	if plan.PayerAmount.IsPositive() {
		kind := TransferKindDisputeRefund
		if plan.Target == MilestoneStatusCancelled {
			kind = TransferKindCancellationRefund
		}
		legs = append(legs, TransferRequest{
			AccountID:      account.AccountID,
			MilestoneID:    milestone.MilestoneID,
			Direction:      TransferToPayer,
			Kind:           kind,
			Amount:         plan.PayerAmount,
			Currency:       account.Currency,
			FromParty:      escrowParty,
			ToParty:        account.PayerID,
			IdempotencyKey: TransferIdempotencyKey(account.AccountID, milestone.MilestoneID, TransferToPayer),
		})
	}
	return legs, nil
}
