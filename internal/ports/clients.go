package ports

import (
	"context"

	"github.com/viralforge/escrow-milestone-ledger/internal/domain"
)

type PaymentStatus string

const (
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentDeclined  PaymentStatus = "declined"
)

type PaymentResult struct {
	Status       PaymentStatus
	ProcessorRef string
	Reason       string
}

// PaymentProcessor moves money outside the ledger. A returned error means the
// outcome is unknown (timeout, transport failure); a definitive refusal is a
// PaymentResult with PaymentDeclined. Implementations must be idempotent on
// TransferRequest.IdempotencyKey.
type PaymentProcessor interface {
	Transfer(ctx context.Context, req domain.TransferRequest) (PaymentResult, error)
}

// IdentityVerifier turns a bearer credential into an authenticated principal.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (domain.Principal, error)
}
