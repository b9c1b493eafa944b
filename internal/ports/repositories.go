package ports

import (
	"context"
	"time"

	"github.com/viralforge/escrow-milestone-ledger/internal/domain"
)

// LedgerReader is the read side of the ledger store.
type LedgerReader interface {
	GetAccount(ctx context.Context, accountID string) (domain.EscrowAccount, error)
	GetDispute(ctx context.Context, disputeID string) (domain.Dispute, error)
	ListDisputes(ctx context.Context, accountID string) ([]domain.Dispute, error)
	ListTransfers(ctx context.Context, accountID string) ([]domain.TransferRecord, error)
	// GetTransferByKey returns nil when no transfer was recorded under key.
	GetTransferByKey(ctx context.Context, idempotencyKey string) (*domain.TransferRecord, error)
	ListDeposits(ctx context.Context, accountID string) ([]domain.Deposit, error)
}

// LedgerTx groups writes that must commit or roll back together.
type LedgerTx interface {
	LedgerReader
	CreateAccount(ctx context.Context, account domain.EscrowAccount) error
	// SaveAccount persists the account and its milestones. It fails with
	// domain.ErrConflict when the stored version differs from account.Version,
	// and bumps account.Version on success.
	SaveAccount(ctx context.Context, account *domain.EscrowAccount) error
	CreateDispute(ctx context.Context, dispute domain.Dispute) error
	SaveDispute(ctx context.Context, dispute domain.Dispute) error
	// AppendTransfer reports false when a record with the same idempotency key exists.
	AppendTransfer(ctx context.Context, record domain.TransferRecord) (bool, error)
	EnqueueOutbox(ctx context.Context, record OutboxRecord) error
	RecordDeposit(ctx context.Context, deposit domain.Deposit) error
	// RecordIdempotency stores a completed response. It fails with
	// domain.ErrConflict when the key is already recorded.
	RecordIdempotency(ctx context.Context, rec IdempotencyRecord) error
}

type LedgerStore interface {
	LedgerReader
	WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error
	// ListStalledSettlements returns milestones that entered releasing before
	// startedBefore, oldest first.
	ListStalledSettlements(ctx context.Context, startedBefore time.Time, limit int) ([]domain.Milestone, error)
}

type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	Status       string
	ResponseCode int
	ResponseBody []byte
	ExpiresAt    time.Time
}

// IdempotencyRepository reads recorded responses. Writes go through LedgerTx
// so a response is stored only with the changes it reports.
type IdempotencyRepository interface {
	Get(ctx context.Context, key string, now time.Time) (*IdempotencyRecord, error)
}

type OutboxRecord struct {
	RecordID     string
	EventType    string
	EventClass   string
	PartitionKey string
	Payload      []byte
	RetryCount   int
	CreatedAt    time.Time
	PublishedAt  *time.Time
	LastError    string
	LastErrorAt  *time.Time
}

type OutboxRepository interface {
	FetchUnpublished(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, recordID string, at time.Time) error
	MarkFailed(ctx context.Context, recordID, errMsg string, at time.Time) error
}
