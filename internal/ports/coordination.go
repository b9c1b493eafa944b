package ports

import (
	"context"
	"time"
)

// AccountLocker serializes mutations of a single escrow account. The returned
// release func must be called exactly once.
type AccountLocker interface {
	Lock(ctx context.Context, accountID string) (release func(), err error)
}

type ReconciliationTask struct {
	AccountID    string   `json:"account_id"`
	MilestoneID  string   `json:"milestone_id"`
	DisputeID    string   `json:"dispute_id,omitempty"`
	Reason       string   `json:"reason"`
	TransferKeys []string `json:"transfer_keys"`
	// ProcessorRefs holds the references of legs the processor confirmed,
	// keyed by transfer idempotency key.
	ProcessorRefs map[string]string `json:"processor_refs,omitempty"`
	EnqueuedAt    time.Time         `json:"enqueued_at"`
}

// OperatorQueue holds settlements whose transfer outcome could not be
// determined and that need a human decision.
type OperatorQueue interface {
	Enqueue(ctx context.Context, task ReconciliationTask) error
	List(ctx context.Context) ([]ReconciliationTask, error)
	Remove(ctx context.Context, accountID, milestoneID string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error
}

// SettlementMetrics receives transfer and settlement outcomes.
type SettlementMetrics interface {
	ObserveTransferAttempt(direction, outcome string, elapsed time.Duration)
	ObserveSettlement(target, outcome string)
}
