package application

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/viralforge/escrow-milestone-ledger/internal/domain"
	"github.com/viralforge/escrow-milestone-ledger/internal/matching"
	"github.com/viralforge/escrow-milestone-ledger/internal/ports"
)

type Config struct {
	ServiceName    string
	IdempotencyTTL time.Duration
	Retry          RetryPolicy
	Fees           domain.FeeSchedule
	// SettlementTimeout bounds the transfer and commit phases of one
	// settlement. They run detached from the caller's context.
	SettlementTimeout time.Duration
	// StaleSettlementAfter is how long a milestone may sit in releasing before
	// the sweep hands it to operators.
	StaleSettlementAfter time.Duration
}

type Actor struct {
	SubjectID      string
	Role           domain.Role
	RequestID      string
	IdempotencyKey string
}

func (a Actor) principal() domain.Principal {
	return domain.Principal{UserID: a.SubjectID, Role: a.Role}
}

type MilestoneInput struct {
	Title            string
	Description      string
	Amount           decimal.Decimal
	DueDate          *time.Time
	Deliverables     []string
	ApprovalRequired bool
}

type CreateAccountInput struct {
	CampaignID      string
	PayerID         string
	PayeeID         string
	Currency        string
	Total           *decimal.Decimal
	PaymentMethodID string
	Milestones      []MilestoneInput
}

type ResolveDisputeInput struct {
	DisputeID  string
	Outcome    string
	PayeeRatio *decimal.Decimal
}

type ReconcileAction string

const (
	ReconcileRetry            ReconcileAction = "retry"
	ReconcileConfirmSucceeded ReconcileAction = "confirm_succeeded"
	ReconcileConfirmFailed    ReconcileAction = "confirm_failed"
)

type ReconcileInput struct {
	AccountID   string
	MilestoneID string
	Action      ReconcileAction
	// ProcessorRefs maps transfer idempotency keys to the references the
	// operator found at the processor. Required for confirm_succeeded.
	ProcessorRefs map[string]string
}

type DisputeResolution struct {
	Dispute domain.Dispute
	Account domain.EscrowAccount
}

type Service struct {
	cfg         Config
	logger      *slog.Logger
	store       ports.LedgerStore
	idempotency ports.IdempotencyRepository
	locker      ports.AccountLocker
	queue       ports.OperatorQueue
	metrics     ports.SettlementMetrics
	executor    *TransferExecutor
	scorer      matching.Scorer
	nowFn       func() time.Time
	newID       func() string
}

type Dependencies struct {
	Config      Config
	Logger      *slog.Logger
	Store       ports.LedgerStore
	Idempotency ports.IdempotencyRepository
	Locker      ports.AccountLocker
	Processor   ports.PaymentProcessor
	Queue       ports.OperatorQueue
	Metrics     ports.SettlementMetrics
	Scorer      matching.Scorer
	Clock       func() time.Time
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.ServiceName == "" {
		cfg.ServiceName = "escrow-milestone-ledger"
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 7 * 24 * time.Hour
	}
	if cfg.Fees == (domain.FeeSchedule{}) {
		cfg.Fees = domain.DefaultFeeSchedule()
	}
	cfg.Retry = cfg.Retry.withDefaults()
	if cfg.SettlementTimeout <= 0 {
		// Two legs at most, plus room for the commit.
		cfg.SettlementTimeout = 2*cfg.Retry.LegBudget() + 30*time.Second
	}
	if cfg.StaleSettlementAfter < cfg.SettlementTimeout {
		cfg.StaleSettlementAfter = cfg.SettlementTimeout
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	scorer := deps.Scorer
	if scorer == nil {
		scorer = matching.NewWeightedScorer(matching.DefaultWeights())
	}
	nowFn := deps.Clock
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}

	s := &Service{
		cfg:         cfg,
		logger:      logger,
		store:       deps.Store,
		idempotency: deps.Idempotency,
		locker:      deps.Locker,
		queue:       deps.Queue,
		metrics:     metrics,
		scorer:      scorer,
		nowFn:       nowFn,
		newID:       uuid.NewString,
	}
	s.executor = NewTransferExecutor(deps.Processor, deps.Store, cfg.Retry, cfg.Fees, metrics, logger, nowFn)
	return s
}

// Executor exposes the transfer executor used for settlements.
func (s *Service) Executor() *TransferExecutor { return s.executor }

type noopMetrics struct{}

func (noopMetrics) ObserveTransferAttempt(string, string, time.Duration) {}
func (noopMetrics) ObserveSettlement(string, string)                     {}
