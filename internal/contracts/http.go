package contracts

import (
	"time"

	"github.com/shopspring/decimal"
)

type SuccessResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorResponse struct {
	Status string       `json:"status"`
	Error  ErrorPayload `json:"error"`
}

type MilestoneSpecRequest struct {
	Title            string          `json:"title"`
	Description      string          `json:"description,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	DueDate          *time.Time      `json:"due_date,omitempty"`
	Deliverables     []string        `json:"deliverables,omitempty"`
	ApprovalRequired *bool           `json:"approval_required,omitempty"`
}

type CreateAccountRequest struct {
	CampaignID      string                 `json:"campaign_id"`
	PayerID         string                 `json:"payer_id"`
	PayeeID         string                 `json:"payee_id"`
	Currency        string                 `json:"currency"`
	Total           *decimal.Decimal       `json:"total,omitempty"`
	PaymentMethodID string                 `json:"payment_method_id,omitempty"`
	Milestones      []MilestoneSpecRequest `json:"milestones"`
}

type PendingSettlementResponse struct {
	PriorStatus string          `json:"prior_status"`
	Target      string          `json:"target"`
	PayeeAmount decimal.Decimal `json:"payee_amount"`
	PayerAmount decimal.Decimal `json:"payer_amount"`
	DisputeID   string          `json:"dispute_id,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
}

type MilestoneResponse struct {
	MilestoneID      string                     `json:"milestone_id"`
	Position         int                        `json:"position"`
	Title            string                     `json:"title"`
	Description      string                     `json:"description,omitempty"`
	Amount           decimal.Decimal            `json:"amount"`
	DueDate          *time.Time                 `json:"due_date,omitempty"`
	Deliverables     []string                   `json:"deliverables,omitempty"`
	ApprovalRequired bool                       `json:"approval_required"`
	Status           string                     `json:"status"`
	SubmittedAt      *time.Time                 `json:"submitted_at,omitempty"`
	SubmittedBy      string                     `json:"submitted_by,omitempty"`
	ApprovedAt       *time.Time                 `json:"approved_at,omitempty"`
	ApprovedBy       string                     `json:"approved_by,omitempty"`
	SettledAt        *time.Time                 `json:"settled_at,omitempty"`
	Pending          *PendingSettlementResponse `json:"pending_settlement,omitempty"`
}

type AccountResponse struct {
	AccountID     string              `json:"account_id"`
	CampaignID    string              `json:"campaign_id,omitempty"`
	PayerID       string              `json:"payer_id"`
	PayeeID       string              `json:"payee_id"`
	Currency      string              `json:"currency"`
	Status        string              `json:"status"`
	Frozen        bool                `json:"frozen"`
	Total         decimal.Decimal     `json:"total"`
	Held          decimal.Decimal     `json:"held"`
	Released      decimal.Decimal     `json:"released"`
	Refunded      decimal.Decimal     `json:"refunded"`
	Version       int64               `json:"version"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	ClosedAt      *time.Time          `json:"closed_at,omitempty"`
	Milestones    []MilestoneResponse `json:"milestones"`
	EventDelivery string              `json:"event_delivery,omitempty"`
}

type BalanceResponse struct {
	AccountID string          `json:"account_id"`
	Currency  string          `json:"currency"`
	Total     decimal.Decimal `json:"total"`
	Held      decimal.Decimal `json:"held"`
	Released  decimal.Decimal `json:"released"`
	Refunded  decimal.Decimal `json:"refunded"`
}

type OpenDisputeRequest struct {
	Reason string `json:"reason"`
}

type ResolveDisputeRequest struct {
	Outcome    string           `json:"outcome"`
	PayeeRatio *decimal.Decimal `json:"payee_ratio,omitempty"`
}

type DisputeResponse struct {
	DisputeID   string           `json:"dispute_id"`
	AccountID   string           `json:"account_id"`
	MilestoneID string           `json:"milestone_id"`
	Reason      string           `json:"reason"`
	RaisedBy    string           `json:"raised_by"`
	Status      string           `json:"status"`
	Outcome     string           `json:"outcome,omitempty"`
	PayeeRatio  *decimal.Decimal `json:"payee_ratio,omitempty"`
	ResolvedBy  string           `json:"resolved_by,omitempty"`
	OpenedAt    time.Time        `json:"opened_at"`
	ResolvedAt  *time.Time       `json:"resolved_at,omitempty"`
}

type TransferResponse struct {
	TransferID     string          `json:"transfer_id"`
	MilestoneID    string          `json:"milestone_id"`
	Direction      string          `json:"direction"`
	Kind           string          `json:"kind"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	IdempotencyKey string          `json:"idempotency_key"`
	ProcessorRef   string          `json:"processor_ref"`
	PlatformFee    decimal.Decimal `json:"platform_fee"`
	ProcessingFee  decimal.Decimal `json:"processing_fee"`
	NetAmount      decimal.Decimal `json:"net_amount"`
	CompletedAt    time.Time       `json:"completed_at"`
}

type DepositResponse struct {
	DepositID       string          `json:"deposit_id"`
	CampaignID      string          `json:"campaign_id,omitempty"`
	PayerID         string          `json:"payer_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	PaymentMethodID string          `json:"payment_method_id,omitempty"`
	Description     string          `json:"description"`
	CreatedAt       time.Time       `json:"created_at"`
}

type ReconcileRequest struct {
	Action        string            `json:"action"`
	ProcessorRefs map[string]string `json:"processor_refs,omitempty"`
}

type ReconciliationTaskResponse struct {
	AccountID    string    `json:"account_id"`
	MilestoneID  string    `json:"milestone_id"`
	DisputeID    string    `json:"dispute_id,omitempty"`
	Reason       string    `json:"reason"`
	TransferKeys []string  `json:"transfer_keys"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}

type CampaignRequest struct {
	CampaignID    string          `json:"campaign_id"`
	BudgetMin     decimal.Decimal `json:"budget_min"`
	BudgetMax     decimal.Decimal `json:"budget_max"`
	MinFollowers  int64           `json:"min_followers"`
	MaxFollowers  int64           `json:"max_followers,omitempty"`
	TargetEngRate float64         `json:"target_engagement_rate,omitempty"`
	ContentTypes  []string        `json:"content_types,omitempty"`
	Platforms     []string        `json:"platforms,omitempty"`
	Locations     []string        `json:"locations,omitempty"`
	Tags          []string        `json:"tags,omitempty"`
}

type CreatorProfileRequest struct {
	CreatorID      string          `json:"creator_id"`
	Followers      int64           `json:"followers"`
	EngagementRate float64         `json:"engagement_rate"`
	Rate           decimal.Decimal `json:"rate"`
	ContentTypes   []string        `json:"content_types,omitempty"`
	Platforms      []string        `json:"platforms,omitempty"`
	Location       string          `json:"location,omitempty"`
	Tags           []string        `json:"tags,omitempty"`
}

type RankCampaignsRequest struct {
	Profile   CreatorProfileRequest `json:"profile"`
	Campaigns []CampaignRequest     `json:"campaigns"`
	Limit     int                   `json:"limit,omitempty"`
}

type MatchScoreResponse struct {
	CampaignID string  `json:"campaign_id"`
	Overall    float64 `json:"overall"`
	Audience   float64 `json:"audience"`
	Content    float64 `json:"content"`
	Budget     float64 `json:"budget"`
	Engagement float64 `json:"engagement"`
	Location   float64 `json:"location"`
}
