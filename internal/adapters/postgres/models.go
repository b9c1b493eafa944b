package postgres

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type escrowAccountModel struct {
	AccountID    string          `gorm:"column:account_id;primaryKey"`
	CampaignID   string          `gorm:"column:campaign_id;index"`
	PayerID      string          `gorm:"column:payer_id;index"`
	PayeeID      string          `gorm:"column:payee_id;index"`
	Currency     string          `gorm:"column:currency"`
	Total        decimal.Decimal `gorm:"column:total;type:numeric(20,2)"`
	Held         decimal.Decimal `gorm:"column:held;type:numeric(20,2)"`
	Released     decimal.Decimal `gorm:"column:released;type:numeric(20,2)"`
	Refunded     decimal.Decimal `gorm:"column:refunded;type:numeric(20,2)"`
	Status       string          `gorm:"column:status"`
	Frozen       bool            `gorm:"column:frozen"`
	FrozenReason string          `gorm:"column:frozen_reason"`
	Version      int64           `gorm:"column:version"`
	CreatedAt    time.Time       `gorm:"column:created_at"`
	UpdatedAt    time.Time       `gorm:"column:updated_at"`
	ClosedAt     *time.Time      `gorm:"column:closed_at"`
}

func (escrowAccountModel) TableName() string { return "escrow_accounts" }

type milestoneModel struct {
	MilestoneID        string                      `gorm:"column:milestone_id;primaryKey"`
	AccountID          string                      `gorm:"column:account_id;index"`
	Position           int                         `gorm:"column:position"`
	Title              string                      `gorm:"column:title"`
	Description        string                      `gorm:"column:description"`
	Amount             decimal.Decimal             `gorm:"column:amount;type:numeric(20,2)"`
	DueDate            *time.Time                  `gorm:"column:due_date"`
	Deliverables       datatypes.JSONSlice[string] `gorm:"column:deliverables"`
	ApprovalRequired   bool                        `gorm:"column:approval_required"`
	Status             string                      `gorm:"column:status"`
	SubmittedAt        *time.Time                  `gorm:"column:submitted_at"`
	SubmittedBy        string                      `gorm:"column:submitted_by"`
	ApprovedAt         *time.Time                  `gorm:"column:approved_at"`
	ApprovedBy         string                      `gorm:"column:approved_by"`
	SettledAt          *time.Time                  `gorm:"column:settled_at"`
	PendingPriorStatus string                      `gorm:"column:pending_prior_status"`
	PendingTarget      string                      `gorm:"column:pending_target"`
	PendingPayeeAmount decimal.NullDecimal         `gorm:"column:pending_payee_amount;type:numeric(20,2)"`
	PendingPayerAmount decimal.NullDecimal         `gorm:"column:pending_payer_amount;type:numeric(20,2)"`
	PendingDisputeID   string                      `gorm:"column:pending_dispute_id"`
	PendingStartedAt   *time.Time                  `gorm:"column:pending_started_at"`
}

func (milestoneModel) TableName() string { return "escrow_milestones" }

type disputeModel struct {
	DisputeID   string              `gorm:"column:dispute_id;primaryKey"`
	AccountID   string              `gorm:"column:account_id;index"`
	MilestoneID string              `gorm:"column:milestone_id;index"`
	Reason      string              `gorm:"column:reason"`
	RaisedBy    string              `gorm:"column:raised_by"`
	Status      string              `gorm:"column:status"`
	Outcome     string              `gorm:"column:outcome"`
	PayeeRatio  decimal.NullDecimal `gorm:"column:payee_ratio;type:numeric(9,6)"`
	ResolvedBy  string              `gorm:"column:resolved_by"`
	OpenedAt    time.Time           `gorm:"column:opened_at"`
	ResolvedAt  *time.Time          `gorm:"column:resolved_at"`
}

func (disputeModel) TableName() string { return "escrow_disputes" }

type transferRecordModel struct {
	TransferID     string          `gorm:"column:transfer_id;primaryKey"`
	AccountID      string          `gorm:"column:account_id;index"`
	MilestoneID    string          `gorm:"column:milestone_id"`
	Direction      string          `gorm:"column:direction"`
	Kind           string          `gorm:"column:kind"`
	Amount         decimal.Decimal `gorm:"column:amount;type:numeric(20,2)"`
	Currency       string          `gorm:"column:currency"`
	IdempotencyKey string          `gorm:"column:idempotency_key;uniqueIndex"`
	ProcessorRef   string          `gorm:"column:processor_ref"`
	PlatformFee    decimal.Decimal `gorm:"column:platform_fee;type:numeric(20,2)"`
	ProcessingFee  decimal.Decimal `gorm:"column:processing_fee;type:numeric(20,2)"`
	NetAmount      decimal.Decimal `gorm:"column:net_amount;type:numeric(20,2)"`
	CompletedAt    time.Time       `gorm:"column:completed_at"`
}

func (transferRecordModel) TableName() string { return "escrow_transfer_records" }

type depositModel struct {
	DepositID       string          `gorm:"column:deposit_id;primaryKey"`
	AccountID       string          `gorm:"column:account_id;index"`
	CampaignID      string          `gorm:"column:campaign_id"`
	PayerID         string          `gorm:"column:payer_id"`
	Amount          decimal.Decimal `gorm:"column:amount;type:numeric(20,2)"`
	Currency        string          `gorm:"column:currency"`
	PaymentMethodID string          `gorm:"column:payment_method_id"`
	Description     string          `gorm:"column:description"`
	CreatedAt       time.Time       `gorm:"column:created_at"`
}

func (depositModel) TableName() string { return "escrow_deposits" }

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	EventClass   string     `gorm:"column:event_class"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      string     `gorm:"column:payload"`
	RetryCount   int        `gorm:"column:retry_count"`
	CreatedAt    time.Time  `gorm:"column:created_at;index"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
	LastError    string     `gorm:"column:last_error"`
	LastErrorAt  *time.Time `gorm:"column:last_error_at"`
}

func (outboxModel) TableName() string { return "escrow_outbox" }

type idempotencyModel struct {
	IdempotencyKey string    `gorm:"column:idempotency_key;primaryKey"`
	RequestHash    string    `gorm:"column:request_hash"`
	Status         string    `gorm:"column:status"`
	ResponseCode   int       `gorm:"column:response_code"`
	ResponseBody   *string   `gorm:"column:response_body"`
	ExpiresAt      time.Time `gorm:"column:expires_at"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (idempotencyModel) TableName() string { return "escrow_idempotency" }

// AllModels lists every table owned by the service, in creation order.
func AllModels() []any {
	return []any{
		&escrowAccountModel{},
		&milestoneModel{},
		&disputeModel{},
		&transferRecordModel{},
		&depositModel{},
		&outboxModel{},
		&idempotencyModel{},
	}
}
