package contracts

import (
	"encoding/json"
	"time"
)

type EventEnvelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	EventClass       string          `json:"event_class,omitempty"`
	OccurredAt       time.Time       `json:"occurred_at"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id"`
	SchemaVersion    string          `json:"schema_version"`
	Data             json.RawMessage `json:"data"`
}

type AccountCreatedPayload struct {
	AccountID      string `json:"account_id"`
	CampaignID     string `json:"campaign_id,omitempty"`
	PayerID        string `json:"payer_id"`
	PayeeID        string `json:"payee_id"`
	Currency       string `json:"currency"`
	Total          string `json:"total"`
	MilestoneCount int    `json:"milestone_count"`
	CreatedAt      string `json:"created_at"`
}

type MilestoneProgressPayload struct {
	AccountID   string `json:"account_id"`
	MilestoneID string `json:"milestone_id"`
	Status      string `json:"status"`
	ActorID     string `json:"actor_id"`
	OccurredAt  string `json:"occurred_at"`
}

type MilestoneSettledPayload struct {
	AccountID   string `json:"account_id"`
	MilestoneID string `json:"milestone_id"`
	Status      string `json:"status"`
	PayeeAmount string `json:"payee_amount"`
	PayerAmount string `json:"payer_amount"`
	DisputeID   string `json:"dispute_id,omitempty"`
	Held        string `json:"held"`
	Released    string `json:"released"`
	Refunded    string `json:"refunded"`
	SettledAt   string `json:"settled_at"`
}

type DisputeOpenedPayload struct {
	AccountID   string `json:"account_id"`
	MilestoneID string `json:"milestone_id"`
	DisputeID   string `json:"dispute_id"`
	RaisedBy    string `json:"raised_by"`
	Reason      string `json:"reason"`
	OpenedAt    string `json:"opened_at"`
}

type DisputeResolvedPayload struct {
	AccountID   string `json:"account_id"`
	MilestoneID string `json:"milestone_id"`
	DisputeID   string `json:"dispute_id"`
	Outcome     string `json:"outcome"`
	PayeeRatio  string `json:"payee_ratio,omitempty"`
	ResolvedBy  string `json:"resolved_by"`
	ResolvedAt  string `json:"resolved_at"`
}

type AccountClosedPayload struct {
	AccountID string `json:"account_id"`
	Status    string `json:"status"`
	Released  string `json:"released"`
	Refunded  string `json:"refunded"`
	ClosedAt  string `json:"closed_at"`
}

type TransferIndeterminatePayload struct {
	AccountID    string   `json:"account_id"`
	MilestoneID  string   `json:"milestone_id"`
	TransferKeys []string `json:"transfer_keys"`
	Reason       string   `json:"reason"`
	DetectedAt   string   `json:"detected_at"`
}

type InvariantViolatedPayload struct {
	AccountID  string `json:"account_id"`
	Detail     string `json:"detail"`
	DetectedAt string `json:"detected_at"`
}
