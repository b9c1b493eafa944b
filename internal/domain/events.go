package domain

const (
	CanonicalEventClassDomain        = "domain"
	CanonicalEventClassAnalyticsOnly = "analytics_only"
	CanonicalEventClassOps           = "ops"
)

const (
	EventEscrowAccountCreated        = "escrow.account_created"
	EventEscrowMilestoneStarted      = "escrow.milestone_started"
	EventEscrowMilestoneSubmitted    = "escrow.milestone_submitted"
	EventEscrowMilestoneSettled      = "escrow.milestone_settled"
	EventEscrowDisputeOpened         = "escrow.dispute_opened"
	EventEscrowDisputeResolved       = "escrow.dispute_resolved"
	EventEscrowAccountClosed         = "escrow.account_closed"
	EventEscrowTransferIndeterminate = "escrow.transfer_indeterminate"
	EventEscrowInvariantViolated     = "escrow.invariant_violated"
)

func IsCanonicalEmittedEvent(eventType string) bool {
	return CanonicalEventClass(eventType) != ""
}

func CanonicalEventClass(eventType string) string {
	switch eventType {
	case EventEscrowAccountCreated, EventEscrowMilestoneSettled, EventEscrowDisputeOpened,
		EventEscrowDisputeResolved, EventEscrowAccountClosed:
		return CanonicalEventClassDomain
	case EventEscrowMilestoneStarted, EventEscrowMilestoneSubmitted:
		return CanonicalEventClassAnalyticsOnly
	case EventEscrowTransferIndeterminate, EventEscrowInvariantViolated:
		return CanonicalEventClassOps
	default:
		return ""
	}
}

func CanonicalPartitionKeyPath(eventType string) string {
	if IsCanonicalEmittedEvent(eventType) {
		return "data.account_id"
	}
	return ""
}
