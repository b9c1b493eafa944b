package postgres

import (
	"github.com/shopspring/decimal"
	"github.com/viralforge/escrow-milestone-ledger/internal/domain"
)

func toAccountModel(a domain.EscrowAccount) escrowAccountModel {
	return escrowAccountModel{
		AccountID:    a.AccountID,
		CampaignID:   a.CampaignID,
		PayerID:      a.PayerID,
		PayeeID:      a.PayeeID,
		Currency:     string(a.Currency),
		Total:        a.Total,
		Held:         a.Held,
		Released:     a.Released,
		Refunded:     a.Refunded,
		Status:       string(a.Status),
		Frozen:       a.Frozen,
		FrozenReason: a.FrozenReason,
		Version:      a.Version,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
		ClosedAt:     a.ClosedAt,
	}
}

func toMilestoneModel(m domain.Milestone) milestoneModel {
	row := milestoneModel{
		MilestoneID:      m.MilestoneID,
		AccountID:        m.AccountID,
		Position:         m.Position,
		Title:            m.Title,
		Description:      m.Description,
		Amount:           m.Amount,
		DueDate:          m.DueDate,
		Deliverables:     m.Deliverables,
		ApprovalRequired: m.ApprovalRequired,
		Status:           string(m.Status),
		SubmittedAt:      m.SubmittedAt,
		SubmittedBy:      m.SubmittedBy,
		ApprovedAt:       m.ApprovedAt,
		ApprovedBy:       m.ApprovedBy,
		SettledAt:        m.SettledAt,
	}
	if row.Deliverables == nil {
		row.Deliverables = []string{}
	}
	if p := m.Pending; p != nil {
		started := p.StartedAt
		row.PendingPriorStatus = string(p.PriorStatus)
		row.PendingTarget = string(p.Target)
		row.PendingPayeeAmount = decimal.NewNullDecimal(p.PayeeAmount)
		row.PendingPayerAmount = decimal.NewNullDecimal(p.PayerAmount)
		row.PendingDisputeID = p.DisputeID
		row.PendingStartedAt = &started
	}
	return row
}

func milestoneUpdates(m domain.Milestone) map[string]any {
	row := toMilestoneModel(m)
	return map[string]any{
		"status":               row.Status,
		"submitted_at":         row.SubmittedAt,
		"submitted_by":         row.SubmittedBy,
		"approved_at":          row.ApprovedAt,
		"approved_by":          row.ApprovedBy,
		"settled_at":           row.SettledAt,
		"pending_prior_status": row.PendingPriorStatus,
		"pending_target":       row.PendingTarget,
		"pending_payee_amount": row.PendingPayeeAmount,
		"pending_payer_amount": row.PendingPayerAmount,
		"pending_dispute_id":   row.PendingDisputeID,
		"pending_started_at":   row.PendingStartedAt,
	}
}

func toDomainAccount(row escrowAccountModel, milestones []milestoneModel) domain.EscrowAccount {
	out := domain.EscrowAccount{
		AccountID:    row.AccountID,
		CampaignID:   row.CampaignID,
		PayerID:      row.PayerID,
		PayeeID:      row.PayeeID,
		Currency:     domain.Currency(row.Currency),
		Total:        row.Total,
		Held:         row.Held,
		Released:     row.Released,
		Refunded:     row.Refunded,
		Status:       domain.AccountStatus(row.Status),
		Frozen:       row.Frozen,
		FrozenReason: row.FrozenReason,
		Version:      row.Version,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
		ClosedAt:     utcPtr(row.ClosedAt),
		Milestones:   make([]domain.Milestone, 0, len(milestones)),
	}
	for _, m := range milestones {
		out.Milestones = append(out.Milestones, toDomainMilestone(m))
	}
	return out
}

func toDomainMilestone(row milestoneModel) domain.Milestone {
	out := domain.Milestone{
		MilestoneID:      row.MilestoneID,
		AccountID:        row.AccountID,
		Position:         row.Position,
		Title:            row.Title,
		Description:      row.Description,
		Amount:           row.Amount,
		DueDate:          utcPtr(row.DueDate),
		Deliverables:     []string(row.Deliverables),
		ApprovalRequired: row.ApprovalRequired,
		Status:           domain.MilestoneStatus(row.Status),
		SubmittedAt:      utcPtr(row.SubmittedAt),
		SubmittedBy:      row.SubmittedBy,
		ApprovedAt:       utcPtr(row.ApprovedAt),
		ApprovedBy:       row.ApprovedBy,
		SettledAt:        utcPtr(row.SettledAt),
	}
	if row.PendingTarget != "" {
		p := &domain.PendingSettlement{
			PriorStatus: domain.MilestoneStatus(row.PendingPriorStatus),
			Target:      domain.MilestoneStatus(row.PendingTarget),
			PayeeAmount: row.PendingPayeeAmount.Decimal,
			PayerAmount: row.PendingPayerAmount.Decimal,
			DisputeID:   row.PendingDisputeID,
		}
		if row.PendingStartedAt != nil {
			p.StartedAt = row.PendingStartedAt.UTC()
		}
		out.Pending = p
	}
	return out
}

func toDisputeModel(d domain.Dispute) disputeModel {
	row := disputeModel{
		DisputeID:   d.DisputeID,
		AccountID:   d.AccountID,
		MilestoneID: d.MilestoneID,
		Reason:      d.Reason,
		RaisedBy:    d.RaisedBy,
		Status:      string(d.Status),
		ResolvedBy:  d.ResolvedBy,
		OpenedAt:    d.OpenedAt,
		ResolvedAt:  d.ResolvedAt,
	}
	if d.Outcome != nil {
		row.Outcome = string(d.Outcome.Kind)
		if d.Outcome.Kind == domain.OutcomeSplit {
			row.PayeeRatio = decimal.NewNullDecimal(d.Outcome.PayeeRatio)
		}
	}
	return row
}

func toDomainDispute(row disputeModel) domain.Dispute {
	out := domain.Dispute{
		DisputeID:   row.DisputeID,
		AccountID:   row.AccountID,
		MilestoneID: row.MilestoneID,
		Reason:      row.Reason,
		RaisedBy:    row.RaisedBy,
		Status:      domain.DisputeStatus(row.Status),
		ResolvedBy:  row.ResolvedBy,
		OpenedAt:    row.OpenedAt.UTC(),
		ResolvedAt:  utcPtr(row.ResolvedAt),
	}
	if row.Outcome != "" {
		o := domain.Outcome{Kind: domain.OutcomeKind(row.Outcome)}
		if row.PayeeRatio.Valid {
			o.PayeeRatio = row.PayeeRatio.Decimal
		}
		out.Outcome = &o
	}
	return out
}

func toTransferModel(r domain.TransferRecord) transferRecordModel {
	return transferRecordModel{
		TransferID:     r.TransferID,
		AccountID:      r.AccountID,
		MilestoneID:    r.MilestoneID,
		Direction:      string(r.Direction),
		Kind:           string(r.Kind),
		Amount:         r.Amount,
		Currency:       string(r.Currency),
		IdempotencyKey: r.IdempotencyKey,
		ProcessorRef:   r.ProcessorRef,
		PlatformFee:    r.Fees.PlatformFee,
		ProcessingFee:  r.Fees.ProcessingFee,
		NetAmount:      r.Fees.Net,
		CompletedAt:    r.CompletedAt,
	}
}

func toDomainTransfer(row transferRecordModel) domain.TransferRecord {
	return domain.TransferRecord{
		TransferID:     row.TransferID,
		AccountID:      row.AccountID,
		MilestoneID:    row.MilestoneID,
		Direction:      domain.TransferDirection(row.Direction),
		Kind:           domain.TransferKind(row.Kind),
		Amount:         row.Amount,
		Currency:       domain.Currency(row.Currency),
		IdempotencyKey: row.IdempotencyKey,
		ProcessorRef:   row.ProcessorRef,
		Fees: domain.FeeBreakdown{
			PlatformFee:   row.PlatformFee,
			ProcessingFee: row.ProcessingFee,
			Net:           row.NetAmount,
		},
		CompletedAt: row.CompletedAt.UTC(),
	}
}

func toDepositModel(d domain.Deposit) depositModel {
	return depositModel{
		DepositID:       d.DepositID,
		AccountID:       d.AccountID,
		CampaignID:      d.CampaignID,
		PayerID:         d.PayerID,
		Amount:          d.Amount,
		Currency:        string(d.Currency),
		PaymentMethodID: d.PaymentMethodID,
		Description:     d.Description,
		CreatedAt:       d.CreatedAt,
	}
}

func toDomainDeposit(row depositModel) domain.Deposit {
	return domain.Deposit{
		DepositID:       row.DepositID,
		AccountID:       row.AccountID,
		CampaignID:      row.CampaignID,
		PayerID:         row.PayerID,
		Amount:          row.Amount,
		Currency:        domain.Currency(row.Currency),
		PaymentMethodID: row.PaymentMethodID,
		Description:     row.Description,
		CreatedAt:       row.CreatedAt.UTC(),
	}
}
