package http

import (
	"github.com/viralforge/escrow-milestone-ledger/internal/contracts"
	"github.com/viralforge/escrow-milestone-ledger/internal/domain"
)

func toAccountResponse(a domain.EscrowAccount) contracts.AccountResponse {
	out := contracts.AccountResponse{
		AccountID:  a.AccountID,
		CampaignID: a.CampaignID,
		PayerID:    a.PayerID,
		PayeeID:    a.PayeeID,
		Currency:   string(a.Currency),
		Status:     string(a.Status),
		Frozen:     a.Frozen,
		Total:      a.Total,
		Held:       a.Held,
		Released:   a.Released,
		Refunded:   a.Refunded,
		Version:    a.Version,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
		ClosedAt:   a.ClosedAt,
		Milestones: make([]contracts.MilestoneResponse, 0, len(a.Milestones)),
	}
	for _, m := range a.Milestones {
		out.Milestones = append(out.Milestones, toMilestoneResponse(m))
	}
	return out
}

func toMilestoneResponse(m domain.Milestone) contracts.MilestoneResponse {
	out := contracts.MilestoneResponse{
		MilestoneID:      m.MilestoneID,
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
	if p := m.Pending; p != nil {
		out.Pending = &contracts.PendingSettlementResponse{
			PriorStatus: string(p.PriorStatus),
			Target:      string(p.Target),
			PayeeAmount: p.PayeeAmount,
			PayerAmount: p.PayerAmount,
			DisputeID:   p.DisputeID,
			StartedAt:   p.StartedAt,
		}
	}
	return out
}

func toDisputeResponse(d domain.Dispute) contracts.DisputeResponse {
	out := contracts.DisputeResponse{
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
		out.Outcome = string(d.Outcome.Kind)
		if d.Outcome.Kind == domain.OutcomeSplit {
			ratio := d.Outcome.PayeeRatio
			out.PayeeRatio = &ratio
		}
	}
	return out
}

func toDepositResponse(d domain.Deposit) contracts.DepositResponse {
	return contracts.DepositResponse{
		DepositID:       d.DepositID,
		CampaignID:      d.CampaignID,
		PayerID:         d.PayerID,
		Amount:          d.Amount,
		Currency:        string(d.Currency),
		PaymentMethodID: d.PaymentMethodID,
		Description:     d.Description,
		CreatedAt:       d.CreatedAt,
	}
}

func toTransferResponse(r domain.TransferRecord) contracts.TransferResponse {
	return contracts.TransferResponse{
		TransferID:     r.TransferID,
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
