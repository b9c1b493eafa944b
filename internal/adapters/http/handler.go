package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/escrow-milestone-ledger/internal/application"
	"github.com/viralforge/escrow-milestone-ledger/internal/contracts"
	"github.com/viralforge/escrow-milestone-ledger/internal/domain"
	"github.com/viralforge/escrow-milestone-ledger/internal/matching"
)

type Handler struct {
	service *application.Service
	logger  *slog.Logger
}

func NewHandler(service *application.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := mapDomainError(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"module", "http.handler",
			"layer", "adapter",
			"operation", r.Method+" "+r.URL.Path,
			"outcome", "failure",
			"request_id", requestIDFromContext(r.Context()),
			"error", err,
		)
	}
	writeError(w, status, code, errorMessage(status, err), requestIDFromContext(r.Context()))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid json body", requestIDFromContext(r.Context()))
		return false
	}
	return true
}

// writeSettlement reports a milestone operation that may have moved money.
// An indeterminate transfer is accepted but not yet settled.
func (h *Handler) writeSettlement(w http.ResponseWriter, r *http.Request, message string, account domain.EscrowAccount, err error) {
	if err != nil {
		if errors.Is(err, domain.ErrTransferIndeterminate) {
			writeSuccess(w, http.StatusAccepted, "settlement pending manual reconciliation", nil)
			return
		}
		h.fail(w, r, err)
		return
	}
	resp := toAccountResponse(account)
	resp.EventDelivery = "pending"
	writeSuccess(w, http.StatusOK, message, resp)
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req contracts.CreateAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	input := application.CreateAccountInput{
		CampaignID:      req.CampaignID,
		PayerID:         req.PayerID,
		PayeeID:         req.PayeeID,
		Currency:        strings.ToUpper(strings.TrimSpace(req.Currency)),
		Total:           req.Total,
		PaymentMethodID: req.PaymentMethodID,
		Milestones:      make([]application.MilestoneInput, 0, len(req.Milestones)),
	}
	for _, m := range req.Milestones {
		approval := true
		if m.ApprovalRequired != nil {
			approval = *m.ApprovalRequired
		}
		input.Milestones = append(input.Milestones, application.MilestoneInput{
			Title:            m.Title,
			Description:      m.Description,
			Amount:           m.Amount,
			DueDate:          m.DueDate,
			Deliverables:     m.Deliverables,
			ApprovalRequired: approval,
		})
	}
	account, err := h.service.CreateAccount(r.Context(), actorFromContext(r.Context()), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := toAccountResponse(account)
	resp.EventDelivery = "pending"
	writeSuccess(w, http.StatusCreated, "escrow account created", resp)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.GetAccount(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "account_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toAccountResponse(account))
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	bal, err := h.service.GetBalance(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "account_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", contracts.BalanceResponse{
		AccountID: bal.AccountID,
		Currency:  string(bal.Currency),
		Total:     bal.Total,
		Held:      bal.Held,
		Released:  bal.Released,
		Refunded:  bal.Refunded,
	})
}

func (h *Handler) listMilestones(w http.ResponseWriter, r *http.Request) {
	milestones, err := h.service.ListMilestones(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "account_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]contracts.MilestoneResponse, 0, len(milestones))
	for _, m := range milestones {
		out = append(out, toMilestoneResponse(m))
	}
	writeSuccess(w, http.StatusOK, "", out)
}

func (h *Handler) listTransfers(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListTransfers(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "account_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]contracts.TransferResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toTransferResponse(rec))
	}
	writeSuccess(w, http.StatusOK, "", out)
}

func (h *Handler) listDeposits(w http.ResponseWriter, r *http.Request) {
	deposits, err := h.service.ListDeposits(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "account_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]contracts.DepositResponse, 0, len(deposits))
	for _, d := range deposits {
		out = append(out, toDepositResponse(d))
	}
	writeSuccess(w, http.StatusOK, "", out)
}

func (h *Handler) cancelAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.CancelAccount(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "account_id"))
	h.writeSettlement(w, r, "escrow account cancelled", account, err)
}

func (h *Handler) startWork(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.StartWork(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "account_id"), chi.URLParam(r, "milestone_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "milestone started", toAccountResponse(account))
}

func (h *Handler) submitMilestone(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.SubmitForApproval(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "account_id"), chi.URLParam(r, "milestone_id"))
	h.writeSettlement(w, r, "milestone submitted", account, err)
}

func (h *Handler) approveMilestone(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.Approve(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "account_id"), chi.URLParam(r, "milestone_id"))
	h.writeSettlement(w, r, "milestone approved", account, err)
}

func (h *Handler) openDispute(w http.ResponseWriter, r *http.Request) {
	var req contracts.OpenDisputeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	dispute, err := h.service.OpenDispute(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "account_id"), chi.URLParam(r, "milestone_id"), req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "dispute opened", toDisputeResponse(dispute))
}

func (h *Handler) listDisputes(w http.ResponseWriter, r *http.Request) {
	disputes, err := h.service.ListDisputes(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "account_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]contracts.DisputeResponse, 0, len(disputes))
	for _, d := range disputes {
		out = append(out, toDisputeResponse(d))
	}
	writeSuccess(w, http.StatusOK, "", out)
}

func (h *Handler) getDispute(w http.ResponseWriter, r *http.Request) {
	dispute, err := h.service.GetDispute(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "dispute_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toDisputeResponse(dispute))
}

func (h *Handler) resolveDispute(w http.ResponseWriter, r *http.Request) {
	var req contracts.ResolveDisputeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.service.ResolveDispute(r.Context(), actorFromContext(r.Context()), application.ResolveDisputeInput{
		DisputeID:  chi.URLParam(r, "dispute_id"),
		Outcome:    req.Outcome,
		PayeeRatio: req.PayeeRatio,
	})
	if err != nil {
		if errors.Is(err, domain.ErrTransferIndeterminate) {
			writeSuccess(w, http.StatusAccepted, "resolution pending manual reconciliation", nil)
			return
		}
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "dispute resolved", map[string]any{
		"dispute": toDisputeResponse(res.Dispute),
		"account": toAccountResponse(res.Account),
	})
}

func (h *Handler) reconcileMilestone(w http.ResponseWriter, r *http.Request) {
	var req contracts.ReconcileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	account, err := h.service.ReconcileSettlement(r.Context(), actorFromContext(r.Context()), application.ReconcileInput{
		AccountID:     chi.URLParam(r, "account_id"),
		MilestoneID:   chi.URLParam(r, "milestone_id"),
		Action:        application.ReconcileAction(strings.TrimSpace(req.Action)),
		ProcessorRefs: req.ProcessorRefs,
	})
	h.writeSettlement(w, r, "settlement reconciled", account, err)
}

func (h *Handler) listReconciliations(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.service.ListReconciliations(r.Context(), actorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]contracts.ReconciliationTaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, contracts.ReconciliationTaskResponse{
			AccountID:    t.AccountID,
			MilestoneID:  t.MilestoneID,
			DisputeID:    t.DisputeID,
			Reason:       t.Reason,
			TransferKeys: t.TransferKeys,
			EnqueuedAt:   t.EnqueuedAt,
		})
	}
	writeSuccess(w, http.StatusOK, "", out)
}

func (h *Handler) rankCampaigns(w http.ResponseWriter, r *http.Request) {
	var req contracts.RankCampaignsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	campaigns := make([]matching.Campaign, 0, len(req.Campaigns))
	for _, c := range req.Campaigns {
		campaigns = append(campaigns, matching.Campaign{
			CampaignID:           c.CampaignID,
			BudgetMin:            c.BudgetMin,
			BudgetMax:            c.BudgetMax,
			MinFollowers:         c.MinFollowers,
			MaxFollowers:         c.MaxFollowers,
			TargetEngagementRate: c.TargetEngRate,
			ContentTypes:         c.ContentTypes,
			Platforms:            c.Platforms,
			Locations:            c.Locations,
			Tags:                 c.Tags,
		})
	}
	p := req.Profile
	profile := matching.CreatorProfile{
		CreatorID:      p.CreatorID,
		Followers:      p.Followers,
		EngagementRate: p.EngagementRate,
		Rate:           p.Rate,
		ContentTypes:   p.ContentTypes,
		Platforms:      p.Platforms,
		Location:       p.Location,
		Tags:           p.Tags,
	}
	scores, err := h.service.RankCampaigns(r.Context(), actorFromContext(r.Context()), profile, campaigns, req.Limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]contracts.MatchScoreResponse, 0, len(scores))
	for _, s := range scores {
		out = append(out, contracts.MatchScoreResponse{
			CampaignID: s.CampaignID,
			Overall:    s.Overall,
			Audience:   s.Audience,
			Content:    s.Content,
			Budget:     s.Budget,
			Engagement: s.Engagement,
			Location:   s.Location,
		})
	}
	writeSuccess(w, http.StatusOK, "", out)
}
