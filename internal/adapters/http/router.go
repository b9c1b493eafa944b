package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/escrow-milestone-ledger/internal/ports"
)

type RouterOptions struct {
	Verifier ports.IdentityVerifier
	Metrics  http.Handler
	Logger   *slog.Logger
	// Ready reports whether dependencies are reachable; nil means always ready.
	Ready func(r *http.Request) error
}

func NewRouter(handler *Handler, opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware(logger))
	r.Use(loggingMiddleware(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { writeSuccess(w, http.StatusOK, "ok", nil) })
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if opts.Ready != nil {
			if err := opts.Ready(req); err != nil {
				writeError(w, http.StatusServiceUnavailable, "not_ready", err.Error(), requestIDFromContext(req.Context()))
				return
			}
		}
		writeSuccess(w, http.StatusOK, "ready", nil)
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware(opts.Verifier))
		r.Route("/escrow", func(r chi.Router) {
			r.Post("/accounts", handler.createAccount)
			r.Route("/accounts/{account_id}", func(r chi.Router) {
				r.Get("/", handler.getAccount)
				r.Get("/balance", handler.getBalance)
				r.Get("/milestones", handler.listMilestones)
				r.Get("/disputes", handler.listDisputes)
				r.Get("/transfers", handler.listTransfers)
				r.Get("/deposits", handler.listDeposits)
				r.Post("/cancel", handler.cancelAccount)
				r.Route("/milestones/{milestone_id}", func(r chi.Router) {
					r.Post("/start", handler.startWork)
					r.Post("/submit", handler.submitMilestone)
					r.Post("/approve", handler.approveMilestone)
					r.Post("/disputes", handler.openDispute)
					r.Post("/reconcile", handler.reconcileMilestone)
				})
			})
			r.Get("/disputes/{dispute_id}", handler.getDispute)
			r.Post("/disputes/{dispute_id}/resolve", handler.resolveDispute)
			r.Get("/reconciliations", handler.listReconciliations)
		})
		r.Post("/matching/rank", handler.rankCampaigns)
	})
	return r
}
