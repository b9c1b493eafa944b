package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/viralforge/escrow-milestone-ledger/internal/domain"
	"github.com/viralforge/escrow-milestone-ledger/internal/ports"
)

// ErrTransferInProgress reports that the processor is still working on an
// earlier request with the same idempotency key.
var ErrTransferInProgress = errors.New("transfer with this idempotency key in progress")

type HTTPProcessorConfig struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// HTTPProcessor talks to the external payment processor's transfer endpoint.
// The ledger's idempotency key is forwarded so retried calls never move money
// twice.
type HTTPProcessor struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type transferRequestBody struct {
	IdempotencyKey string `json:"idempotency_key"`
	AccountID      string `json:"account_id"`
	MilestoneID    string `json:"milestone_id"`
	From           string `json:"from"`
	To             string `json:"to"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	Kind           string `json:"kind"`
}

type transferResponseBody struct {
	Status       string `json:"status"`
	ProcessorRef string `json:"processor_ref"`
	Reason       string `json:"reason"`
}

func NewHTTPProcessor(cfg HTTPProcessorConfig) *HTTPProcessor {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPProcessor{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: client,
	}
}

func (p *HTTPProcessor) Transfer(ctx context.Context, req domain.TransferRequest) (ports.PaymentResult, error) {
	body, err := json.Marshal(transferRequestBody{
		IdempotencyKey: req.IdempotencyKey,
		AccountID:      req.AccountID,
		MilestoneID:    req.MilestoneID,
		From:           req.FromParty,
		To:             req.ToParty,
		Amount:         req.Amount.StringFixed(domain.MinorUnits),
		Currency:       string(req.Currency),
		Kind:           string(req.Kind),
	})
	if err != nil {
		return ports.PaymentResult{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return ports.PaymentResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return ports.PaymentResult{}, fmt.Errorf("processor transfer: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var decoded transferResponseBody
	_ = json.Unmarshal(raw, &decoded)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if strings.EqualFold(decoded.Status, string(ports.PaymentDeclined)) {
			return ports.PaymentResult{Status: ports.PaymentDeclined, ProcessorRef: decoded.ProcessorRef, Reason: decoded.Reason}, nil
		}
		if decoded.ProcessorRef == "" {
			return ports.PaymentResult{}, fmt.Errorf("processor transfer: success without processor_ref")
		}
		return ports.PaymentResult{Status: ports.PaymentSucceeded, ProcessorRef: decoded.ProcessorRef}, nil
	case resp.StatusCode == http.StatusConflict:
		// Another request with this key is still running at the processor.
		return ports.PaymentResult{}, fmt.Errorf("processor transfer: %w", ErrTransferInProgress)
	case resp.StatusCode == http.StatusPaymentRequired,
		resp.StatusCode == http.StatusUnprocessableEntity:
		reason := decoded.Reason
		if reason == "" {
			reason = http.StatusText(resp.StatusCode)
		}
		return ports.PaymentResult{Status: ports.PaymentDeclined, ProcessorRef: decoded.ProcessorRef, Reason: reason}, nil
	default:
		return ports.PaymentResult{}, fmt.Errorf("processor transfer: unexpected status %d", resp.StatusCode)
	}
}
