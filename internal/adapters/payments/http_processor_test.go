package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viralforge/escrow-milestone-ledger/internal/domain"
	"github.com/viralforge/escrow-milestone-ledger/internal/ports"
)

func sampleRequest() domain.TransferRequest {
	return domain.TransferRequest{
		AccountID:      "acc-1",
		MilestoneID:    "ms-1",
		Direction:      domain.TransferToPayee,
		Kind:           domain.TransferKindRelease,
		Amount:         decimal.RequireFromString("1000"),
		Currency:       domain.CurrencyUSD,
		FromParty:      "escrow:acc-1",
		ToParty:        "influencer-1",
		IdempotencyKey: "esc_abc",
	}
}

func TestHTTPProcessorOutcomes(t *testing.T) {
	cases := []struct {
		name       string
		status     int
		body       string
		wantStatus ports.PaymentStatus
		wantErr    bool
	}{
		{name: "succeeded", status: http.StatusOK, body: `{"status":"succeeded","processor_ref":"tr_1"}`, wantStatus: ports.PaymentSucceeded},
		{name: "declined in body", status: http.StatusOK, body: `{"status":"declined","reason":"insufficient funds"}`, wantStatus: ports.PaymentDeclined},
		{name: "payment required", status: http.StatusPaymentRequired, body: `{"reason":"card declined"}`, wantStatus: ports.PaymentDeclined},
		{name: "unprocessable", status: http.StatusUnprocessableEntity, body: ``, wantStatus: ports.PaymentDeclined},
		{name: "key in progress is unknown", status: http.StatusConflict, body: `{"reason":"request with this idempotency key in progress"}`, wantErr: true},
		{name: "server error is unknown", status: http.StatusBadGateway, body: ``, wantErr: true},
		{name: "success without ref is unknown", status: http.StatusCreated, body: `{}`, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/transfers", r.URL.Path)
				assert.Equal(t, "esc_abc", r.Header.Get("Idempotency-Key"))
				assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
				var body map[string]string
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "1000.00", body["amount"])
				assert.Equal(t, "influencer-1", body["to"])
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			p := NewHTTPProcessor(HTTPProcessorConfig{BaseURL: srv.URL + "/", APIKey: "secret"})
			res, err := p.Transfer(context.Background(), sampleRequest())
			if tc.wantErr {
				require.Error(t, err)
				if tc.status == http.StatusConflict {
					require.ErrorIs(t, err, ErrTransferInProgress)
				}
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantStatus, res.Status)
			if res.Status == ports.PaymentDeclined {
				require.NotEmpty(t, res.Reason)
			}
		})
	}
}

func TestHTTPProcessorTransportFailureIsUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewHTTPProcessor(HTTPProcessorConfig{BaseURL: url}).Transfer(context.Background(), sampleRequest())
	require.Error(t, err)
}

func TestSandboxProcessorIdempotentAndScripted(t *testing.T) {
	p := NewSandboxProcessor()
	req := sampleRequest()

	first, err := p.Transfer(context.Background(), req)
	require.NoError(t, err)
	second, err := p.Transfer(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, first.ProcessorRef, second.ProcessorRef)
	require.Equal(t, 2, p.Calls(req.IdempotencyKey))

	other := req
	other.IdempotencyKey = "esc_def"
	p.FailNext(other.IdempotencyKey, 1)
	_, err = p.Transfer(context.Background(), other)
	require.ErrorIs(t, err, ErrSandboxUnavailable)
	res, err := p.Transfer(context.Background(), other)
	require.NoError(t, err)
	require.Equal(t, ports.PaymentSucceeded, res.Status)

	lost := req
	lost.IdempotencyKey = "esc_lost"
	p.LoseResponses(lost.IdempotencyKey)
	_, err = p.Transfer(context.Background(), lost)
	require.Error(t, err)
	_, settled := p.Settled(lost.IdempotencyKey)
	require.True(t, settled)

	declined := req
	declined.IdempotencyKey = "esc_declined"
	declined.ToParty = "brand-1"
	p.DeclineTransfersTo("brand-1", "account closed")
	res, err = p.Transfer(context.Background(), declined)
	require.NoError(t, err)
	require.Equal(t, ports.PaymentDeclined, res.Status)
	_, settled = p.Settled(declined.IdempotencyKey)
	require.False(t, settled)
}
