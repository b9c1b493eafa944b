package payments

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/viralforge/escrow-milestone-ledger/internal/domain"
	"github.com/viralforge/escrow-milestone-ledger/internal/ports"
)

var ErrSandboxUnavailable = errors.New("sandbox processor unavailable")

// SandboxProcessor settles transfers in memory. It is idempotent on the
// request key and lets tests script declines and transport failures.
type SandboxProcessor struct {
	mu        sync.Mutex
	completed map[string]ports.PaymentResult
	calls     map[string]int
	declineTo map[string]string
	failures  map[string]int
	lost      map[string]bool
}

func NewSandboxProcessor() *SandboxProcessor {
	return &SandboxProcessor{
		completed: map[string]ports.PaymentResult{},
		calls:     map[string]int{},
		declineTo: map[string]string{},
		failures:  map[string]int{},
		lost:      map[string]bool{},
	}
}

// DeclineTransfersTo makes every transfer to party fail definitively.
func (p *SandboxProcessor) DeclineTransfersTo(party, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.declineTo[party] = reason
}

// FailNext makes the next n attempts with key return a transport error
// before the processor sees them.
func (p *SandboxProcessor) FailNext(key string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[key] = n
}

// LoseResponses makes transfers to key succeed at the processor while the
// caller only ever sees an error.
func (p *SandboxProcessor) LoseResponses(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lost[key] = true
}

// Heal clears scripted failures and lost responses.
func (p *SandboxProcessor) Heal() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = map[string]int{}
	p.lost = map[string]bool{}
	p.declineTo = map[string]string{}
}

func (p *SandboxProcessor) Calls(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[key]
}

// Settled reports whether money actually moved for key.
func (p *SandboxProcessor) Settled(key string) (ports.PaymentResult, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	res, ok := p.completed[key]
	return res, ok
}

func (p *SandboxProcessor) Transfer(ctx context.Context, req domain.TransferRequest) (ports.PaymentResult, error) {
	if err := ctx.Err(); err != nil {
		return ports.PaymentResult{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[req.IdempotencyKey]++

	if n := p.failures[req.IdempotencyKey]; n > 0 {
		p.failures[req.IdempotencyKey] = n - 1
		return ports.PaymentResult{}, ErrSandboxUnavailable
	}
	if res, ok := p.completed[req.IdempotencyKey]; ok {
		if p.lost[req.IdempotencyKey] {
			return ports.PaymentResult{}, ErrSandboxUnavailable
		}
		return res, nil
	}
	if reason, ok := p.declineTo[req.ToParty]; ok {
		return ports.PaymentResult{Status: ports.PaymentDeclined, Reason: reason}, nil
	}
	res := ports.PaymentResult{Status: ports.PaymentSucceeded, ProcessorRef: "sbx_" + uuid.NewString()}
	p.completed[req.IdempotencyKey] = res
	if p.lost[req.IdempotencyKey] {
		return ports.PaymentResult{}, ErrSandboxUnavailable
	}
	return res, nil
}
