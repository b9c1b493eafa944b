package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

// MinorUnits is the number of fractional digits every supported currency settles in.
const MinorUnits int32 = 2

func ParseCurrency(raw string) (Currency, error) {
	switch c := Currency(strings.ToUpper(strings.TrimSpace(raw))); c {
	case CurrencyUSD, CurrencyEUR, CurrencyGBP:
		return c, nil
	default:
		return "", fmt.Errorf("%w: unsupported currency %q", ErrInvalidSpec, raw)
	}
}

// ValidateAmount rejects non-positive amounts and amounts finer than a minor unit.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidSpec)
	}
	if !amount.Equal(amount.Round(MinorUnits)) {
		return fmt.Errorf("%w: amount %s has more than %d decimal places", ErrInvalidSpec, amount, MinorUnits)
	}
	return nil
}

// FeeSchedule is informational: fees are reported on transfer records but never
// deducted from ledger balances.
type FeeSchedule struct {
	PlatformBps   int64
	ProcessingBps int64
}

func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{PlatformBps: 500, ProcessingBps: 300}
}

type FeeBreakdown struct {
	PlatformFee   decimal.Decimal
	ProcessingFee decimal.Decimal
	Net           decimal.Decimal
}

func (f FeeSchedule) Apply(amount decimal.Decimal) FeeBreakdown {
	bps := decimal.NewFromInt(10000)
	platform := amount.Mul(decimal.NewFromInt(f.PlatformBps)).Div(bps).Round(MinorUnits)
	processing := amount.Mul(decimal.NewFromInt(f.ProcessingBps)).Div(bps).Round(MinorUnits)
	return FeeBreakdown{
		PlatformFee:   platform,
		ProcessingFee: processing,
		Net:           amount.Sub(platform).Sub(processing),
	}
}
