package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const DepositDescription = "Campaign deposit to escrow"

// Deposit records the payer's funds entering escrow when an account opens.
// It is written once, with the account, and never changes.
type Deposit struct {
	DepositID       string
	AccountID       string
	CampaignID      string
	PayerID         string
	Amount          decimal.Decimal
	Currency        Currency
	PaymentMethodID string
	Description     string
	CreatedAt       time.Time
}

func NewDeposit(account EscrowAccount, depositID, paymentMethodID string) Deposit {
	return Deposit{
		DepositID:       depositID,
		AccountID:       account.AccountID,
		CampaignID:      account.CampaignID,
		PayerID:         account.PayerID,
		Amount:          account.Total,
		Currency:        account.Currency,
		PaymentMethodID: paymentMethodID,
		Description:     DepositDescription,
		CreatedAt:       account.CreatedAt,
	}
}
