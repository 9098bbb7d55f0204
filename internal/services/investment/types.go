package investment

import (
	"github.com/shopspring/decimal"
)

// ProposeInput is an investor's offer to a startup.
type ProposeInput struct {
	InvestorID       string
	StartupID        string
	Amount           decimal.Decimal
	Currency         string
	EquityPercentage decimal.Decimal
}

// PaymentRequest carries the payer details for a payment attempt.
type PaymentRequest struct {
	Provider   string
	ItemName   string
	PayerName  string
	PayerEmail string
	IPAddress  string
	UserAgent  string
}

// Notifier delivers fire-and-forget messages to users.
type Notifier interface {
	Notify(template string, vars map[string]string, userIDs ...string)
}

type noopNotifier struct{}

func (noopNotifier) Notify(string, map[string]string, ...string) {}

// User-visible explanations attached to an offer that returned to offer status.
const (
	ReasonEscrowExpired  = "The escrow window lapsed before the investment completed. The offer can be accepted again."
	ReasonEscrowReversed = "The escrow was cancelled before the investment completed. The offer can be accepted again."
)
