// Package gateway adapts external payment providers behind one capability set.
package gateway

import (
	"context"

	"ventureflow/internal/models"

	"github.com/shopspring/decimal"
)

// Provider is implemented by every payment gateway.
type Provider interface {
	Name() string
	CreatePayment(ctx context.Context, req Request) (*Redirect, error)
	VerifyPayment(ctx context.Context, params map[string]string) (bool, error)
	GetPaymentStatus(ctx context.Context, providerPaymentID string) (models.PaymentStatus, error)
}

// Request is a provider-neutral payment request.
type Request struct {
	IntentID   string
	Reference  string
	Amount     decimal.Decimal
	Currency   string
	ItemName   string
	PayerName  string
	PayerEmail string
	CustomStr  []string
	CustomInt  []int
}

// Redirect tells the caller where to send the payer, or for off-band providers,
// what the payer must do.
type Redirect struct {
	URL          string            `json:"url,omitempty"`
	Reference    string            `json:"reference"`
	Instructions map[string]string `json:"instructions,omitempty"`
}

// Notification is a verified asynchronous callback from a provider.
type Notification struct {
	Reference         string
	ProviderPaymentID string
	Status            models.PaymentStatus
	AmountGross       decimal.Decimal
}
