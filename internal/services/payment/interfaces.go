package payment

import (
	"context"
	"net/url"

	"ventureflow/internal/models"
	"ventureflow/internal/services/fraud"
	"ventureflow/internal/services/gateway"

	"github.com/shopspring/decimal"
)

// Service defines the payment service interface
type Service interface {
	// Initiate creates or reuses the offer's payment intent after the fraud gate and
	// returns where the payer must go next.
	Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error)

	// HandleCallback verifies and applies an asynchronous provider notification.
	HandleCallback(ctx context.Context, provider string, form url.Values) (*CallbackResult, error)

	Get(ctx context.Context, id string) (*models.PaymentIntent, error)
	GetByOffer(ctx context.Context, offerID string) (*models.PaymentIntent, error)

	// ProviderStatus asks the provider for the intent's status without changing it.
	ProviderStatus(ctx context.Context, id string) (models.PaymentStatus, error)

	// ExpireStale cancels online intents left pending past the configured TTL.
	ExpireStale(ctx context.Context, limit int) (int, error)
}

// Dependencies required by the payment service
type FraudAssessor interface {
	Assess(ctx context.Context, attempt fraud.Attempt) (*fraud.Assessment, error)
}

type ProviderRegistry interface {
	Get(name string) (gateway.Provider, error)
}

// NotificationParser is implemented by providers that call back asynchronously.
type NotificationParser interface {
	ParseNotification(params map[string]string) (gateway.Notification, error)
}

// InitiateInput describes a payment attempt for an offer.
type InitiateInput struct {
	OfferID        string
	EscrowWalletID string
	UserID         string
	Amount         decimal.Decimal
	Currency       string
	Provider       string
	ItemName       string
	PayerName      string
	PayerEmail     string
	IPAddress      string
	UserAgent      string
}

type InitiateResult struct {
	Intent     *models.PaymentIntent `json:"intent"`
	Redirect   *gateway.Redirect     `json:"redirect"`
	Assessment *fraud.Assessment     `json:"assessment"`
}

// CallbackResult reports the intent after a notification. Changed is false for
// duplicate or out-of-order notifications.
type CallbackResult struct {
	Intent  *models.PaymentIntent
	Changed bool
}
