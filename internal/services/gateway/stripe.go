package gateway

import (
	"context"

	apperrors "ventureflow/internal/errors"
	"ventureflow/internal/models"
)

// Stripe is a declared provider without an implementation. Every operation fails
// with a not implemented error and the registry refuses to register it.
type Stripe struct{}

func (Stripe) Name() string {
	return models.ProviderStripe
}

func (Stripe) CreatePayment(ctx context.Context, req Request) (*Redirect, error) {
	return nil, apperrors.NotImplemented("stripe payment provider")
}

func (Stripe) VerifyPayment(ctx context.Context, params map[string]string) (bool, error) {
	return false, apperrors.NotImplemented("stripe payment provider")
}

func (Stripe) GetPaymentStatus(ctx context.Context, providerPaymentID string) (models.PaymentStatus, error) {
	return "", apperrors.NotImplemented("stripe payment provider")
}
