package gateway

import (
	"context"
	"strings"

	"ventureflow/internal/config"
	apperrors "ventureflow/internal/errors"
	"ventureflow/internal/models"
)

// BankTransfer issues a static reference and the escrow account details. Funds
// arrive off-band and are confirmed manually.
type BankTransfer struct {
	cfg config.BankConfig
}

func NewBankTransfer(cfg config.BankConfig) *BankTransfer {
	return &BankTransfer{cfg: cfg}
}

func (b *BankTransfer) Name() string {
	return models.ProviderBank
}

// Reference derives the payer's transfer reference from the intent id.
func (b *BankTransfer) Reference(intentID string) string {
	hex := strings.ReplaceAll(intentID, "-", "")
	if len(hex) > 8 {
		hex = hex[:8]
	}
	return "BANK-" + strings.ToUpper(hex)
}

func (b *BankTransfer) CreatePayment(ctx context.Context, req Request) (*Redirect, error) {
	if !req.Amount.IsPositive() {
		return nil, apperrors.ErrInvalidAmount
	}
	if req.IntentID == "" {
		return nil, apperrors.Validation("payment intent id is required")
	}
	ref := b.Reference(req.IntentID)
	return &Redirect{
		Reference: ref,
		Instructions: map[string]string{
			"account_name":   b.cfg.AccountName,
			"account_number": b.cfg.AccountNumber,
			"bank_name":      b.cfg.BankName,
			"branch_code":    b.cfg.BranchCode,
			"reference":      ref,
			"amount":         req.Amount.StringFixed(2),
			"currency":       req.Currency,
		},
	}, nil
}

// VerifyPayment always succeeds: confirmation happens outside the system.
func (b *BankTransfer) VerifyPayment(ctx context.Context, params map[string]string) (bool, error) {
	return true, nil
}

func (b *BankTransfer) GetPaymentStatus(ctx context.Context, providerPaymentID string) (models.PaymentStatus, error) {
	return models.PaymentStatusPending, nil
}
