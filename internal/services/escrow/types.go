package escrow

import (
	"context"
	"time"

	"ventureflow/internal/models"

	"github.com/shopspring/decimal"
)

// SystemActor identifies transitions made by the service itself.
const SystemActor = "system"

// Requirement identifiers used by the investment flow
const (
	RequirementAgreementSigned = "agreement_signed"
	RequirementPaymentCaptured = "payment_captured"
)

// CreateInput describes a new wallet.
type CreateInput struct {
	OfferID    *string
	StartupID  string
	InvestorID string
	Amount     decimal.Decimal
	Currency   string
	TTL        time.Duration
	Condition  *models.ReleaseCondition
}

// Outcome is published after a wallet leaves pending and the change is committed.
type Outcome struct {
	Wallet  *models.EscrowWallet
	Status  models.EscrowStatus
	ActorID string
}

// OutcomeListener reacts to committed wallet outcomes. An error means the follow-up
// must be reconciled later; the ledger itself is never rolled back.
type OutcomeListener interface {
	OnEscrowOutcome(ctx context.Context, outcome Outcome) error
}

// OutcomeListenerFunc adapts a function to OutcomeListener.
type OutcomeListenerFunc func(ctx context.Context, outcome Outcome) error

func (f OutcomeListenerFunc) OnEscrowOutcome(ctx context.Context, outcome Outcome) error {
	return f(ctx, outcome)
}

// Progress is how far a pending wallet is through its window.
type Progress struct {
	ElapsedFraction float64       `json:"elapsedFraction"`
	Remaining       time.Duration `json:"remaining"`
}

// ProgressAt reports the wallet's window progress at now, clamped to [0, 1].
func ProgressAt(w *models.EscrowWallet, now time.Time) Progress {
	window := w.ExpiresAt.Sub(w.CreatedAt)
	if window <= 0 {
		return Progress{ElapsedFraction: 1}
	}
	fraction := float64(now.Sub(w.CreatedAt)) / float64(window)
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	remaining := w.ExpiresAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return Progress{ElapsedFraction: fraction, Remaining: remaining}
}

// DefaultCondition is the release condition used for investment offers.
func DefaultCondition() models.ReleaseCondition {
	return models.ReleaseCondition{
		Type:         models.ConditionDelivery,
		Description:  "Signed agreement and captured payment",
		Requirements: models.StringList{RequirementAgreementSigned, RequirementPaymentCaptured},
	}
}
