package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

const (
	ProviderPayFast = "payfast"
	ProviderStripe  = "stripe"
	ProviderBank    = "bank"
)

// PaymentIntent tracks one provider-routed payment for an offer.
// Reference equals the offer id so retries never create a second charge.
type PaymentIntent struct {
	ID                string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OfferID           string          `gorm:"type:varchar(36);uniqueIndex;not null" json:"offerId"`
	UserID            string          `gorm:"index;not null" json:"userId"`
	Amount            decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Currency          string          `gorm:"not null" json:"currency"`
	Provider          string          `gorm:"type:varchar(20);not null" json:"provider"`
	Status            PaymentStatus   `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	PaymentURL        string          `json:"paymentUrl,omitempty"`
	ProviderPaymentID string          `json:"providerPaymentId,omitempty"`
	Reference         string          `gorm:"index" json:"reference"`
	Instructions      JSON            `gorm:"type:text" json:"instructions,omitempty"`
	Attempts          int             `gorm:"default:0" json:"attempts"`
	IPAddress         string          `json:"-"`
	UserAgent         string          `json:"-"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

func (p *PaymentIntent) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = PaymentStatusPending
	}
	return nil
}

// IsRetryable reports whether a new provider attempt may reuse this intent.
func (p *PaymentIntent) IsRetryable() bool {
	return p.Status == PaymentStatusFailed || p.Status == PaymentStatusPending
}
