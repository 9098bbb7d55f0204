package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OfferStatus string

// Offer statuses, in forward order
const (
	OfferStatusOffer     OfferStatus = "offer"
	OfferStatusAccepted  OfferStatus = "accepted"
	OfferStatusAgreement OfferStatus = "agreement"
	OfferStatusSigned    OfferStatus = "signed"
	OfferStatusPayment   OfferStatus = "payment"
	OfferStatusCompleted OfferStatus = "completed"
	OfferStatusDeclined  OfferStatus = "declined"
)

var offerRank = map[OfferStatus]int{
	OfferStatusOffer:     0,
	OfferStatusAccepted:  1,
	OfferStatusAgreement: 2,
	OfferStatusSigned:    3,
	OfferStatusPayment:   4,
	OfferStatusCompleted: 5,
}

// IsTerminal reports whether no further transition is possible.
func (s OfferStatus) IsTerminal() bool {
	return s == OfferStatusCompleted || s == OfferStatusDeclined
}

// InEscrow reports whether an escrow wallet backs the offer in this state.
func (s OfferStatus) InEscrow() bool {
	r, ok := offerRank[s]
	return ok && r >= offerRank[OfferStatusAccepted] && r < offerRank[OfferStatusCompleted]
}

// CanAdvanceTo reports whether moving from s to next is a legal forward step.
// The escrow lapse path back to offer is handled separately.
func (s OfferStatus) CanAdvanceTo(next OfferStatus) bool {
	if next == OfferStatusDeclined {
		return s == OfferStatusOffer
	}
	from, ok := offerRank[s]
	if !ok {
		return false
	}
	to, ok := offerRank[next]
	return ok && to == from+1
}

// InvestmentOffer is an investor's proposed terms for a startup.
type InvestmentOffer struct {
	ID               string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	StartupID        string          `gorm:"index;not null" json:"startupId"`
	InvestorID       string          `gorm:"index;not null" json:"investorId"`
	Amount           decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Currency         string          `gorm:"default:'ZAR'" json:"currency"`
	EquityPercentage decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"equityPercentage"`
	Status           OfferStatus     `gorm:"type:varchar(20);not null;default:'offer';index" json:"status"`
	StatusReason     string          `json:"statusReason,omitempty"`
	EscrowWalletID   *string         `gorm:"type:varchar(36)" json:"escrowWalletId,omitempty"`
	PaymentIntentID  *string         `gorm:"type:varchar(36)" json:"paymentIntentId,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

func (o *InvestmentOffer) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = OfferStatusOffer
	}
	return nil
}

// IsCounterparty reports whether userID is the investor or the startup.
func (o *InvestmentOffer) IsCounterparty(userID string) bool {
	return userID != "" && (userID == o.InvestorID || userID == o.StartupID)
}

// Counterparty returns the other side of the deal.
func (o *InvestmentOffer) Counterparty(userID string) string {
	if userID == o.InvestorID {
		return o.StartupID
	}
	return o.InvestorID
}
