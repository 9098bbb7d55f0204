package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AgreementDocument freezes the offer terms at the moment the agreement is drafted.
type AgreementDocument struct {
	OfferID          string          `gorm:"primaryKey;type:varchar(36)" json:"offerId"`
	StartupID        string          `json:"startupId"`
	InvestorID       string          `json:"investorId"`
	Amount           decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Currency         string          `json:"currency"`
	EquityPercentage decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"equityPercentage"`
	ContentType      string          `json:"contentType"`
	Content          []byte          `json:"-"`
	ContentHash      string          `json:"contentHash"`
	InvestorSignedAt *time.Time      `json:"investorSignedAt,omitempty"`
	StartupSignedAt  *time.Time      `json:"startupSignedAt,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// FullySigned reports whether both parties have signed.
func (a *AgreementDocument) FullySigned() bool {
	return a.InvestorSignedAt != nil && a.StartupSignedAt != nil
}

// Matches reports whether the frozen terms still equal the offer's terms.
func (a *AgreementDocument) Matches(o *InvestmentOffer) bool {
	return a.Amount.Equal(o.Amount) && a.EquityPercentage.Equal(o.EquityPercentage) &&
		a.InvestorID == o.InvestorID && a.StartupID == o.StartupID
}
