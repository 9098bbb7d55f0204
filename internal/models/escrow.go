package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type EscrowStatus string

const (
	EscrowStatusPending  EscrowStatus = "pending"
	EscrowStatusReleased EscrowStatus = "released"
	EscrowStatusReversed EscrowStatus = "reversed"
	EscrowStatusExpired  EscrowStatus = "expired"
)

// IsTerminal reports whether the wallet has left pending.
func (s EscrowStatus) IsTerminal() bool {
	return s == EscrowStatusReleased || s == EscrowStatusReversed || s == EscrowStatusExpired
}

type ConditionType string

const (
	ConditionMilestone ConditionType = "milestone"
	ConditionDelivery  ConditionType = "delivery"
	ConditionTime      ConditionType = "time"
)

// ReleaseCondition is embedded in the wallet row.
type ReleaseCondition struct {
	Type         ConditionType `gorm:"column:condition_type;type:varchar(20);not null;default:'delivery'" json:"type"`
	Description  string        `gorm:"column:condition_description" json:"description"`
	Requirements StringList    `gorm:"column:condition_requirements;type:text" json:"requirements"`
	Deadline     *time.Time    `gorm:"column:condition_deadline" json:"deadline,omitempty"`
}

// EscrowWallet holds committed investor funds until release, reversal or expiry.
type EscrowWallet struct {
	ID              string           `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OfferID         *string          `gorm:"type:varchar(36);index" json:"offerId,omitempty"`
	StartupID       string           `gorm:"index;not null" json:"startupId"`
	InvestorID      string           `gorm:"index;not null" json:"investorId"`
	Amount          decimal.Decimal  `gorm:"type:decimal(20,2);not null" json:"amount"`
	Currency        string           `gorm:"default:'ZAR'" json:"currency"`
	Status          EscrowStatus     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Condition       ReleaseCondition `gorm:"embedded" json:"condition"`
	PaymentIntentID *string          `gorm:"type:varchar(36)" json:"paymentIntentId,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	ExpiresAt       time.Time        `gorm:"index;not null" json:"expiresAt"`
	ClosedAt        *time.Time       `json:"closedAt,omitempty"`
	ClosedBy        string           `json:"closedBy,omitempty"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

func (w *EscrowWallet) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return nil
}

// IsCounterparty reports whether userID is the investor or the startup.
func (w *EscrowWallet) IsCounterparty(userID string) bool {
	return userID != "" && (userID == w.InvestorID || userID == w.StartupID)
}

// EscrowRequirement records completion of a milestone or deliverable.
type EscrowRequirement struct {
	ID          uint      `gorm:"primarykey" json:"-"`
	WalletID    string    `gorm:"type:varchar(36);uniqueIndex:idx_wallet_requirement;not null" json:"walletId"`
	Requirement string    `gorm:"uniqueIndex:idx_wallet_requirement;not null" json:"requirement"`
	CompletedBy string    `json:"completedBy"`
	CompletedAt time.Time `json:"completedAt"`
}

type LedgerEntryType string

const (
	LedgerEntryHold     LedgerEntryType = "hold"
	LedgerEntryRelease  LedgerEntryType = "release"
	LedgerEntryReversal LedgerEntryType = "reversal"
	LedgerEntryExpiry   LedgerEntryType = "expiry"
)

// EscrowLedgerEntry is the append-only audit trail of wallet movements.
type EscrowLedgerEntry struct {
	ID         string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	WalletID   string          `gorm:"type:varchar(36);index;not null" json:"walletId"`
	EntryType  LedgerEntryType `gorm:"type:varchar(20);not null" json:"entryType"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	ActorID    string          `json:"actorId"`
	Metadata   JSON            `gorm:"type:text" json:"metadata,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

func (e *EscrowLedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
