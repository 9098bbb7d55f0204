package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// FraudLog is the audit record written for every risk assessment.
type FraudLog struct {
	ID           uint            `gorm:"primarykey" json:"id"`
	UserID       string          `gorm:"index;not null" json:"userId"`
	Score        float64         `json:"score"`
	Level        RiskLevel       `gorm:"type:varchar(10)" json:"level"`
	FailedChecks StringList      `gorm:"type:text" json:"failedChecks"`
	IPAddress    string          `json:"ipAddress"`
	UserAgent    string          `json:"userAgent"`
	Latitude     *float64        `json:"latitude,omitempty"`
	Longitude    *float64        `json:"longitude,omitempty"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,2)" json:"amount"`
	Currency     string          `json:"currency"`
	Provider     string          `json:"provider"`
	CreatedAt    time.Time       `gorm:"index" json:"createdAt"`
}
