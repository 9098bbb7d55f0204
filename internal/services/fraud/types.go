package fraud

import (
	"time"

	"ventureflow/internal/models"

	"github.com/shopspring/decimal"
)

// Attempt is a payment attempt under assessment.
type Attempt struct {
	UserID    string          `json:"userId" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency" validate:"required"`
	Provider  string          `json:"provider" validate:"required"`
	IPAddress string          `json:"ipAddress"`
	UserAgent string          `json:"userAgent"`
	Timestamp time.Time       `json:"timestamp"`
	Location  *Location       `json:"location,omitempty"`
}

// Location is a point in decimal degrees.
type Location struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Profile is what is known about the user's past behaviour. It may be stale.
type Profile struct {
	RecentAttempts    int        `json:"recentAttempts"`
	KnownDevices      []string   `json:"knownDevices"`
	KnownLocations    []Location `json:"knownLocations"`
	HistoricalAmounts []float64  `json:"historicalAmounts"`
}

// Assessment is the scorer's verdict.
type Assessment struct {
	Score   float64          `json:"score"`
	Risk    models.RiskLevel `json:"risk"`
	Reasons []string         `json:"reasons"`
}

// Rejected reports whether the attempt must be blocked.
func (a *Assessment) Rejected() bool {
	return a.Risk == models.RiskHigh
}

const (
	MediumRiskThreshold = 40.0
	HighRiskThreshold   = 70.0
)

// LevelFor maps a score to a risk level. Each tier includes its lower bound.
func LevelFor(score float64) models.RiskLevel {
	switch {
	case score >= HighRiskThreshold:
		return models.RiskHigh
	case score >= MediumRiskThreshold:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}
