package fraud

import (
	"context"
	"math"
	"strings"
	"time"

	"ventureflow/internal/config"
	"ventureflow/internal/models"
)

// Check is one independent, weighted fraud rule. Evaluate returns true when the
// attempt passes.
type Check interface {
	Name() string
	Weight() float64
	Evaluate(ctx context.Context, attempt Attempt, profile Profile) bool
}

// AmountCheck fails amounts above a ceiling.
type AmountCheck struct {
	Max float64
}

func (AmountCheck) Name() string     { return "Amount Check" }
func (AmountCheck) Weight() float64 { return 25 }
func (c AmountCheck) Evaluate(_ context.Context, a Attempt, _ Profile) bool {
	return a.Amount.InexactFloat64() <= c.Max
}

// VelocityCheck fails when the user has made too many attempts in the last hour.
type VelocityCheck struct {
	MaxPerHour int
}

func (VelocityCheck) Name() string     { return "Velocity Check" }
func (VelocityCheck) Weight() float64 { return 20 }
func (c VelocityCheck) Evaluate(_ context.Context, _ Attempt, p Profile) bool {
	return p.RecentAttempts < c.MaxPerHour
}

// LocationCheck fails when the attempt is far from every known location. Missing
// geolocation data passes.
type LocationCheck struct {
	MaxDistanceKm float64
}

func (LocationCheck) Name() string     { return "Location Check" }
func (LocationCheck) Weight() float64 { return 15 }
func (c LocationCheck) Evaluate(_ context.Context, a Attempt, p Profile) bool {
	if a.Location == nil || len(p.KnownLocations) == 0 {
		return true
	}
	for _, known := range p.KnownLocations {
		if DistanceKm(*a.Location, known) <= c.MaxDistanceKm {
			return true
		}
	}
	return false
}

// DeviceCheck fails an unseen user agent once the user has device history.
type DeviceCheck struct{}

func (DeviceCheck) Name() string     { return "Device Check" }
func (DeviceCheck) Weight() float64 { return 10 }
func (DeviceCheck) Evaluate(_ context.Context, a Attempt, p Profile) bool {
	if len(p.KnownDevices) == 0 {
		return true
	}
	for _, d := range p.KnownDevices {
		if d == a.UserAgent {
			return true
		}
	}
	return false
}

// TimeCheck fails attempts outside [StartHour, EndHour) local time. A window with
// StartHour > EndHour wraps past midnight; equal hours allow the whole day.
type TimeCheck struct {
	StartHour int
	EndHour   int
	Loc       *time.Location
}

func (TimeCheck) Name() string     { return "Time Check" }
func (TimeCheck) Weight() float64 { return 5 }
func (c TimeCheck) Evaluate(_ context.Context, a Attempt, _ Profile) bool {
	ts := a.Timestamp
	if c.Loc != nil {
		ts = ts.In(c.Loc)
	}
	h := ts.Hour()
	switch {
	case c.StartHour == c.EndHour:
		return true
	case c.StartHour < c.EndHour:
		return h >= c.StartHour && h < c.EndHour
	default:
		return h >= c.StartHour || h < c.EndHour
	}
}

// ProviderCheck fails providers outside the trusted set.
type ProviderCheck struct {
	Trusted []string
}

func (ProviderCheck) Name() string     { return "Provider Check" }
func (ProviderCheck) Weight() float64 { return 10 }
func (c ProviderCheck) Evaluate(_ context.Context, a Attempt, _ Profile) bool {
	return containsFold(c.Trusted, a.Provider)
}

// AmountPatternCheck fails amounts more than two standard deviations from the
// user's historical mean. Fewer than three historical amounts passes.
type AmountPatternCheck struct{}

func (AmountPatternCheck) Name() string     { return "Amount Pattern Check" }
func (AmountPatternCheck) Weight() float64 { return 10 }
func (AmountPatternCheck) Evaluate(_ context.Context, a Attempt, p Profile) bool {
	if len(p.HistoricalAmounts) < 3 {
		return true
	}
	mean, stddev := meanStdDev(p.HistoricalAmounts)
	return math.Abs(a.Amount.InexactFloat64()-mean) <= 2*stddev
}

// CurrencyCheck fails unsupported currencies.
type CurrencyCheck struct {
	Allowed []string
}

func (CurrencyCheck) Name() string     { return "Currency Check" }
func (CurrencyCheck) Weight() float64 { return 5 }
func (c CurrencyCheck) Evaluate(_ context.Context, a Attempt, _ Profile) bool {
	return containsFold(c.Allowed, a.Currency)
}

// DefaultChecks returns the standard rule set configured from cfg.
func DefaultChecks(cfg config.FraudConfig, loc *time.Location) []Check {
	return []Check{
		AmountCheck{Max: cfg.MaxAmount},
		VelocityCheck{MaxPerHour: cfg.MaxAttemptsHour},
		LocationCheck{MaxDistanceKm: cfg.MaxDistanceKm},
		DeviceCheck{},
		TimeCheck{StartHour: cfg.AllowedStartHour, EndHour: cfg.AllowedEndHour, Loc: loc},
		ProviderCheck{Trusted: []string{models.ProviderPayFast, models.ProviderBank}},
		AmountPatternCheck{},
		CurrencyCheck{Allowed: []string{"ZAR", "USD"}},
	}
}

const earthRadiusKm = 6371.0

// DistanceKm is the great-circle distance between two points.
func DistanceKm(a, b Location) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

func meanStdDev(values []float64) (float64, float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}
