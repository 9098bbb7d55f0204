// Package fraud scores payment attempts against a weighted set of independent checks.
package fraud

import (
	"context"
	"log"
	"strings"
	"time"

	apperrors "ventureflow/internal/errors"
	"ventureflow/internal/metrics"
	"ventureflow/internal/models"
	"ventureflow/internal/repositories"
)

// Service assesses payment attempts.
type Service interface {
	Assess(ctx context.Context, attempt Attempt) (*Assessment, error)
}

type service struct {
	checks  []Check
	history HistoryProvider
	logs    repositories.FraudLogRepository
	geo     GeoLocator
	metrics metrics.Collector
	nowFn   func() time.Time
}

// Option customises the scorer.
type Option func(*service)

func WithGeoLocator(g GeoLocator) Option {
	return func(s *service) { s.geo = g }
}

func WithMetrics(m metrics.Collector) Option {
	return func(s *service) { s.metrics = m }
}

func WithClock(nowFn func() time.Time) Option {
	return func(s *service) { s.nowFn = nowFn }
}

// NewService builds a scorer over checks. Every assessment is written to logs.
func NewService(checks []Check, history HistoryProvider, logs repositories.FraudLogRepository, opts ...Option) Service {
	if history == nil {
		panic("history provider is required")
	}
	if logs == nil {
		panic("fraud log repository is required")
	}
	s := &service{
		checks:  checks,
		history: history,
		logs:    logs,
		metrics: metrics.NoopCollector{},
		nowFn:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) Assess(ctx context.Context, attempt Attempt) (*Assessment, error) {
	start := time.Now()
	defer func() { s.metrics.RecordOperationDuration("fraud.assess", time.Since(start)) }()

	if attempt.UserID == "" {
		return nil, apperrors.Validation("user id is required")
	}
	if attempt.Timestamp.IsZero() {
		attempt.Timestamp = s.nowFn()
	}
	attempt.Currency = strings.ToUpper(attempt.Currency)

	if attempt.Location == nil && s.geo != nil && attempt.IPAddress != "" {
		loc, err := s.geo.Locate(ctx, attempt.IPAddress)
		if err != nil {
			log.Printf("[fraud] geolocation unavailable for %s: %v", attempt.IPAddress, err)
		}
		attempt.Location = loc
	}

	profile, err := s.history.Profile(ctx, attempt.UserID, attempt.Timestamp)
	if err != nil {
		log.Printf("[fraud] history unavailable for user %s, scoring with empty profile: %v", attempt.UserID, err)
		profile = Profile{}
	}

	assessment := Score(ctx, s.checks, attempt, profile)

	s.audit(ctx, attempt, assessment)
	if err := s.history.RecordAttempt(ctx, attempt.UserID, attempt.Timestamp); err != nil {
		log.Printf("[fraud] failed to record attempt for user %s: %v", attempt.UserID, err)
	}

	s.metrics.RecordFraudAssessment(string(assessment.Risk), assessment.Score)
	if assessment.Risk != models.RiskLow {
		log.Printf("[fraud] %s risk for user %s: score=%.2f failed=%v", assessment.Risk, attempt.UserID, assessment.Score, assessment.Reasons)
	}
	return assessment, nil
}

// Score evaluates checks against the attempt. The score is the failed share of the
// total weight, scaled to [0, 100].
func Score(ctx context.Context, checks []Check, attempt Attempt, profile Profile) *Assessment {
	var total, failed float64
	reasons := []string{}
	for _, c := range checks {
		w := c.Weight()
		total += w
		if !c.Evaluate(ctx, attempt, profile) {
			failed += w
			reasons = append(reasons, c.Name())
		}
	}

	var score float64
	if total > 0 {
		score = 100 * failed / total
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return &Assessment{Score: score, Risk: LevelFor(score), Reasons: reasons}
}

func (s *service) audit(ctx context.Context, attempt Attempt, a *Assessment) {
	entry := &models.FraudLog{
		UserID:       attempt.UserID,
		Score:        a.Score,
		Level:        a.Risk,
		FailedChecks: models.StringList(a.Reasons),
		IPAddress:    attempt.IPAddress,
		UserAgent:    attempt.UserAgent,
		Amount:       attempt.Amount,
		Currency:     attempt.Currency,
		Provider:     attempt.Provider,
		CreatedAt:    attempt.Timestamp,
	}
	if attempt.Location != nil {
		lat, lon := attempt.Location.Latitude, attempt.Location.Longitude
		entry.Latitude = &lat
		entry.Longitude = &lon
	}
	if err := s.logs.Create(ctx, entry); err != nil {
		log.Printf("[fraud] failed to write audit log for user %s: %v", attempt.UserID, err)
	}
}
