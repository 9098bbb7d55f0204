package fraud

import (
	"context"
	"log"
	"time"

	"ventureflow/internal/metrics"
	"ventureflow/internal/models"
	"ventureflow/internal/repositories"
	cachekeys "ventureflow/internal/utils/cache"
)

const (
	velocityWindow  = time.Hour
	deviceLookback  = 90 * 24 * time.Hour
	historyLogLimit = 200
	amountHistory   = 20
)

// HistoryProvider supplies a user's risk profile and counts attempts.
type HistoryProvider interface {
	Profile(ctx context.Context, userID string, now time.Time) (Profile, error)
	RecordAttempt(ctx context.Context, userID string, now time.Time) error
}

// StoreHistory builds profiles from the fraud audit log and completed payments.
// Known devices and locations come from low-risk assessments only.
type StoreHistory struct {
	logs     repositories.FraudLogRepository
	payments repositories.PaymentRepository
}

func NewStoreHistory(logs repositories.FraudLogRepository, payments repositories.PaymentRepository) *StoreHistory {
	if logs == nil || payments == nil {
		panic("fraud history requires fraud log and payment repositories")
	}
	return &StoreHistory{logs: logs, payments: payments}
}

func (h *StoreHistory) Profile(ctx context.Context, userID string, now time.Time) (Profile, error) {
	var p Profile

	recent, err := h.logs.CountByUserSince(ctx, userID, now.Add(-velocityWindow))
	if err != nil {
		return Profile{}, err
	}
	p.RecentAttempts = int(recent)

	// Only attempts that scored low vouch for a device or location; rejected ones
	// would otherwise whitelist themselves on retry.
	entries, err := h.logs.ListByUserLevelSince(ctx, userID, models.RiskLow, now.Add(-deviceLookback), historyLogLimit)
	if err != nil {
		return Profile{}, err
	}
	seen := map[string]bool{}
	for _, e := range entries {
		if e.UserAgent != "" && !seen[e.UserAgent] {
			seen[e.UserAgent] = true
			p.KnownDevices = append(p.KnownDevices, e.UserAgent)
		}
		if e.Latitude != nil && e.Longitude != nil {
			p.KnownLocations = append(p.KnownLocations, Location{Latitude: *e.Latitude, Longitude: *e.Longitude})
		}
	}

	completed, err := h.payments.ListCompletedByUser(ctx, userID, amountHistory)
	if err != nil {
		return Profile{}, err
	}
	for _, intent := range completed {
		p.HistoricalAmounts = append(p.HistoricalAmounts, intent.Amount.InexactFloat64())
	}
	return p, nil
}

// RecordAttempt is a no-op: the audit log row written per assessment is the count.
func (h *StoreHistory) RecordAttempt(ctx context.Context, userID string, now time.Time) error {
	return nil
}

// Cache is the subset of the Redis cache service used for profiles and counters.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
	Count(ctx context.Context, key string) (int64, error)
}

// CachedHistory serves profiles from Redis for ttl and keeps the attempt counter
// there. Redis failures fall through to the inner provider.
type CachedHistory struct {
	inner   HistoryProvider
	cache   Cache
	ttl     time.Duration
	metrics metrics.Collector
}

func NewCachedHistory(inner HistoryProvider, cache Cache, ttl time.Duration, m metrics.Collector) *CachedHistory {
	if inner == nil || cache == nil {
		panic("cached history requires an inner provider and a cache")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	if m == nil {
		m = metrics.NoopCollector{}
	}
	return &CachedHistory{inner: inner, cache: cache, ttl: ttl, metrics: m}
}

func (h *CachedHistory) Profile(ctx context.Context, userID string, now time.Time) (Profile, error) {
	key := cachekeys.GenerateKey(cachekeys.EntityFraudProfile, cachekeys.KeyUser, userID)

	var p Profile
	found, err := h.cache.Get(ctx, key, &p)
	if err != nil {
		log.Printf("[fraud] profile cache read failed for %s: %v", userID, err)
	}
	if found {
		h.metrics.RecordCacheHit("fraud_profile")
	} else {
		h.metrics.RecordCacheMiss("fraud_profile")
		p, err = h.inner.Profile(ctx, userID, now)
		if err != nil {
			return Profile{}, err
		}
		if err := h.cache.SetWithTTL(ctx, key, p, h.ttl); err != nil {
			log.Printf("[fraud] profile cache write failed for %s: %v", userID, err)
		}
	}

	velocityKey := cachekeys.GenerateKey(cachekeys.EntityFraudVelocity, cachekeys.KeyUser, userID)
	if n, err := h.cache.Count(ctx, velocityKey); err == nil {
		if int(n) > p.RecentAttempts {
			p.RecentAttempts = int(n)
		}
	} else {
		log.Printf("[fraud] velocity counter read failed for %s: %v", userID, err)
	}
	return p, nil
}

func (h *CachedHistory) RecordAttempt(ctx context.Context, userID string, now time.Time) error {
	key := cachekeys.GenerateKey(cachekeys.EntityFraudVelocity, cachekeys.KeyUser, userID)
	if _, err := h.cache.IncrWindow(ctx, key, velocityWindow); err != nil {
		return err
	}
	return h.inner.RecordAttempt(ctx, userID, now)
}
