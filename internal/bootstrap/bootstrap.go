// Package bootstrap constructs the application's dependency graph from config.
package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	"ventureflow/internal/config"
	"ventureflow/internal/metrics"
	"ventureflow/internal/repositories"
	"ventureflow/internal/repositories/cache"
	"ventureflow/internal/services/agreement"
	"ventureflow/internal/services/escrow"
	"ventureflow/internal/services/fraud"
	"ventureflow/internal/services/gateway"
	"ventureflow/internal/services/investment"
	"ventureflow/internal/services/notification"
	"ventureflow/internal/services/payment"

	"gorm.io/gorm"
)

const notifyTimeout = 5 * time.Second

// App holds the constructed services and the resources they share.
type App struct {
	Config *config.Config
	DB     *gorm.DB
	// Cache is nil when Redis could not be reached at startup.
	Cache *cache.CacheService

	Escrow     escrow.Service
	Payments   payment.Service
	Fraud      fraud.Service
	Investment investment.Service

	closers []func() error
}

// New connects to the database and Redis and wires every service.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := repositories.OpenPostgres(cfg.Database)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, DB: db}
	a.closers = append(a.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	client := cache.NewRedisClient(cfg.Redis)
	cacheSvc := cache.NewCacheService(client, cfg.Fraud.HistoryCacheTTL)
	if err := cacheSvc.HealthCheck(ctx); err != nil {
		log.Printf("⚠️ Redis unavailable, fraud history will not be cached: %v", err)
		_ = client.Close()
	} else {
		log.Println("✅ Redis connected")
		a.Cache = cacheSvc
		a.closers = append(a.closers, cacheSvc.Close)
	}

	collector := metrics.NewPrometheusCollector()
	store := repositories.NewStore(db)

	registry, err := gateway.NewRegistryFromConfig(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	var history fraud.HistoryProvider = fraud.NewStoreHistory(store.FraudLogs(), store.Payments())
	if a.Cache != nil {
		history = fraud.NewCachedHistory(history, a.Cache, cfg.Fraud.HistoryCacheTTL, collector)
	}
	fraudOpts := []fraud.Option{fraud.WithMetrics(collector)}
	if cfg.Fraud.GeoIPURL != "" {
		fraudOpts = append(fraudOpts, fraud.WithGeoLocator(fraud.NewHTTPGeoLocator(cfg.Fraud.GeoIPURL, 0)))
	}
	a.Fraud = fraud.NewService(fraud.DefaultChecks(cfg.Fraud, time.Local), history, store.FraudLogs(), fraudOpts...)

	dispatcher, err := newDispatcher(cfg.Kafka)
	if err != nil {
		a.Close()
		return nil, err
	}
	if closer, ok := dispatcher.(interface{ Close() error }); ok {
		a.closers = append(a.closers, closer.Close)
	}

	// Closers run in reverse, so pending notifications drain before the dispatcher closes.
	notifier := notification.NewNotifier(dispatcher, notifyTimeout)
	a.closers = append(a.closers, func() error {
		notifier.Wait()
		return nil
	})

	a.Escrow = escrow.NewService(store, cfg.Escrow, escrow.WithMetrics(collector))
	a.Payments = payment.NewService(store, registry, a.Fraud, cfg.Payments, payment.WithMetrics(collector))
	a.Investment = investment.NewService(store, a.Escrow, a.Payments, agreement.NewGenerator(),
		investment.WithNotifier(notifier),
		investment.WithMetrics(collector),
	)
	return a, nil
}

func newDispatcher(cfg config.KafkaConfig) (notification.Dispatcher, error) {
	if len(cfg.Brokers) == 0 {
		log.Println("[notify] no Kafka brokers configured, notifications go to the log")
		return notification.NewLogDispatcher(), nil
	}
	d, err := notification.NewKafkaDispatcher(cfg.Brokers, cfg.Topic)
	if err != nil {
		return nil, fmt.Errorf("kafka dispatcher: %w", err)
	}
	log.Printf("[notify] publishing notifications to Kafka topic %s", cfg.Topic)
	return d, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("⚠️ close failed: %v", err)
		}
	}
	a.closers = nil
}

// Sweep expires lapsed escrow wallets and cancels stale payment intents once.
func (a *App) Sweep(ctx context.Context) (expired, cancelled int, err error) {
	expired, err = a.Escrow.Sweep(ctx, a.Config.Escrow.SweepBatch)
	if err != nil {
		return expired, 0, fmt.Errorf("escrow sweep: %w", err)
	}
	cancelled, err = a.Payments.ExpireStale(ctx, a.Config.Escrow.SweepBatch)
	if err != nil {
		return expired, cancelled, fmt.Errorf("payment expiry: %w", err)
	}
	return expired, cancelled, nil
}
