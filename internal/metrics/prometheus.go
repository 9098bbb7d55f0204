package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Service metrics
	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "settlement_operation_duration_seconds",
			Help:    "Duration of settlement operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	operationResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_operation_results_total",
			Help: "Results of settlement operations",
		},
		[]string{"operation", "result"},
	)

	operationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_operation_errors_total",
			Help: "Errors by operation and code",
		},
		[]string{"operation", "code"},
	)

	// Business metrics
	escrowTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_transitions_total",
			Help: "Escrow wallet status transitions",
		},
		[]string{"status"},
	)

	offerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offer_transitions_total",
			Help: "Investment offer status transitions",
		},
		[]string{"status"},
	)

	fraudAssessments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fraud_assessments_total",
			Help: "Fraud assessments by risk level",
		},
		[]string{"level"},
	)

	fraudScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fraud_risk_score",
			Help:    "Distribution of fraud risk scores",
			Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	paymentIntents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_intents_total",
			Help: "Payment intent status changes by provider",
		},
		[]string{"provider", "status"},
	)

	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Cache lookups by cache and outcome",
		},
		[]string{"cache", "outcome"},
	)
)

// PrometheusCollector records into the default Prometheus registry.
type PrometheusCollector struct{}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{}
}

func (PrometheusCollector) RecordOperationDuration(operation string, d time.Duration) {
	operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (PrometheusCollector) RecordOperationResult(operation, result string) {
	operationResults.WithLabelValues(operation, result).Inc()
}

func (PrometheusCollector) RecordEscrowTransition(to string) {
	escrowTransitions.WithLabelValues(to).Inc()
}

func (PrometheusCollector) RecordOfferTransition(to string) {
	offerTransitions.WithLabelValues(to).Inc()
}

func (PrometheusCollector) RecordFraudAssessment(level string, score float64) {
	fraudAssessments.WithLabelValues(level).Inc()
	fraudScores.Observe(score)
}

func (PrometheusCollector) RecordPaymentIntent(provider, status string) {
	paymentIntents.WithLabelValues(provider, status).Inc()
}

func (PrometheusCollector) RecordCacheHit(cache string) {
	cacheLookups.WithLabelValues(cache, "hit").Inc()
}

func (PrometheusCollector) RecordCacheMiss(cache string) {
	cacheLookups.WithLabelValues(cache, "miss").Inc()
}

func (PrometheusCollector) RecordError(operation, code string) {
	operationErrors.WithLabelValues(operation, code).Inc()
}

// Middleware records request counts and latency per matched route.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		route := c.Route().Path
		httpRequestsTotal.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}
