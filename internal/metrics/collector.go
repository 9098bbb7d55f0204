// Package metrics records operational metrics for the settlement flow.
package metrics

import "time"

// Collector is what services record into.
type Collector interface {
	RecordOperationDuration(operation string, d time.Duration)
	RecordOperationResult(operation, result string)
	RecordEscrowTransition(to string)
	RecordOfferTransition(to string)
	RecordFraudAssessment(level string, score float64)
	RecordPaymentIntent(provider, status string)
	RecordCacheHit(cache string)
	RecordCacheMiss(cache string)
	RecordError(operation, code string)
}

// NoopCollector is a no-op implementation of Collector
type NoopCollector struct{}

func (NoopCollector) RecordOperationDuration(string, time.Duration) {}
func (NoopCollector) RecordOperationResult(string, string)          {}
func (NoopCollector) RecordEscrowTransition(string)                 {}
func (NoopCollector) RecordOfferTransition(string)                  {}
func (NoopCollector) RecordFraudAssessment(string, float64)         {}
func (NoopCollector) RecordPaymentIntent(string, string)            {}
func (NoopCollector) RecordCacheHit(string)                         {}
func (NoopCollector) RecordCacheMiss(string)                        {}
func (NoopCollector) RecordError(string, string)                    {}
