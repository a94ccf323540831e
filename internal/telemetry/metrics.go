package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/unirating"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Auth flow metrics
	AuthOperationsTotal metric.Int64Counter

	// Password hashing metrics
	PasswordHashDuration metric.Float64Histogram
	PasswordHashWaiting  metric.Int64UpDownCounter

	// Session metrics
	SessionsCreatedTotal     metric.Int64Counter
	SessionsDestroyedTotal   metric.Int64Counter
	SessionsRegeneratedTotal metric.Int64Counter
	SessionsPrunedTotal      metric.Int64Counter

	// HTTP edge metrics
	CORSRejectedTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary.
// Instruments come from the global meter provider, which is a no-op until InitTelemetry runs.
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.AuthOperationsTotal, _ = meter.Int64Counter(
		"unirating.auth.operations.total",
		metric.WithDescription("Total number of auth operations by operation and outcome"),
		metric.WithUnit("{operation}"),
	)

	m.PasswordHashDuration, _ = meter.Float64Histogram(
		"unirating.auth.password_hash.duration",
		metric.WithDescription("Duration of bcrypt hash and compare operations on the worker pool"),
		metric.WithUnit("ms"),
	)

	m.PasswordHashWaiting, _ = meter.Int64UpDownCounter(
		"unirating.auth.password_hash.waiting",
		metric.WithDescription("Number of requests waiting for a hashing worker"),
		metric.WithUnit("{request}"),
	)

	m.SessionsCreatedTotal, _ = meter.Int64Counter(
		"unirating.sessions.created.total",
		metric.WithDescription("Total number of sessions created"),
		metric.WithUnit("{session}"),
	)

	m.SessionsDestroyedTotal, _ = meter.Int64Counter(
		"unirating.sessions.destroyed.total",
		metric.WithDescription("Total number of sessions destroyed by logout or orphan cleanup"),
		metric.WithUnit("{session}"),
	)

	m.SessionsRegeneratedTotal, _ = meter.Int64Counter(
		"unirating.sessions.regenerated.total",
		metric.WithDescription("Total number of sessions regenerated after a credential change"),
		metric.WithUnit("{session}"),
	)

	m.SessionsPrunedTotal, _ = meter.Int64Counter(
		"unirating.sessions.pruned.total",
		metric.WithDescription("Total number of expired sessions deleted by the pruner"),
		metric.WithUnit("{session}"),
	)

	m.CORSRejectedTotal, _ = meter.Int64Counter(
		"unirating.http.cors_rejected.total",
		metric.WithDescription("Total number of requests rejected because their origin is not allowed"),
		metric.WithUnit("{request}"),
	)

	return m
}
