package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/internportal"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// API client metrics
	ClientRequestsTotal   metric.Int64Counter
	ClientErrorsTotal     metric.Int64Counter
	ClientRequestDuration metric.Float64Histogram
	SessionInvalidations  metric.Int64Counter

	// Gateway metrics
	GatewayDecisionsTotal metric.Int64Counter
	GatewayLoginsTotal    metric.Int64Counter
	GatewaySessionsActive metric.Int64UpDownCounter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
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

	m.ClientRequestsTotal, _ = meter.Int64Counter(
		"portal.client.requests.total",
		metric.WithDescription("Total number of portal API requests"),
		metric.WithUnit("{request}"),
	)

	m.ClientErrorsTotal, _ = meter.Int64Counter(
		"portal.client.errors.total",
		metric.WithDescription("Total number of failed portal API requests by kind"),
		metric.WithUnit("{error}"),
	)

	m.ClientRequestDuration, _ = meter.Float64Histogram(
		"portal.client.request.duration",
		metric.WithDescription("Duration of portal API requests"),
		metric.WithUnit("ms"),
	)

	m.SessionInvalidations, _ = meter.Int64Counter(
		"portal.session.invalidations.total",
		metric.WithDescription("Total number of sessions destroyed after a 401 response"),
		metric.WithUnit("{session}"),
	)

	m.GatewayDecisionsTotal, _ = meter.Int64Counter(
		"portal.gateway.decisions.total",
		metric.WithDescription("Total number of access decisions made by the gateway"),
		metric.WithUnit("{decision}"),
	)

	m.GatewayLoginsTotal, _ = meter.Int64Counter(
		"portal.gateway.logins.total",
		metric.WithDescription("Total number of gateway login attempts"),
		metric.WithUnit("{login}"),
	)

	m.GatewaySessionsActive, _ = meter.Int64UpDownCounter(
		"portal.gateway.sessions.active",
		metric.WithDescription("Number of sessions created minus sessions ended by this gateway"),
		metric.WithUnit("{session}"),
	)

	return m
}
