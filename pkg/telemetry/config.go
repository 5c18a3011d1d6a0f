// Package telemetry wires the gateway's call counters, latency
// histograms, and provider-state gauges into an OpenTelemetry meter,
// exported over Prometheus's pull endpoint (§4.10 — SPEC_FULL
// supplement, grounded on the teacher's telemetry.NewProvider(ctx, cfg)
// entry point used from its serve command).
package telemetry

import "github.com/mcpvgw/vgateway/pkg/gwerrors"

// Config controls whether metrics collection is enabled and under what
// service identity it reports.
type Config struct {
	ServiceName    string
	ServiceVersion string
	MetricsEnabled bool
}

// DefaultConfig returns metrics disabled by default; operators opt in
// explicitly (§4.9's fail-closed-by-default posture extended to
// observability: an unconfigured gateway emits no metrics rather than
// guessing an exporter target).
func DefaultConfig() Config {
	return Config{
		ServiceName:    "vgateway",
		ServiceVersion: "dev",
		MetricsEnabled: false,
	}
}

// Validate reports configuration errors before a Provider is built.
func (c Config) Validate() error {
	if c.MetricsEnabled && c.ServiceName == "" {
		return gwerrors.New(gwerrors.KindInvalidRequest, "telemetry: serviceName is required when metrics are enabled")
	}
	return nil
}
