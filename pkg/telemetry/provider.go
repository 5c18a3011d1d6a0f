package telemetry

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/mcpvgw/vgateway/pkg/gwerrors"
)

// Provider owns the gateway's meter and, when metrics are enabled, the
// Prometheus registry backing it. A disabled Provider hands out a noop
// meter so Recorder's calls are always safe, never nil-checked at the
// call site.
type Provider struct {
	meter   metric.Meter
	handler http.Handler
}

// NewProvider builds a Provider from cfg. With metrics disabled it
// returns a Provider backed by the OpenTelemetry noop meter, so wiring
// it into every package unconditionally costs nothing when telemetry is
// off (§4.9, §4.10).
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.MetricsEnabled {
		return &Provider{meter: noop.Meter{}}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindInternal, err, "telemetry: creating prometheus exporter")
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindInternal, err, "telemetry: building resource")
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)

	return &Provider{
		meter:   mp.Meter(cfg.ServiceName),
		handler: promHTTPHandler(),
	}, nil
}

// Handler returns the Prometheus scrape endpoint handler, or nil when
// metrics are disabled.
func (p *Provider) Handler() http.Handler { return p.handler }

// Meter returns the underlying OpenTelemetry meter, for callers that
// need instruments Recorder doesn't already cover.
func (p *Provider) Meter() metric.Meter { return p.meter }
