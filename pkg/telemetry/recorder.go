package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/mcpvgw/vgateway/pkg/gwerrors"
)

// Recorder is the instrument set the gateway server uses to report
// activity: `run` records each downstream call's count and latency, and
// `code` records each sandbox run's outcome. RecordProviderState has no
// caller in the gateway. It is constructed once from a Provider's meter,
// mirroring the teacher's practice of building named instruments up
// front rather than creating them ad hoc per call site.
type Recorder struct {
	toolCalls        metric.Int64Counter
	toolCallDuration metric.Float64Histogram
	providerState    metric.Int64Gauge
	sandboxRuns      metric.Int64Counter
}

// NewRecorder builds the fixed instrument set from p's meter. An error
// here means the underlying SDK rejected an instrument name or unit,
// which is a programmer error, not a runtime condition — callers
// should treat it as fatal at startup.
func NewRecorder(p *Provider) (*Recorder, error) {
	m := p.Meter()

	toolCalls, err := m.Int64Counter("vgateway.tool.calls",
		metric.WithDescription("Total dispatched tool calls, by provider and outcome."))
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindInternal, err, "telemetry: creating tool.calls counter")
	}

	toolCallDuration, err := m.Float64Histogram("vgateway.tool.call.duration",
		metric.WithDescription("Tool call latency in seconds."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindInternal, err, "telemetry: creating tool.call.duration histogram")
	}

	providerState, err := m.Int64Gauge("vgateway.provider.state",
		metric.WithDescription("Downstream provider circuit-breaker state (0=closed, 1=open, 2=half-open)."))
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindInternal, err, "telemetry: creating provider.state gauge")
	}

	sandboxRuns, err := m.Int64Counter("vgateway.sandbox.runs",
		metric.WithDescription("Total sandboxed code executions, by outcome."))
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindInternal, err, "telemetry: creating sandbox.runs counter")
	}

	return &Recorder{
		toolCalls:        toolCalls,
		toolCallDuration: toolCallDuration,
		providerState:    providerState,
		sandboxRuns:      sandboxRuns,
	}, nil
}

// RecordToolCall reports one dispatched tool call's outcome and
// latency, keyed by provider.
func (r *Recorder) RecordToolCall(ctx context.Context, provider string, success bool, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		providerAttr(provider),
		outcomeAttr(success),
	)
	r.toolCalls.Add(ctx, 1, attrs)
	r.toolCallDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// ProviderStateCode is the gauge value recorded for a circuit-breaker
// state; named constants keep call sites from hand-coding magic
// numbers that must stay in sync with the gauge's description.
type ProviderStateCode int64

const (
	ProviderStateClosed ProviderStateCode = iota
	ProviderStateOpen
	ProviderStateHalfOpen
)

// RecordProviderState reports provider's current circuit-breaker state.
func (r *Recorder) RecordProviderState(ctx context.Context, provider string, state ProviderStateCode) {
	r.providerState.Record(ctx, int64(state), metric.WithAttributes(providerAttr(provider)))
}

// RecordSandboxRun reports one sandboxed `code` execution's outcome.
func (r *Recorder) RecordSandboxRun(ctx context.Context, success bool) {
	r.sandboxRuns.Add(ctx, 1, metric.WithAttributes(outcomeAttr(success)))
}
