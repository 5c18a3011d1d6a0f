package internaltool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mcpvgw/vgateway/pkg/confirm"
	"github.com/mcpvgw/vgateway/pkg/gwconfig"
	"github.com/mcpvgw/vgateway/pkg/gwerrors"
	"github.com/mcpvgw/vgateway/pkg/gwtransport"
	"github.com/mcpvgw/vgateway/pkg/health"
	"github.com/mcpvgw/vgateway/pkg/security"
)

// reconnector is the slice of *connmgr.Manager the management plugin
// needs. Defined here rather than imported from pkg/connmgr so this
// package states its own minimal dependency instead of coupling to the
// manager's full surface.
type reconnector interface {
	Reconnect(ctx context.Context, provider string) error
}

// statusReporter is the slice of *health.Monitor the management plugin
// reports through.
type statusReporter interface {
	Summary() health.Summary
}

// ManagementPlugin is the gateway's own built-in internal provider: a
// `status` tool reporting every downstream's circuit-breaker state, and
// a confirm-gated `reconnect` tool that re-runs a single provider's
// handshake on demand instead of waiting for the health monitor's next
// poll (§4.4, §4.10).
type ManagementPlugin struct {
	manager  reconnector
	health   statusReporter
	confirms *confirm.Channel
}

// NewManagementPlugin constructs the plugin. confirms may be nil, in
// which case reconnect requests are denied outright (§4.9's fail-closed
// default applies here too: no confirmation channel means no
// confirmation).
func NewManagementPlugin(manager reconnector, monitor statusReporter, confirms *confirm.Channel) *ManagementPlugin {
	return &ManagementPlugin{manager: manager, health: monitor, confirms: confirms}
}

// Name implements Plugin.
func (*ManagementPlugin) Name() string { return "gateway" }

// Tools implements Plugin.
func (*ManagementPlugin) Tools() []ToolSpec {
	return []ToolSpec{
		{
			Name:        "status",
			Description: "Report every downstream provider's current circuit-breaker state.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        "reconnect",
			Description: "Force a downstream provider to re-run its handshake, after confirmation.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"provider":{"type":"string"}},"required":["provider"]}`),
		},
	}
}

// Call implements Plugin.
func (m *ManagementPlugin) Call(ctx context.Context, tool string, params map[string]any) (any, error) {
	switch tool {
	case "status":
		return m.status(), nil
	case "reconnect":
		return m.reconnect(ctx, params)
	default:
		return nil, gwerrors.New(gwerrors.KindToolNotFound, "gateway: unknown internal tool %q", tool)
	}
}

func (m *ManagementPlugin) status() health.Summary {
	if m.health == nil {
		return health.Summary{}
	}
	return m.health.Summary()
}

func (m *ManagementPlugin) reconnect(ctx context.Context, params map[string]any) (any, error) {
	provider, _ := params["provider"].(string)
	if provider == "" {
		return nil, gwerrors.New(gwerrors.KindInvalidRequest, "gateway reconnect: provider is required")
	}

	confirmer := m.confirms
	if confirmer == nil {
		return nil, gwerrors.New(gwerrors.KindNetworkBlocked, "gateway reconnect: no confirmation channel available")
	}
	ok, err := confirmer.Confirm(ctx, fmt.Sprintf("reconnect downstream provider %q?", provider))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, gwerrors.New(gwerrors.KindNetworkBlocked, "gateway reconnect: not confirmed")
	}

	if err := m.manager.Reconnect(ctx, provider); err != nil {
		return nil, err
	}
	return map[string]any{"provider": provider, "reconnected": true}, nil
}

// Factory wraps next so a gwconfig.Provider of Kind internal is served
// from host's registered plugins instead of spawning or dialing
// anything; every other kind passes through to next unchanged (§4.2,
// §4.4 extended to the internal provider kind).
func Factory(host *Host, next func(p gwconfig.Provider, v *security.Validator) (gwtransport.Transport, error)) func(gwconfig.Provider, *security.Validator) (gwtransport.Transport, error) {
	return func(p gwconfig.Provider, v *security.Validator) (gwtransport.Transport, error) {
		if p.Kind != gwconfig.ProviderInternal {
			return next(p, v)
		}
		plugin, ok := host.Lookup(p.Name)
		if !ok {
			return nil, errUnknownPlugin(p.Name)
		}
		return newTransport(plugin), nil
	}
}
