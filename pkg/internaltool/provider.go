// Package internaltool gives the gateway itself a uniform home among
// its downstream providers: an in-process "provider" whose tools are
// gateway management operations (connection status, forced reconnect)
// rather than a spawned or dialed MCP server. It exists so those
// operations are dispatched, audited, and surfaced through `find`/
// `run`/`code` exactly like any other tool, instead of needing a
// separate control-plane API (§4.4, §4.10 — SPEC_FULL supplement).
package internaltool

import (
	"context"
	"encoding/json"

	"github.com/mcpvgw/vgateway/pkg/gwerrors"
)

// ToolSpec describes one tool an internal Plugin exposes, shaped like
// catalog.ToolRecord's minimal surface so connmgr's catalog-merge logic
// doesn't need to know these tools are internal at all.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Plugin is one internal provider's full tool set plus dispatch.
type Plugin interface {
	// Name is the provider name this plugin appears under in qualified
	// tool names ("<name>:<tool>").
	Name() string
	Tools() []ToolSpec
	Call(ctx context.Context, tool string, params map[string]any) (any, error)
}

// Host is a registry of Plugins keyed by provider name.
type Host struct {
	plugins map[string]Plugin
}

// NewHost constructs an empty Host.
func NewHost() *Host {
	return &Host{plugins: make(map[string]Plugin)}
}

// Register adds p to the host, keyed by p.Name(). Registering two
// plugins under the same name replaces the first; callers are expected
// to register a fixed, known set at startup.
func (h *Host) Register(p Plugin) {
	h.plugins[p.Name()] = p
}

// Lookup returns the plugin registered under name, if any.
func (h *Host) Lookup(name string) (Plugin, bool) {
	p, ok := h.plugins[name]
	return p, ok
}

// Names returns every registered plugin's provider name.
func (h *Host) Names() []string {
	names := make([]string, 0, len(h.plugins))
	for name := range h.plugins {
		names = append(names, name)
	}
	return names
}

// errUnknownPlugin is returned by Transport construction when asked for
// a provider name the Host never registered.
func errUnknownPlugin(name string) error {
	return gwerrors.New(gwerrors.KindProviderUnavailable, "no internal tool plugin registered as %q", name)
}
