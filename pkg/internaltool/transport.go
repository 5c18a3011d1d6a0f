package internaltool

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mcpvgw/vgateway/pkg/gwerrors"
	"github.com/mcpvgw/vgateway/pkg/gwtransport"
)

// transport adapts a Plugin to gwtransport.Transport, so pkg/downstream
// and pkg/connmgr drive an internal plugin through the exact same
// Initialize/ListTools/CallTool/Close surface as a spawned or dialed
// provider (§4.2, §4.4).
type transport struct {
	plugin Plugin
}

func newTransport(p Plugin) gwtransport.Transport {
	return &transport{plugin: p}
}

// Initialize is a no-op handshake: an in-process plugin has nothing to
// dial and nothing to fail.
func (t *transport) Initialize(context.Context, mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	result := &mcp.InitializeResult{}
	result.ProtocolVersion = "2024-11-05"
	result.ServerInfo = mcp.Implementation{Name: t.plugin.Name(), Version: "internal"}
	return result, nil
}

// ListTools reports the plugin's fixed tool set.
func (t *transport) ListTools(context.Context, mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	specs := t.plugin.Tools()
	tools := make([]mcp.Tool, 0, len(specs))
	for _, s := range specs {
		schema := s.InputSchema
		if len(schema) == 0 {
			schema = []byte(`{"type":"object"}`)
		}
		tools = append(tools, mcp.NewToolWithRawSchema(s.Name, s.Description, schema))
	}
	return &mcp.ListToolsResult{Tools: tools}, nil
}

// CallTool dispatches to the plugin and marshals its return value into
// a single text content block, mirroring how the sandbox's own tool
// calls and the gateway's run/code handlers render a Go value as the
// MCP wire result.
func (t *transport) CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := t.plugin.Call(ctx, req.Params.Name, req.GetArguments())
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewTextContent(err.Error())},
			IsError: true,
		}, nil
	}
	return toolResultFor(result)
}

// Close is a no-op: an in-process plugin holds no transport to tear
// down.
func (t *transport) Close() error { return nil }

func toolResultFor(value any) (*mcp.CallToolResult, error) {
	if s, ok := value.(string); ok {
		return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(s)}}, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindInternal, err, "marshaling internal tool result")
	}
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(string(raw))}}, nil
}
