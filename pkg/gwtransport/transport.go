// Package gwtransport wires a Provider config (§3) to a live mcp-go
// client: stdio child process or streamable-HTTP, uniformly exposed as
// a Transport so pkg/downstream never branches on the variant (§4.2).
package gwtransport

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mcpvgw/vgateway/pkg/gwconfig"
	"github.com/mcpvgw/vgateway/pkg/gwerrors"
	"github.com/mcpvgw/vgateway/pkg/security"
)

// httpConnectTimeout bounds the initial HTTP/SSE dial (§4.2).
const httpConnectTimeout = 5 * time.Second

// Transport is the uniform surface pkg/downstream drives regardless of
// provider variant. It is a thin facade over *client.Client.
type Transport interface {
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// clientTransport adapts *client.Client to Transport; mcp-go's client
// already has exactly this method set, this type just names the seam so
// tests can substitute a fake without touching a real client.
type clientTransport struct {
	c *client.Client
}

func (t *clientTransport) Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	return t.c.Initialize(ctx, req)
}

func (t *clientTransport) ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	return t.c.ListTools(ctx, req)
}

func (t *clientTransport) CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return t.c.CallTool(ctx, req)
}

func (t *clientTransport) Close() error {
	return t.c.Close()
}

// NewStdio spawns p's command as a child process after validating it
// against the command allow-list (§4.2), and wraps the resulting stdio
// MCP client.
func NewStdio(p gwconfig.Provider, validator *security.Validator) (Transport, error) {
	if err := validator.ValidateCommand(p.Command, p.Args); err != nil {
		return nil, err
	}

	env := make([]string, 0, len(p.Env))
	for k, v := range p.Env {
		env = append(env, k+"="+v)
	}

	c, err := client.NewStdioMCPClient(p.Command, env, p.Args...)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindProviderUnavailable, err, "spawning stdio provider %q", p.Name)
	}
	return &clientTransport{c: c}, nil
}

// NewHTTP dials p's URL as a streamable-HTTP/SSE MCP client, attaching
// bearer auth when configured (§4.2).
func NewHTTP(p gwconfig.Provider) (Transport, error) {
	var opts []transport.StreamableHTTPCOption
	if p.Auth != nil {
		switch p.Auth.Kind {
		case gwconfig.AuthBearer, gwconfig.AuthOAuth:
			token := p.Auth.Token
			opts = append(opts, transport.WithHTTPHeaders(map[string]string{
				"Authorization": "Bearer " + token,
			}))
		case gwconfig.AuthNone:
		}
	}
	opts = append(opts, transport.WithHTTPTimeout(httpConnectTimeout))

	c, err := client.NewStreamableHttpClient(p.URL, opts...)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindProviderUnavailable, err, "dialing http provider %q", p.Name)
	}
	return &clientTransport{c: c}, nil
}

// New dispatches to NewStdio or NewHTTP based on p.Kind.
func New(p gwconfig.Provider, validator *security.Validator) (Transport, error) {
	switch p.Kind {
	case gwconfig.ProviderStdio:
		return NewStdio(p, validator)
	case gwconfig.ProviderHTTP:
		return NewHTTP(p)
	default:
		return nil, gwerrors.New(gwerrors.KindInvalidRequest, "provider %q: unknown kind %q", p.Name, p.Kind)
	}
}
