// Package downstream implements the per-provider client: state machine,
// handshake, and the listTools/callTool/close surface the connection
// manager drives (§4.3).
package downstream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mcpvgw/vgateway/pkg/gwerrors"
	"github.com/mcpvgw/vgateway/pkg/gwtransport"
	"github.com/mcpvgw/vgateway/pkg/logger"
)

// State is a downstream client's connection lifecycle stage (§3, §4.3).
type State string

// Supported states.
const (
	StatePending      State = "pending"
	StateHandshaking  State = "handshaking"
	StateReady        State = "ready"
	StateDegraded     State = "degraded"
	StateFailed       State = "failed"
	StateClosed       State = "closed"
)

const handshakeTimeout = 10 * time.Second

// ClientInfo identifies the gateway to every downstream during handshake.
var ClientInfo = mcp.Implementation{Name: "vgateway", Version: "0.1.0"}

// ProtocolVersion is the MCP protocol version string the gateway
// advertises to downstreams. §9 Open Question: the teacher tracks
// "2024-11-05"; we keep that value and make it a var (not const) so a
// future config knob can override it without an API break.
var ProtocolVersion = "2024-11-05"

// Client owns one downstream provider's transport and tracks its state.
// All access to the transport and state is serialized through mu so a
// single provider's wire traffic is never interleaved across goroutines,
// matching §5's per-downstream serialization guarantee.
type Client struct {
	Provider string

	mu       sync.Mutex
	state    State
	lastErr  error
	lastUsed time.Time
	tr       gwtransport.Transport

	inflight int64
}

// New wraps an already-constructed transport in Pending state.
func New(provider string, tr gwtransport.Transport) *Client {
	return &Client{Provider: provider, state: StatePending, tr: tr, lastUsed: time.Now()}
}

// State returns the client's current state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the most recently recorded failure, if any.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Inflight returns the current count of in-progress calls.
func (c *Client) Inflight() int64 {
	return atomic.LoadInt64(&c.inflight)
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) setFailed(err error) {
	c.mu.Lock()
	c.state = StateFailed
	c.lastErr = err
	c.mu.Unlock()
}

// Handshake performs initialize + initialized against the transport,
// transitioning Pending -> Handshaking -> Ready or Failed (§4.3).
func (c *Client) Handshake(ctx context.Context) error {
	c.setState(StateHandshaking)

	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = ProtocolVersion
	req.Params.ClientInfo = ClientInfo
	req.Params.Capabilities = mcp.ClientCapabilities{}

	c.mu.Lock()
	_, err := c.tr.Initialize(ctx, req)
	c.mu.Unlock()
	if err != nil {
		wrapped := gwerrors.Wrap(gwerrors.KindProviderUnavailable, err, "handshake with provider %q", c.Provider)
		c.setFailed(wrapped)
		return wrapped
	}

	c.setState(StateReady)
	logger.Infow("downstream handshake complete", "provider", c.Provider)
	return nil
}

// ListTools issues tools/list. Per §4.3 this is called once on becoming
// Ready and again on explicit reload; callers outside that contract
// should go through the connection manager instead.
func (c *Client) ListTools(ctx context.Context) (*mcp.ListToolsResult, error) {
	if c.State() != StateReady && c.State() != StateDegraded {
		return nil, gwerrors.New(gwerrors.KindProviderUnavailable, "provider %q not ready", c.Provider)
	}

	c.mu.Lock()
	res, err := c.tr.ListTools(ctx, mcp.ListToolsRequest{})
	c.mu.Unlock()
	if err != nil {
		c.onCallError(err)
		return nil, gwerrors.Wrap(gwerrors.KindProviderUnavailable, err, "tools/list on provider %q", c.Provider)
	}
	c.lastUsed = time.Now()
	return res, nil
}

// CallTool forwards a tools/call, tracking inflight count and demoting
// the client to Degraded on a transport-level error (§4.3).
func (c *Client) CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state := c.State()
	if state != StateReady && state != StateDegraded {
		return nil, gwerrors.New(gwerrors.KindProviderUnavailable, "provider %q not ready (state=%s)", c.Provider, state)
	}

	atomic.AddInt64(&c.inflight, 1)
	defer atomic.AddInt64(&c.inflight, -1)

	c.mu.Lock()
	res, err := c.tr.CallTool(ctx, req)
	c.mu.Unlock()
	if err != nil {
		c.onCallError(err)
		return nil, gwerrors.Wrap(gwerrors.KindChildError, err, "tools/call on provider %q", c.Provider)
	}
	c.lastUsed = time.Now()
	return res, nil
}

// onCallError demotes a Ready client to Degraded on a single failed
// call; a Degraded client that fails again is left Degraded for the
// connection manager to decide whether to reconnect (§4.3).
func (c *Client) onCallError(err error) {
	c.mu.Lock()
	if c.state == StateReady {
		c.state = StateDegraded
	}
	c.lastErr = err
	c.mu.Unlock()
	logger.Warnw("downstream call failed", "provider", c.Provider, "error", err)
}

// Reconnect re-runs the handshake, used to recover a Degraded client.
func (c *Client) Reconnect(ctx context.Context) error {
	return c.Handshake(ctx)
}

// Close transitions to Closed and releases the transport. Safe to call
// more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	tr := c.tr
	c.mu.Unlock()

	if tr == nil {
		return nil
	}
	return tr.Close()
}
