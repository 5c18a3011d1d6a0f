package confirm

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// SDKRequester adapts an mcp-go server's own elicitation capability to
// Requester: the gateway's preferred path (§4.11), used whenever the
// connected client declared elicitation support during initialize.
// Grounded on the teacher's sdk_elicitation_adapter_test.go, which
// exercises exactly this accept/decline/cancel/error shape against
// mcp.ElicitationRequest/Result.
type SDKRequester struct {
	mcpServer *server.MCPServer
}

// NewSDKRequester wraps srv so its RequestElicitation capability can be
// used as a confirm.Requester.
func NewSDKRequester(srv *server.MCPServer) *SDKRequester {
	return &SDKRequester{mcpServer: srv}
}

// RequestConfirmation issues an MCP elicitation request carrying req's
// prompt and schema, and translates the SDK's ElicitationResult back
// into this package's Action vocabulary.
func (r *SDKRequester) RequestConfirmation(ctx context.Context, req Request) (*Response, error) {
	schema := req.Schema
	if schema == nil {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}

	elicit := mcp.ElicitationRequest{
		Params: mcp.ElicitationParams{
			Message:         req.Prompt,
			RequestedSchema: schema,
		},
	}

	result, err := r.mcpServer.RequestElicitation(ctx, elicit)
	if err != nil {
		return nil, err
	}

	action := ActionCancel
	switch result.Action {
	case mcp.ElicitationResponseActionAccept:
		action = ActionAccept
	case mcp.ElicitationResponseActionDecline:
		action = ActionDecline
	}
	return &Response{Action: action, Content: result.Content}, nil
}
