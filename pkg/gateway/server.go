// Package gateway owns the gateway's inbound MCP endpoint (§4.7): it
// wraps an mcp-go server.MCPServer, synthesizes the `find`/`run`/`code`
// tool surface selected by the active SurfaceMode, and dispatches each
// to the connection manager, semantic index, and sandbox rather than
// ever exposing a downstream's raw tools directly. Grounded on the
// teacher's theRebelliousNerd-browserNerd-style "register handlers on an
// *mcpserver.MCPServer, serve over stdio" shape, generalized from a
// fixed hand-written tool list to three tools synthesized from the
// catalog/index/connection-manager trio.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/mcpvgw/vgateway/pkg/audit"
	"github.com/mcpvgw/vgateway/pkg/catalog"
	"github.com/mcpvgw/vgateway/pkg/confirm"
	"github.com/mcpvgw/vgateway/pkg/connmgr"
	"github.com/mcpvgw/vgateway/pkg/egress"
	"github.com/mcpvgw/vgateway/pkg/gwconfig"
	"github.com/mcpvgw/vgateway/pkg/gwerrors"
	"github.com/mcpvgw/vgateway/pkg/logger"
	"github.com/mcpvgw/vgateway/pkg/sandbox"
	"github.com/mcpvgw/vgateway/pkg/semantic"
	"github.com/mcpvgw/vgateway/pkg/telemetry"
)

const protocolVersion = "2024-11-05" // A fixed constant; pkg/downstream and pkg/internaltool hard-code the same literal.

// Finder is the slice of *semantic.Index the `find` tool and the
// sandbox's `do` convenience routing need.
type Finder interface {
	Query(ctx context.Context, query string, k int, filters semantic.Filters) (semantic.Result, error)
}

// Caller is the slice of *connmgr.Manager the `run` tool and the
// sandbox's tool proxies dispatch through.
type Caller interface {
	Call(ctx context.Context, provider, tool string, params map[string]any, timeout time.Duration) (*mcp.CallToolResult, error)
	ListTools() catalog.Snapshot
}

// Server is the gateway's inbound MCP endpoint.
type Server struct {
	cfg      *gwconfig.Config
	mcp      *mcpserver.MCPServer
	caller   Caller
	finder   Finder
	egress   *egress.Policy
	auditor  *audit.Auditor
	recorder *telemetry.Recorder
}

// New constructs a Server wired to the given collaborators and
// registers exactly the tool surface cfg.SurfaceMode names (§4.7, §6).
// auditor, recorder, and egressPolicy may all be nil: each feature
// degrades independently (no audit log, no metrics, sandbox network
// access always denied) rather than failing construction.
func New(
	cfg *gwconfig.Config,
	caller Caller,
	finder Finder,
	egressPolicy *egress.Policy,
	auditor *audit.Auditor,
	recorder *telemetry.Recorder,
) (*Server, error) {
	switch cfg.SurfaceMode {
	case gwconfig.SurfaceFindRun, gwconfig.SurfaceFindCode, gwconfig.SurfaceCodeOnly:
	default:
		return nil, gwerrors.New(gwerrors.KindInvalidRequest, "gateway: unsupported surface mode %q", cfg.SurfaceMode)
	}

	srv := mcpserver.NewMCPServer(
		nameOr(cfg.Name, "vgateway"),
		protocolVersion,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	)

	s := &Server{
		cfg:      cfg,
		mcp:      srv,
		caller:   caller,
		finder:   finder,
		egress:   egressPolicy,
		auditor:  auditor,
		recorder: recorder,
	}
	s.registerTools()
	return s, nil
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

// Serve blocks serving the gateway's inbound MCP endpoint over stdio
// until ctx is canceled or a transport error occurs (§6 "Inbound MCP").
func (s *Server) Serve(ctx context.Context) error {
	stdio := mcpserver.NewStdioServer(s.mcp)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer exposes the underlying server so a confirm.SDKRequester (or
// an HTTP/SSE listener, for a future transport) can be bound to it.
func (s *Server) MCPServer() *mcpserver.MCPServer { return s.mcp }

func (s *Server) registerTools() {
	switch s.cfg.SurfaceMode {
	case gwconfig.SurfaceFindRun:
		s.registerFind()
		s.registerRun()
	case gwconfig.SurfaceFindCode:
		s.registerFind()
		s.registerCode()
	case gwconfig.SurfaceCodeOnly:
		s.registerCode()
	}
}

// Raw JSON-Schema documents for the three synthesized tools (§6). A raw
// schema is used rather than the WithString/WithRequired option chain
// so the exact shape fixed by §6 is explicit in one place, matching the
// teacher's own NewToolWithRawSchema idiom for hand-authored schemas.
const findSchema = `{
	"type": "object",
	"properties": {
		"description": {"type": "string"},
		"limit": {"type": "integer", "minimum": 1, "maximum": 50},
		"filters": {
			"type": "object",
			"properties": {
				"providers": {"type": "array", "items": {"type": "string"}},
				"substring": {"type": "string"}
			}
		}
	},
	"required": ["description"]
}`

const runSchema = `{
	"type": "object",
	"properties": {
		"tool": {"type": "string"},
		"parameters": {"type": "object"},
		"timeoutMs": {"type": "integer", "minimum": 1, "maximum": 300000},
		"skipValidation": {"type": "boolean"}
	},
	"required": ["tool", "parameters"]
}`

const codeSchema = `{
	"type": "object",
	"properties": {
		"code": {"type": "string"},
		"timeout": {"type": "integer", "minimum": 1, "maximum": 300000}
	},
	"required": ["code"]
}`

func (s *Server) registerFind() {
	tool := mcp.NewToolWithRawSchema("find",
		"Semantically search the aggregated catalog of downstream tools.",
		[]byte(findSchema))
	s.mcp.AddTool(tool, s.handleFind)
}

func (s *Server) registerRun() {
	tool := mcp.NewToolWithRawSchema("run",
		"Invoke a downstream tool by its qualified name \"<provider>:<name>\".",
		[]byte(runSchema))
	s.mcp.AddTool(tool, s.handleRun)
}

func (s *Server) registerCode() {
	tool := mcp.NewToolWithRawSchema("code",
		"Run a script with the downstream tool catalog bound as callable namespaces.",
		[]byte(codeSchema))
	s.mcp.AddTool(tool, s.handleCode)
}

// --- find ---

func (s *Server) handleFind(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	description, _ := args["description"].(string)
	if description == "" {
		return errResult(gwerrors.New(gwerrors.KindInvalidRequest, "find: description is required")), nil
	}

	limit := s.cfg.SemanticIndex.DefaultLimit
	if l, ok := args["limit"].(float64); ok {
		limit = int(l)
	}
	if limit < 0 {
		limit = 0
	}
	if limit > s.cfg.SemanticIndex.MaxLimit {
		limit = s.cfg.SemanticIndex.MaxLimit
	}

	filters := parseFindFilters(args["filters"])

	result, err := s.finder.Query(ctx, description, limit, filters)
	if err != nil {
		return errResult(err), nil
	}

	resp := findResponse{
		Matches:            result.Matches,
		Total:              result.Total,
		IndexingInProgress: result.IndexingInProgress,
		Indexed:            result.Indexed,
		TotalTools:         result.TotalTools,
	}
	if len(result.Matches) == 0 && result.Indexed == 0 && result.IndexingInProgress {
		resp.Message = "the semantic index is still warming up and has not embedded any tool yet; try again shortly"
	}
	return toolResultFor(resp)
}

type findResponse struct {
	Matches            []semantic.Match `json:"matches"`
	Total              int              `json:"total"`
	IndexingInProgress bool             `json:"indexingInProgress"`
	Indexed            int              `json:"indexed"`
	TotalTools         int              `json:"totalTools"`
	Message            string           `json:"message,omitempty"`
}

func parseFindFilters(raw any) semantic.Filters {
	m, ok := raw.(map[string]any)
	if !ok {
		return semantic.Filters{}
	}
	var f semantic.Filters
	if providers, ok := m["providers"].([]any); ok {
		for _, p := range providers {
			if ps, ok := p.(string); ok {
				f.Providers = append(f.Providers, ps)
			}
		}
	}
	if sub, ok := m["substring"].(string); ok {
		f.Substring = sub
	}
	return f
}

// --- run ---

func (s *Server) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	qualified, _ := args["tool"].(string)
	provider, localName, ok := catalog.SplitQualifiedName(qualified)
	if !ok {
		return errResult(gwerrors.New(gwerrors.KindToolNotFound, "run: %q is not a qualified \"<provider>:<name>\"", qualified)), nil
	}

	params, _ := args["parameters"].(map[string]any)
	if params == nil {
		params = map[string]any{}
	}

	snap := s.caller.ListTools()
	record, known := snap.ByQualifiedName()[qualified]
	if !known {
		return errResult(gwerrors.New(gwerrors.KindToolNotFound, "run: unknown tool %q", qualified)), nil
	}
	if !record.Available {
		return errResult(gwerrors.New(gwerrors.KindProviderUnavailable,
			"run: provider %q is unavailable (%s); try again later", provider, record.UnavailableNote)), nil
	}

	skipValidation, _ := args["skipValidation"].(bool)
	if !skipValidation {
		if err := validateParams(record.InputSchema, params); err != nil {
			return errResult(err), nil
		}
	}

	timeout := s.cfg.Connection.DefaultCallTimeout
	if ms, ok := args["timeoutMs"].(float64); ok && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	dispatch := func(ctx context.Context, qualifiedName string, params map[string]any) (any, error) {
		res, err := s.caller.Call(ctx, provider, localName, params, timeout)
		if err != nil {
			return nil, err
		}
		return contentValue(res)
	}
	if s.auditor != nil {
		dispatch = s.auditor.Wrap(dispatch)
	}

	start := time.Now()
	value, err := dispatch(ctx, qualified, params)
	if s.recorder != nil {
		s.recorder.RecordToolCall(ctx, provider, err == nil, time.Since(start))
	}
	if err != nil {
		return toolResultFor(runResponse{Success: false, Error: errorPayloadFor(err)})
	}
	return toolResultFor(runResponse{Success: true, Content: value})
}

type runResponse struct {
	Success bool           `json:"success"`
	Content any            `json:"content,omitempty"`
	Error   *errorPayload  `json:"error,omitempty"`
}

type errorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func errorPayloadFor(err error) *errorPayload {
	ge, ok := gwerrors.As(err)
	if !ok {
		return &errorPayload{Kind: string(gwerrors.KindInternal), Message: "internal error"}
	}
	return &errorPayload{Kind: string(ge.Kind), Message: ge.Message}
}

// validateParams performs the light structural check §4.7 describes:
// required fields present, primitive types match a JSON-Schema subset
// (object/string/number/integer/boolean/array). It intentionally does
// not validate nested object/array shapes beyond presence.
func validateParams(schema json.RawMessage, params map[string]any) error {
	if len(schema) == 0 {
		return nil
	}
	var s struct {
		Type       string                    `json:"type"`
		Required   []string                  `json:"required"`
		Properties map[string]map[string]any `json:"properties"`
	}
	if err := json.Unmarshal(schema, &s); err != nil {
		return nil // an unparsable schema can't be checked; fail open rather than block every call
	}
	for _, name := range s.Required {
		if _, ok := params[name]; !ok {
			return gwerrors.New(gwerrors.KindSchemaValidation, "missing required parameter %q", name)
		}
	}
	for name, prop := range s.Properties {
		value, present := params[name]
		if !present {
			continue
		}
		wantType, _ := prop["type"].(string)
		if wantType == "" {
			continue
		}
		if !matchesJSONType(value, wantType) {
			return gwerrors.New(gwerrors.KindSchemaValidation, "parameter %q must be of type %q", name, wantType)
		}
	}
	return nil
}

func matchesJSONType(value any, jsonType string) bool {
	switch jsonType {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := value.(float64)
		return ok
	case "integer":
		f, ok := value.(float64)
		return ok && f == float64(int64(f))
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	default:
		return true
	}
}

// --- code ---

func (s *Server) handleCode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	script, _ := args["code"].(string)
	if script == "" {
		return errResult(gwerrors.New(gwerrors.KindInvalidRequest, "code: code is required")), nil
	}

	timeout := s.cfg.Sandbox.DefaultTimeout
	if ms, ok := args["timeout"].(float64); ok && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	snap := s.caller.ListTools()
	descriptors := make([]sandbox.ToolDescriptor, 0, len(snap.Tools))
	for _, t := range snap.Tools {
		if !t.Available {
			continue
		}
		descriptors = append(descriptors, sandbox.ToolDescriptor{
			QualifiedName: t.QualifiedName,
			Provider:      t.Provider,
			LocalName:     t.LocalName,
			Description:   t.Description,
			InputSchema:   t.InputSchema,
		})
	}

	caller := func(ctx context.Context, qualifiedName string, params map[string]any) (any, error) {
		provider, localName, ok := catalog.SplitQualifiedName(qualifiedName)
		if !ok {
			return nil, gwerrors.New(gwerrors.KindToolNotFound, "code: %q is not a qualified tool name", qualifiedName)
		}
		res, err := s.caller.Call(ctx, provider, localName, params, s.cfg.Connection.DefaultCallTimeout)
		if err != nil {
			return nil, err
		}
		return contentValue(res)
	}
	if s.auditor != nil {
		caller = s.auditor.Wrap(caller)
	}

	finder := func(ctx context.Context, intent string, limit int) ([]sandbox.ToolDescriptor, error) {
		result, err := s.finder.Query(ctx, intent, limit, semantic.Filters{})
		if err != nil {
			return nil, err
		}
		byName := snap.ByQualifiedName()
		out := make([]sandbox.ToolDescriptor, 0, len(result.Matches))
		for _, m := range result.Matches {
			t, ok := byName[m.QualifiedName]
			if !ok {
				continue
			}
			out = append(out, sandbox.ToolDescriptor{
				QualifiedName: t.QualifiedName,
				Provider:      t.Provider,
				LocalName:     t.LocalName,
				Description:   t.Description,
				InputSchema:   t.InputSchema,
			})
		}
		return out, nil
	}

	box := sandbox.New(s.cfg.Sandbox, descriptors, caller, finder)
	if s.egress != nil {
		box = box.WithNetworkBroker(egress.SandboxBroker{Policy: s.egress, Session: egress.NewSession()})
	}

	outcome := box.Run(ctx, script, timeout)
	if s.recorder != nil {
		s.recorder.RecordSandboxRun(ctx, outcome.Error == "")
	}

	return toolResultFor(codeResponse{
		Result: outcome.Value,
		Logs:   outcome.Logs,
		Error:  outcome.Error,
	})
}

type codeResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Logs   []string        `json:"logs"`
	Error  string          `json:"error,omitempty"`
}

// --- shared result helpers ---

func toolResultFor(value any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindInternal, err, "marshaling tool result")
	}
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(string(raw))}}, nil
}

func errResult(err error) *mcp.CallToolResult {
	logger.Warnw("gateway tool call failed", "error", err)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(fmt.Sprintf("%s: %s", gwerrors.KindOf(err), err.Error()))},
		IsError: true,
	}
}

// contentValue extracts a downstream call's content into a plain value
// suitable for `run`'s content field and for a sandbox tool proxy's
// return value: a single text block decodes as JSON when possible
// (so structured downstream replies survive the round trip) and falls
// back to the raw string otherwise; multiple content blocks collapse to
// a slice of strings.
func contentValue(res *mcp.CallToolResult) (any, error) {
	if res == nil {
		return nil, nil
	}
	if res.IsError {
		msg := ""
		if len(res.Content) > 0 {
			if tc, ok := res.Content[0].(mcp.TextContent); ok {
				msg = tc.Text
			}
		}
		return nil, gwerrors.New(gwerrors.KindChildError, "%s", msg)
	}
	if len(res.Content) == 1 {
		if tc, ok := res.Content[0].(mcp.TextContent); ok {
			var decoded any
			if err := json.Unmarshal([]byte(tc.Text), &decoded); err == nil {
				return decoded, nil
			}
			return tc.Text, nil
		}
	}
	texts := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	return texts, nil
}
