// Package audit logs one structured event per dispatched tool call,
// adapted from the teacher's HTTP-request
// auditor to this gateway's stdio JSON-RPC dispatch: there is no
// per-request net/http.Handler to wrap, so the middleware wraps the
// gateway server's own tool-call dispatch function instead.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Auditor writes one newline-delimited JSON AuditEvent per audited
// tool call to its configured destination.
type Auditor struct {
	config *Config

	mu     sync.Mutex
	writer io.Writer
	closer io.Closer
}

// NewAuditor constructs an Auditor, opening its configured log
// destination immediately so a bad LogFile path fails fast at startup
// rather than on the first call.
func NewAuditor(config *Config) (*Auditor, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	w, err := config.GetLogWriter()
	if err != nil {
		return nil, err
	}
	a := &Auditor{config: config, writer: w}
	if c, ok := w.(io.Closer); ok && w != io.Writer(os.Stdout) {
		a.closer = c
	}
	return a, nil
}

// Close releases the underlying log file, if any. Safe to call on a
// stdout-backed Auditor (a no-op).
func (a *Auditor) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// ToolCallFunc is the shape of a dispatched tool call: qualifiedName
// identifies the target ("find", "run", "code", or a downstream
// "<provider>:<localName>"), params is the call's arguments.
type ToolCallFunc func(ctx context.Context, qualifiedName string, params map[string]any) (any, error)

// Wrap returns a ToolCallFunc that runs next and logs one
// EventTypeMCPToolCall audit event per invocation, regardless of
// outcome. A logging failure never fails the call itself.
func (a *Auditor) Wrap(next ToolCallFunc) ToolCallFunc {
	return func(ctx context.Context, qualifiedName string, params map[string]any) (any, error) {
		start := time.Now()
		result, err := next(ctx, qualifiedName, params)
		a.logCall(ctx, qualifiedName, params, result, time.Since(start), err)
		return result, err
	}
}

func (a *Auditor) logCall(ctx context.Context, qualifiedName string, params map[string]any, result any, duration time.Duration, callErr error) {
	if !a.config.ShouldAuditEvent(EventTypeMCPToolCall) {
		return
	}

	outcome := OutcomeSuccess
	if callErr != nil {
		outcome = OutcomeError
	}

	subjects := map[string]string{}
	if info, ok := BackendInfoFromContext(ctx); ok && info != nil {
		subjects[SubjectKeyClientName] = info.BackendName
	}

	component := a.config.Component
	if component == "" {
		component = ComponentGateway
	}

	event := NewAuditEvent(EventTypeMCPToolCall, EventSource{Type: SourceTypeLocal, Value: "stdio"}, outcome, subjects, component)
	event.WithTarget(map[string]string{TargetKeyType: TargetTypeTool, TargetKeyName: qualifiedName})
	event.Metadata.Extra = map[string]any{MetadataExtraKeyDuration: duration.Milliseconds()}
	if callErr != nil {
		event.Metadata.Extra["error"] = callErr.Error()
	}

	if payload := a.capturedPayload(params, result); payload != nil {
		event.WithData(payload)
	}

	a.write(event)
}

func (a *Auditor) capturedPayload(params map[string]any, result any) *json.RawMessage {
	if !a.config.IncludeParams && !a.config.IncludeResult {
		return nil
	}
	payload := map[string]any{}
	if a.config.IncludeParams {
		payload["params"] = params
	}
	if a.config.IncludeResult {
		payload["result"] = result
	}
	raw, err := json.Marshal(payload)
	if err != nil || (a.config.MaxDataSize > 0 && len(raw) > a.config.MaxDataSize) {
		return nil
	}
	rm := json.RawMessage(raw)
	return &rm
}

func (a *Auditor) write(event *AuditEvent) {
	line, err := json.Marshal(event)
	if err != nil {
		return
	}
	line = append(line, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	_, _ = fmt.Fprint(a.writer, string(line))
}
