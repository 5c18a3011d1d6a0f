package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Outcome classifies how an audited operation concluded.
type Outcome string

// Supported outcomes.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeError   Outcome = "error"
	OutcomeDenied  Outcome = "denied"
)

// Source types for EventSource.Type.
const (
	SourceTypeNetwork = "network"
	SourceTypeLocal   = "local"
)

// ComponentGateway is the default Component value for events the
// gateway server itself emits (as opposed to an internal tool plugin).
const ComponentGateway = "vgateway"

// EventSource describes where a request originated: a remote peer over
// HTTP/SSE (SourceTypeNetwork) or the local stdio host process
// (SourceTypeLocal, the common case for this gateway's inbound
// transport, §4.1).
type EventSource struct {
	Type  string         `json:"type"`
	Value string         `json:"value"`
	Extra map[string]any `json:"extra,omitempty"`
}

// EventMetadata carries the audit record's own bookkeeping plus an
// open-ended Extra bag for per-event-type detail (duration, transport,
// protocol version, ...).
type EventMetadata struct {
	AuditID  string         `json:"audit_id"`
	LoggedAt time.Time      `json:"logged_at"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// AuditEvent is one audit log line, written for one audited tool-call
// dispatch.
type AuditEvent struct {
	Type     string            `json:"type"`
	Outcome  Outcome           `json:"outcome"`
	Source   EventSource       `json:"source"`
	Subjects map[string]string `json:"subjects"`
	Component string           `json:"component"`
	Target   map[string]string `json:"target,omitempty"`
	Data     *json.RawMessage  `json:"data,omitempty"`
	Metadata EventMetadata     `json:"metadata"`
}

// NewAuditEvent constructs an event with a freshly generated audit ID.
func NewAuditEvent(eventType string, source EventSource, outcome Outcome, subjects map[string]string, component string) *AuditEvent {
	return NewAuditEventWithID(uuid.NewString(), eventType, source, outcome, subjects, component)
}

// NewAuditEventWithID constructs an event with a caller-supplied audit
// ID, useful when correlating with an existing request/invocation ID.
func NewAuditEventWithID(auditID, eventType string, source EventSource, outcome Outcome, subjects map[string]string, component string) *AuditEvent {
	return &AuditEvent{
		Type:      eventType,
		Outcome:   outcome,
		Source:    source,
		Subjects:  subjects,
		Component: component,
		Metadata: EventMetadata{
			AuditID:  auditID,
			LoggedAt: time.Now().UTC(),
		},
	}
}

// WithTarget attaches the target of the audited operation (e.g. a
// qualified tool name) and returns the same instance for chaining.
func (e *AuditEvent) WithTarget(target map[string]string) *AuditEvent {
	e.Target = target
	return e
}

// WithData attaches a pre-marshaled JSON payload (request params,
// result, ...) and returns the same instance for chaining.
func (e *AuditEvent) WithData(data *json.RawMessage) *AuditEvent {
	e.Data = data
	return e
}

// WithDataFromString parses s as JSON and attaches it, ignoring a parse
// failure (the event is still logged without the data field) so a
// malformed payload never blocks the audit record itself.
func (e *AuditEvent) WithDataFromString(s string) *AuditEvent {
	raw := json.RawMessage(s)
	if !json.Valid(raw) {
		return e
	}
	return e.WithData(&raw)
}
