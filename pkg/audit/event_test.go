// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAuditEvent_GeneratesAuditID(t *testing.T) {
	t.Parallel()

	event := NewAuditEvent(EventTypeMCPToolCall, EventSource{Type: SourceTypeLocal, Value: "stdio"}, OutcomeSuccess, nil, ComponentGateway)

	require.NotEmpty(t, event.Metadata.AuditID)
	assert.Equal(t, EventTypeMCPToolCall, event.Type)
	assert.Equal(t, OutcomeSuccess, event.Outcome)
	assert.False(t, event.Metadata.LoggedAt.IsZero())
}

func TestNewAuditEventWithID_PreservesCallerID(t *testing.T) {
	t.Parallel()

	event := NewAuditEventWithID("fixed-id", EventTypeMCPToolCall, EventSource{Type: SourceTypeLocal}, OutcomeDenied, nil, ComponentGateway)

	assert.Equal(t, "fixed-id", event.Metadata.AuditID)
	assert.Equal(t, OutcomeDenied, event.Outcome)
}

func TestAuditEvent_WithTarget(t *testing.T) {
	t.Parallel()

	event := NewAuditEvent(EventTypeMCPToolCall, EventSource{}, OutcomeSuccess, nil, ComponentGateway)
	returned := event.WithTarget(map[string]string{TargetKeyType: TargetTypeTool, TargetKeyName: "github:create_issue"})

	assert.Same(t, event, returned, "WithTarget should return the same instance for chaining")
	assert.Equal(t, "github:create_issue", event.Target[TargetKeyName])
}

func TestAuditEvent_WithData(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{"owner":"acme"}`)
	event := NewAuditEvent(EventTypeMCPToolCall, EventSource{}, OutcomeSuccess, nil, ComponentGateway).WithData(&raw)

	require.NotNil(t, event.Data)
	assert.JSONEq(t, `{"owner":"acme"}`, string(*event.Data))
}

func TestAuditEvent_WithDataFromString(t *testing.T) {
	t.Parallel()

	t.Run("valid JSON is attached", func(t *testing.T) {
		t.Parallel()
		event := NewAuditEvent(EventTypeMCPToolCall, EventSource{}, OutcomeSuccess, nil, ComponentGateway).WithDataFromString(`{"a":1}`)
		require.NotNil(t, event.Data)
		assert.JSONEq(t, `{"a":1}`, string(*event.Data))
	})

	t.Run("invalid JSON is silently dropped", func(t *testing.T) {
		t.Parallel()
		event := NewAuditEvent(EventTypeMCPToolCall, EventSource{}, OutcomeSuccess, nil, ComponentGateway).WithDataFromString(`not json`)
		assert.Nil(t, event.Data)
	})
}

func TestAuditEvent_MarshalsExpectedShape(t *testing.T) {
	t.Parallel()

	event := NewAuditEventWithID("id-1", EventTypeMCPToolCall, EventSource{Type: SourceTypeLocal, Value: "stdio"}, OutcomeSuccess,
		map[string]string{SubjectKeyClientName: "claude"}, ComponentGateway)
	event.WithTarget(map[string]string{TargetKeyType: TargetTypeTool, TargetKeyName: "find"})

	raw, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "mcp_tool_call", decoded["type"])
	assert.Equal(t, "success", decoded["outcome"])
	assert.Equal(t, "vgateway", decoded["component"])
}
