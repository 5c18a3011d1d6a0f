// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuditor(t *testing.T, cfg *Config) (*Auditor, *bytes.Buffer) {
	t.Helper()
	a, err := NewAuditor(cfg)
	require.NoError(t, err)
	buf := &bytes.Buffer{}
	a.writer = buf
	return a, buf
}

func TestAuditor_Wrap_LogsSuccessAndFailure(t *testing.T) {
	t.Parallel()

	a, buf := newTestAuditor(t, &Config{IncludeParams: true, IncludeResult: true})

	ok := a.Wrap(func(_ context.Context, _ string, _ map[string]any) (any, error) {
		return map[string]any{"ok": true}, nil
	})
	_, err := ok(context.Background(), "find", map[string]any{"intent": "list repos"})
	require.NoError(t, err)

	var success map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &success))
	assert.Equal(t, "success", success["outcome"])
	assert.Equal(t, "find", success["target"].(map[string]any)["name"])

	buf.Reset()
	failing := a.Wrap(func(_ context.Context, _ string, _ map[string]any) (any, error) {
		return nil, errors.New("boom")
	})
	_, err = failing(context.Background(), "run", map[string]any{})
	assert.Error(t, err)

	var failure map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &failure))
	assert.Equal(t, "error", failure["outcome"])
}

func TestAuditor_Wrap_AttachesBackendInfoAsSubject(t *testing.T) {
	t.Parallel()

	a, buf := newTestAuditor(t, DefaultConfig())
	ctx := WithBackendInfo(context.Background(), &BackendInfo{BackendName: "github"})

	wrapped := a.Wrap(func(_ context.Context, _ string, _ map[string]any) (any, error) { return nil, nil })
	_, err := wrapped(ctx, "github:list_issues", nil)
	require.NoError(t, err)

	var event map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &event))
	subjects := event["subjects"].(map[string]any)
	assert.Equal(t, "github", subjects[SubjectKeyClientName])
}

func TestAuditor_Wrap_RespectsExcludedEventTypes(t *testing.T) {
	t.Parallel()

	a, buf := newTestAuditor(t, &Config{ExcludeEventTypes: []string{EventTypeMCPToolCall}})

	wrapped := a.Wrap(func(_ context.Context, _ string, _ map[string]any) (any, error) { return nil, nil })
	_, err := wrapped(context.Background(), "find", nil)
	require.NoError(t, err)

	assert.Empty(t, buf.Bytes())
}

func TestNewAuditor_OpensConfiguredFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a, err := NewAuditor(&Config{LogFile: filepath.Join(dir, "events.log")})
	require.NoError(t, err)
	defer a.Close()
}

func TestNewAuditor_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := NewAuditor(&Config{MaxDataSize: -1})
	assert.Error(t, err)
}
