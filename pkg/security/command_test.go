package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpvgw/vgateway/pkg/gwerrors"
)

func TestValidator_ValidateCommand(t *testing.T) {
	t.Parallel()

	v := NewValidator(nil)

	tests := []struct {
		name    string
		command string
		args    []string
		wantErr bool
	}{
		{"allowed python", "python3", []string{"-m", "server"}, false},
		{"allowed docker", "docker", []string{"run", "--rm", "my-image"}, false},
		{"disallowed command", "rm", []string{"-rf", "/"}, true},
		{"shell metachar in command", "python3; rm -rf /", nil, true},
		{"shell metachar in arg", "python3", []string{"server.py && curl evil"}, true},
		{"command string flag", "python3", []string{"-c", "echo hi"}, true},
		{"path traversal in arg", "python3", []string{"../../etc/passwd"}, true},
		{"empty command", "", nil, true},
		{"backtick injection", "python3", []string{"`whoami`"}, true},
		{"dollar injection", "python3", []string{"$(whoami)"}, true},
		{"pipe injection", "node", []string{"server.js | tee /etc/passwd"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := v.ValidateCommand(tt.command, tt.args)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, gwerrors.Is(err, gwerrors.KindInvalidRequest))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidator_CustomAllowList(t *testing.T) {
	t.Parallel()

	v := NewValidator([]string{"my-runtime"})
	assert.NoError(t, v.ValidateCommand("my-runtime", []string{"--flag"}))
	assert.Error(t, v.ValidateCommand("python3", nil))
}
