package gwerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndError(t *testing.T) {
	t.Parallel()

	err := New(KindToolNotFound, "no tool %q", "a:b")
	assert.Equal(t, "ToolNotFound: no tool \"a:b\"", err.Error())
	assert.Equal(t, KindToolNotFound, err.Kind)
}

func TestWrapUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := Wrap(KindChildError, cause, "downstream failed")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "boom")
}

func TestAsAndKindOf(t *testing.T) {
	t.Parallel()

	ge := New(KindProviderBusy, "queue full")
	var wrapped error = ge

	got, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindProviderBusy, got.Kind)
	assert.Equal(t, KindProviderBusy, KindOf(wrapped))

	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestToJSONRPC(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"tool not found", New(KindToolNotFound, "x"), -32601},
		{"provider unavailable", New(KindProviderUnavailable, "x"), 1000},
		{"plain go error", errors.New("oops"), 1008},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ToJSONRPC(tt.err)
			assert.Equal(t, tt.wantCode, got.Code)
		})
	}
}

func TestIs(t *testing.T) {
	t.Parallel()

	err := New(KindTimeout, "deadline exceeded")
	assert.True(t, Is(err, KindTimeout))
	assert.False(t, Is(err, KindCancelled))
	assert.False(t, Is(errors.New("plain"), KindTimeout))
}
