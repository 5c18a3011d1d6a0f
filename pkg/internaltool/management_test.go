package internaltool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpvgw/vgateway/pkg/confirm"
	"github.com/mcpvgw/vgateway/pkg/health"
)

type fakeReconnector struct {
	called   string
	err      error
}

func (f *fakeReconnector) Reconnect(_ context.Context, provider string) error {
	f.called = provider
	return f.err
}

type fakeStatusReporter struct{ summary health.Summary }

func (f *fakeStatusReporter) Summary() health.Summary { return f.summary }

type fakeRequester struct{ action confirm.Action }

func (f *fakeRequester) RequestConfirmation(context.Context, confirm.Request) (*confirm.Response, error) {
	return &confirm.Response{Action: f.action}, nil
}

func TestManagementPlugin_Status(t *testing.T) {
	t.Parallel()
	reporter := &fakeStatusReporter{summary: health.Summary{Providers: map[string]health.Snapshot{"a": {}}}}
	p := NewManagementPlugin(&fakeReconnector{}, reporter, nil)

	result, err := p.Call(context.Background(), "status", nil)
	require.NoError(t, err)
	summary, ok := result.(health.Summary)
	require.True(t, ok)
	assert.Contains(t, summary.Providers, "a")
}

func TestManagementPlugin_Reconnect_RequiresConfirmation(t *testing.T) {
	t.Parallel()
	recon := &fakeReconnector{}

	t.Run("accepted", func(t *testing.T) {
		t.Parallel()
		ch := confirm.New(&fakeRequester{action: confirm.ActionAccept})
		p := NewManagementPlugin(recon, nil, ch)
		_, err := p.Call(context.Background(), "reconnect", map[string]any{"provider": "github"})
		require.NoError(t, err)
		assert.Equal(t, "github", recon.called)
	})

	t.Run("declined", func(t *testing.T) {
		t.Parallel()
		ch := confirm.New(&fakeRequester{action: confirm.ActionDecline})
		p := NewManagementPlugin(&fakeReconnector{}, nil, ch)
		_, err := p.Call(context.Background(), "reconnect", map[string]any{"provider": "github"})
		assert.Error(t, err)
	})

	t.Run("no confirmation channel fails closed", func(t *testing.T) {
		t.Parallel()
		p := NewManagementPlugin(&fakeReconnector{}, nil, nil)
		_, err := p.Call(context.Background(), "reconnect", map[string]any{"provider": "github"})
		assert.Error(t, err)
	})

	t.Run("missing provider argument", func(t *testing.T) {
		t.Parallel()
		ch := confirm.New(&fakeRequester{action: confirm.ActionAccept})
		p := NewManagementPlugin(&fakeReconnector{}, nil, ch)
		_, err := p.Call(context.Background(), "reconnect", nil)
		assert.Error(t, err)
	})
}

func TestManagementPlugin_Reconnect_PropagatesManagerError(t *testing.T) {
	t.Parallel()
	ch := confirm.New(&fakeRequester{action: confirm.ActionAccept})
	p := NewManagementPlugin(&fakeReconnector{err: errors.New("spawn failed")}, nil, ch)
	_, err := p.Call(context.Background(), "reconnect", map[string]any{"provider": "github"})
	assert.Error(t, err)
}

func TestManagementPlugin_UnknownTool(t *testing.T) {
	t.Parallel()
	p := NewManagementPlugin(&fakeReconnector{}, nil, nil)
	_, err := p.Call(context.Background(), "bogus", nil)
	assert.Error(t, err)
}
