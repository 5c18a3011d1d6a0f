package connmgr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpvgw/vgateway/pkg/catalog"
	"github.com/mcpvgw/vgateway/pkg/gwconfig"
	"github.com/mcpvgw/vgateway/pkg/gwtransport"
	"github.com/mcpvgw/vgateway/pkg/security"
)

type fakeTransport struct {
	name    string
	initErr error
	tools   []mcp.Tool
	callFn  func(mcp.CallToolRequest) (*mcp.CallToolResult, error)
	closed  bool
}

func (f *fakeTransport) Initialize(context.Context, mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	if f.initErr != nil {
		return nil, f.initErr
	}
	return &mcp.InitializeResult{}, nil
}

func (f *fakeTransport) ListTools(context.Context, mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	return &mcp.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeTransport) CallTool(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if f.callFn != nil {
		return f.callFn(req)
	}
	return &mcp.CallToolResult{}, nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

func fakeFactory(byName map[string]*fakeTransport) TransportFactory {
	return func(p gwconfig.Provider, _ *security.Validator) (gwtransport.Transport, error) {
		tr, ok := byName[p.Name]
		if !ok {
			return nil, errors.New("no fake registered for " + p.Name)
		}
		return tr, nil
	}
}

func newManager(t *testing.T, byName map[string]*fakeTransport) *Manager {
	t.Helper()
	cfg := gwconfig.DefaultConnectionConfig()
	return New(cfg, security.NewValidator(nil), catalog.New(catalog.ConflictPrefix, nil), fakeFactory(byName))
}

func TestManager_Start_MergesToolsFromReadyProviders(t *testing.T) {
	t.Parallel()

	a := &fakeTransport{tools: []mcp.Tool{{Name: "echo", Description: "echo"}}}
	b := &fakeTransport{tools: []mcp.Tool{{Name: "ping", Description: "ping"}}}
	m := newManager(t, map[string]*fakeTransport{"a": a, "b": b})

	err := m.Start(context.Background(), []gwconfig.Provider{
		{Name: "a", Kind: gwconfig.ProviderStdio, Command: "python3"},
		{Name: "b", Kind: gwconfig.ProviderStdio, Command: "python3"},
	})
	require.NoError(t, err)

	snap := m.ListTools()
	assert.Len(t, snap.Tools, 2)
	names := map[string]bool{}
	for _, tl := range snap.Tools {
		names[tl.QualifiedName] = true
	}
	assert.True(t, names["a:echo"])
	assert.True(t, names["b:ping"])
}

func TestManager_Start_IsolatesOneProvidersFailure(t *testing.T) {
	t.Parallel()

	good := &fakeTransport{tools: []mcp.Tool{{Name: "ping", Description: "ping"}}}
	bad := &fakeTransport{initErr: errors.New("refused")}
	m := newManager(t, map[string]*fakeTransport{"good": good, "bad": bad})

	require.NoError(t, m.Start(context.Background(), []gwconfig.Provider{
		{Name: "good", Kind: gwconfig.ProviderStdio, Command: "python3"},
		{Name: "bad", Kind: gwconfig.ProviderStdio, Command: "python3"},
	}))

	snap := m.ListTools()
	var sawBad bool
	for _, tl := range snap.Tools {
		if tl.Provider == "bad" {
			sawBad = true
			assert.False(t, tl.Available)
		}
	}
	assert.False(t, sawBad, "failed provider with no prior tools contributes nothing, not a phantom unavailable entry")

	_, err := m.Call(context.Background(), "good", "ping", nil, time.Second)
	assert.NoError(t, err)

	_, err = m.Call(context.Background(), "bad", "anything", nil, time.Second)
	assert.Error(t, err)
}

func TestManager_Call_UnknownProvider(t *testing.T) {
	t.Parallel()

	m := newManager(t, map[string]*fakeTransport{})
	_, err := m.Call(context.Background(), "ghost", "x", nil, time.Second)
	assert.Error(t, err)
}

func TestManager_Call_HighWaterMarkRejectsFastPath(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	tr := &fakeTransport{tools: []mcp.Tool{{Name: "slow"}}}
	tr.callFn = func(mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		<-release
		return &mcp.CallToolResult{}, nil
	}
	m := newManager(t, map[string]*fakeTransport{"p": tr})
	m.cfg.PerProviderHighWater = 1
	require.NoError(t, m.Start(context.Background(), []gwconfig.Provider{
		{Name: "p", Kind: gwconfig.ProviderStdio, Command: "python3"},
	}))

	done := make(chan struct{})
	go func() {
		_, _ = m.Call(context.Background(), "p", "slow", nil, 5*time.Second)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	_, err := m.Call(context.Background(), "p", "slow", nil, time.Second)
	assert.Error(t, err)

	close(release)
	<-done
}

func TestManager_Reload_ClosesRemovedAndSpawnsAdded(t *testing.T) {
	t.Parallel()

	a := &fakeTransport{tools: []mcp.Tool{{Name: "a-tool"}}}
	b := &fakeTransport{tools: []mcp.Tool{{Name: "b-tool"}}}
	m := newManager(t, map[string]*fakeTransport{"a": a, "b": b})

	require.NoError(t, m.Start(context.Background(), []gwconfig.Provider{
		{Name: "a", Kind: gwconfig.ProviderStdio, Command: "python3"},
	}))
	require.NoError(t, m.Reload(context.Background(), []gwconfig.Provider{
		{Name: "b", Kind: gwconfig.ProviderStdio, Command: "python3"},
	}))

	assert.True(t, a.closed)
	snap := m.ListTools()
	require.Len(t, snap.Tools, 1)
	assert.Equal(t, "b:b-tool", snap.Tools[0].QualifiedName)
}

func TestManager_Shutdown_ClosesAllClients(t *testing.T) {
	t.Parallel()

	a := &fakeTransport{}
	m := newManager(t, map[string]*fakeTransport{"a": a})
	require.NoError(t, m.Start(context.Background(), []gwconfig.Provider{
		{Name: "a", Kind: gwconfig.ProviderStdio, Command: "python3"},
	}))

	require.NoError(t, m.Shutdown(context.Background()))
	assert.True(t, a.closed)
}
