package confirm

import (
	"context"
	"sync"
)

// LazyRequester breaks the construction-order cycle between the
// gateway server (which owns the *mcpserver.MCPServer an SDKRequester
// wraps) and the egress policy / internal tool host (which need a
// Requester before that server exists): a late-bound setter, as
// DESIGN.md's pkg/confirm entry describes, rather than a circular
// constructor dependency. Until Set is called it behaves like
// NativeRequester — cancel everything rather than silently approving.
type LazyRequester struct {
	mu    sync.RWMutex
	inner Requester
}

// Set installs the real requester once it becomes available (typically
// right after the gateway's MCP server is constructed).
func (l *LazyRequester) Set(r Requester) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inner = r
}

// RequestConfirmation forwards to the installed requester, or cancels
// if none has been set yet.
func (l *LazyRequester) RequestConfirmation(ctx context.Context, req Request) (*Response, error) {
	l.mu.RLock()
	inner := l.inner
	l.mu.RUnlock()
	if inner == nil {
		return NativeRequester{}.RequestConfirmation(ctx, req)
	}
	return inner.RequestConfirmation(ctx, req)
}
