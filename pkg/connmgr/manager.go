// Package connmgr owns the set of downstream clients keyed by provider
// name: fan-out handshakes with a bounded cap, diff-based reload,
// per-provider backpressure, and the call/listTools surface the gateway
// server dispatches through (§4.4).
package connmgr

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mcpvgw/vgateway/pkg/catalog"
	"github.com/mcpvgw/vgateway/pkg/downstream"
	"github.com/mcpvgw/vgateway/pkg/gwconfig"
	"github.com/mcpvgw/vgateway/pkg/gwerrors"
	"github.com/mcpvgw/vgateway/pkg/gwtransport"
	"github.com/mcpvgw/vgateway/pkg/health"
	"github.com/mcpvgw/vgateway/pkg/logger"
	"github.com/mcpvgw/vgateway/pkg/security"
)

// TransportFactory builds a transport for a provider config; swappable
// in tests so the manager never has to spawn a real process or dial a
// real socket.
type TransportFactory func(p gwconfig.Provider, v *security.Validator) (gwtransport.Transport, error)

// Manager owns every downstream Client and the catalog their listings
// feed (§4.4, §4.5).
type Manager struct {
	cfg       gwconfig.ConnectionConfig
	validator *security.Validator
	factory   TransportFactory
	cat       *catalog.Catalog

	mu      sync.RWMutex
	clients map[string]*downstream.Client
	configs map[string]gwconfig.Provider

	sem *semaphore.Weighted

	monMu   sync.RWMutex
	monitor *health.Monitor
}

// New constructs a Manager bound to cat, using factory to build
// transports (defaults to gwtransport.New when nil).
func New(cfg gwconfig.ConnectionConfig, validator *security.Validator, cat *catalog.Catalog, factory TransportFactory) *Manager {
	if factory == nil {
		factory = gwtransport.New
	}
	cap := cfg.HandshakeConcurrency
	if cap <= 0 {
		cap = 8
	}
	return &Manager{
		cfg:       cfg,
		validator: validator,
		factory:   factory,
		cat:       cat,
		clients:   make(map[string]*downstream.Client),
		configs:   make(map[string]gwconfig.Provider),
		sem:       semaphore.NewWeighted(int64(cap)),
	}
}

// Start spawns every provider and handshakes them concurrently, bounded
// by the configured fan-out cap. Failures are contained per-provider:
// Start never returns an error for an individual provider failing —
// that provider simply lands in Failed state and is reflected as
// unavailable in the first catalog rebuild (§4.3, §4.4).
func (m *Manager) Start(ctx context.Context, providers []gwconfig.Provider) error {
	var wg sync.WaitGroup
	for _, p := range providers {
		p := p
		if err := m.sem.Acquire(ctx, 1); err != nil {
			return gwerrors.Wrap(gwerrors.KindCancelled, err, "acquiring handshake slot")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer m.sem.Release(1)
			m.spawnAndHandshake(ctx, p)
		}()
	}
	wg.Wait()

	return m.rebuildCatalog(ctx)
}

// SetHealthMonitor attaches a health.Monitor that gates Call behind each
// provider's circuit breaker. Safe to call at any time; providers spawned
// before this call are tracked retroactively.
func (m *Manager) SetHealthMonitor(monitor *health.Monitor) {
	m.monMu.Lock()
	m.monitor = monitor
	m.monMu.Unlock()

	if monitor == nil {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for name := range m.configs {
		monitor.Track(name)
	}
}

// CheckProvider implements health.Checker by delegating to the
// downstream client's own state, so a repeatedly failing or unknown
// provider trips its breaker the same way a direct call would fail.
func (m *Manager) CheckProvider(_ context.Context, provider string) (health.ProviderState, error) {
	m.mu.RLock()
	client, ok := m.clients[provider]
	m.mu.RUnlock()
	if !ok {
		return "", gwerrors.New(gwerrors.KindProviderUnavailable, "unknown provider %q", provider)
	}
	switch client.State() {
	case downstream.StateReady:
		return health.ProviderReady, nil
	default:
		return health.ProviderState(client.State()), client.LastError()
	}
}

// Reconnect re-runs the handshake for a single provider, used by the
// internal tool host's management plugin to recover a Degraded client on
// demand rather than waiting for the health monitor's next poll.
func (m *Manager) Reconnect(ctx context.Context, provider string) error {
	m.mu.RLock()
	client, ok := m.clients[provider]
	m.mu.RUnlock()
	if !ok {
		return gwerrors.New(gwerrors.KindProviderUnavailable, "unknown provider %q", provider)
	}
	if err := client.Reconnect(ctx); err != nil {
		return err
	}
	return m.rebuildCatalog(ctx)
}

func (m *Manager) spawnAndHandshake(ctx context.Context, p gwconfig.Provider) {
	tr, err := m.factory(p, m.validator)
	if err != nil {
		logger.Errorw("provider spawn failed", "provider", p.Name, "error", err)
		m.mu.Lock()
		m.configs[p.Name] = p
		m.mu.Unlock()
		return
	}

	client := downstream.New(p.Name, tr)
	m.mu.Lock()
	m.clients[p.Name] = client
	m.configs[p.Name] = p
	m.mu.Unlock()

	m.monMu.RLock()
	monitor := m.monitor
	m.monMu.RUnlock()
	if monitor != nil {
		monitor.Track(p.Name)
	}

	if err := client.Handshake(ctx); err != nil {
		logger.Errorw("provider handshake failed", "provider", p.Name, "error", err)
	}
}

// rebuildCatalog issues tools/list against every Ready/Degraded client
// and merges the results into the catalog, marking Failed/closed
// providers unavailable but keeping their last-known tools visible to
// `find` (§4.3).
func (m *Manager) rebuildCatalog(ctx context.Context) error {
	m.mu.RLock()
	names := make([]string, 0, len(m.configs))
	for name := range m.configs {
		names = append(names, name)
	}
	m.mu.RUnlock()

	listings := make([]catalog.ProviderListing, 0, len(names))
	for _, name := range names {
		m.mu.RLock()
		client := m.clients[name]
		cfg := m.configs[name]
		m.mu.RUnlock()

		identity := cfg.Command
		if cfg.Kind == gwconfig.ProviderHTTP {
			identity = cfg.URL
		}

		if client == nil || (client.State() != downstream.StateReady && client.State() != downstream.StateDegraded) {
			listings = append(listings, catalog.ProviderListing{
				Provider: name, Identity: identity, Unavailable: true,
				Unavailable_: unavailableReason(client),
			})
			continue
		}

		res, err := client.ListTools(ctx)
		if err != nil {
			listings = append(listings, catalog.ProviderListing{
				Provider: name, Identity: identity, Unavailable: true, Unavailable_: err.Error(),
			})
			continue
		}

		tools := make([]catalog.ToolRecord, 0, len(res.Tools))
		for _, t := range res.Tools {
			schema, _ := schemaBytes(t)
			tools = append(tools, catalog.ToolRecord{
				LocalName:   t.Name,
				Title:       t.Title,
				Description: t.Description,
				InputSchema: schema,
			})
		}
		listings = append(listings, catalog.ProviderListing{Provider: name, Identity: identity, Tools: tools})
	}

	_, err := m.cat.Rebuild(listings)
	return err
}

func unavailableReason(c *downstream.Client) string {
	if c == nil {
		return "spawn failed"
	}
	if err := c.LastError(); err != nil {
		return err.Error()
	}
	return "provider not ready"
}

func schemaBytes(t mcp.Tool) ([]byte, error) {
	if t.RawInputSchema != nil {
		return t.RawInputSchema, nil
	}
	return nil, nil
}

// Reload diffs the new provider set against the current one: closes
// removed providers, spawns added ones, leaves unchanged ones alone,
// then rebuilds the catalog (§4.4).
func (m *Manager) Reload(ctx context.Context, providers []gwconfig.Provider) error {
	next := make(map[string]gwconfig.Provider, len(providers))
	for _, p := range providers {
		next[p.Name] = p
	}

	m.mu.RLock()
	var toClose []*downstream.Client
	for name, client := range m.clients {
		if _, ok := next[name]; !ok {
			toClose = append(toClose, client)
		}
	}
	m.mu.RUnlock()

	for _, client := range toClose {
		_ = client.Close()
		m.mu.Lock()
		delete(m.clients, client.Provider)
		delete(m.configs, client.Provider)
		m.mu.Unlock()
	}

	var toSpawn []gwconfig.Provider
	m.mu.RLock()
	for name, p := range next {
		if _, ok := m.clients[name]; !ok {
			toSpawn = append(toSpawn, p)
		}
	}
	m.mu.RUnlock()

	if err := m.Start(ctx, toSpawn); err != nil {
		return err
	}
	return m.rebuildCatalog(ctx)
}

// Call finds the named provider's client and forwards the tool call
// with a deadline derived from timeout (clamped to maxTimeout), or
// returns ProviderUnavailable / ProviderBusy per §4.4, §5.
func (m *Manager) Call(ctx context.Context, provider, tool string, params map[string]any, timeout time.Duration) (*mcp.CallToolResult, error) {
	m.mu.RLock()
	client, ok := m.clients[provider]
	m.mu.RUnlock()
	if !ok {
		return nil, gwerrors.New(gwerrors.KindProviderUnavailable, "unknown provider %q", provider)
	}

	m.monMu.RLock()
	monitor := m.monitor
	m.monMu.RUnlock()
	if monitor != nil && !monitor.CanAttempt(provider) {
		return nil, gwerrors.New(gwerrors.KindProviderUnavailable, "provider %q circuit breaker is open", provider)
	}

	highWater := int64(m.cfg.PerProviderHighWater)
	if highWater > 0 && client.Inflight() >= highWater {
		return nil, gwerrors.New(gwerrors.KindProviderBusy, "provider %q is over its high-water mark", provider)
	}

	if timeout <= 0 {
		timeout = m.cfg.DefaultCallTimeout
	}
	if m.cfg.MaxCallTimeout > 0 && timeout > m.cfg.MaxCallTimeout {
		timeout = m.cfg.MaxCallTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = params

	res, err := client.CallTool(callCtx, req)
	if err != nil {
		if callCtx.Err() != nil {
			return nil, gwerrors.Wrap(gwerrors.KindTimeout, err, "call to %q:%q timed out", provider, tool)
		}
		return nil, err
	}
	return res, nil
}

// ListTools returns the current catalog snapshot, stamped with its
// fingerprint (§4.4).
func (m *Manager) ListTools() catalog.Snapshot {
	return m.cat.Snapshot()
}

// Shutdown closes every client concurrently, waiting up to the
// configured grace period (§4.4).
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	clients := make([]*downstream.Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.RUnlock()

	grace := m.cfg.ShutdownGrace
	if grace <= 0 {
		grace = 2 * time.Second
	}
	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, c := range clients {
			c := c
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = c.Close()
			}()
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(grace):
		return gwerrors.New(gwerrors.KindTimeout, "shutdown did not complete within grace period")
	case <-ctx.Done():
		return ctx.Err()
	}
}
