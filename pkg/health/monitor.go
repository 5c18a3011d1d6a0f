package health

import (
	"context"
	"sync"
	"time"

	"github.com/mcpvgw/vgateway/pkg/gwerrors"
	"github.com/mcpvgw/vgateway/pkg/logger"
)

// ProviderState mirrors the subset of pkg/downstream's State the
// monitor needs, kept as a string to avoid an import cycle between
// pkg/health and pkg/downstream.
type ProviderState string

// Checker reports the current state of one provider; pkg/connmgr
// implements this by delegating to the downstream client's State().
type Checker interface {
	CheckProvider(ctx context.Context, provider string) (ProviderState, error)
}

// ProviderReady is the ProviderState value CheckProvider returns for a
// healthy provider; any other value (or an error) counts as a failure
// for breaker purposes.
const ProviderReady ProviderState = "ready"

// Summary is a point-in-time view of every tracked provider's breaker.
type Summary struct {
	Providers map[string]Snapshot
}

// Monitor periodically polls a Checker for each tracked provider and
// feeds the result into that provider's CircuitBreaker, so a
// repeatedly-failing provider can be fast-failed before connmgr even
// attempts the call.
type Monitor struct {
	checker  Checker
	interval time.Duration
	cfg      *CircuitBreakerConfig

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker

	stop chan struct{}
	done chan struct{}
}

// NewMonitor constructs a Monitor. interval must be positive and
// checker must be non-nil.
func NewMonitor(checker Checker, interval time.Duration, cfg *CircuitBreakerConfig) (*Monitor, error) {
	if checker == nil {
		return nil, gwerrors.New(gwerrors.KindInvalidRequest, "health monitor requires a non-nil checker")
	}
	if interval <= 0 {
		return nil, gwerrors.New(gwerrors.KindInvalidRequest, "health monitor interval must be positive")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Monitor{
		checker:  checker,
		interval: interval,
		cfg:      cfg,
		breakers: make(map[string]*CircuitBreaker),
	}, nil
}

// Track registers provider with its own breaker. Safe to call before or
// after Start.
func (m *Monitor) Track(provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.breakers[provider]; ok {
		return
	}
	threshold, timeout := 1<<30, time.Hour // effectively never trips when disabled
	if m.cfg != nil && m.cfg.Enabled {
		threshold, timeout = m.cfg.FailureThreshold, m.cfg.Timeout
	}
	m.breakers[provider] = NewCircuitBreaker(threshold, timeout)
}

// CanAttempt reports whether provider's breaker currently allows a
// call. An untracked provider is always allowed (no breaker yet).
func (m *Monitor) CanAttempt(provider string) bool {
	m.mu.RLock()
	cb, ok := m.breakers[provider]
	m.mu.RUnlock()
	if !ok {
		return true
	}
	return cb.CanAttempt()
}

// Start begins the polling loop in a background goroutine; Stop must be
// called to release it.
func (m *Monitor) Start(ctx context.Context) {
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.run(ctx)
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.pollOnce(ctx)
		}
	}
}

func (m *Monitor) pollOnce(ctx context.Context) {
	m.mu.RLock()
	providers := make([]string, 0, len(m.breakers))
	for p := range m.breakers {
		providers = append(providers, p)
	}
	m.mu.RUnlock()

	for _, p := range providers {
		state, err := m.checker.CheckProvider(ctx, p)
		m.mu.RLock()
		cb := m.breakers[p]
		m.mu.RUnlock()
		if cb == nil {
			continue
		}
		if err != nil || state != ProviderReady {
			cb.RecordFailure()
			logger.Warnw("health check failed", "provider", p, "state", state, "error", err)
			continue
		}
		cb.RecordSuccess()
	}
}

// Stop halts the polling loop and waits for it to exit.
func (m *Monitor) Stop() {
	if m.stop == nil {
		return
	}
	close(m.stop)
	<-m.done
}

// Summary returns a snapshot of every tracked provider's breaker.
func (m *Monitor) Summary() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Snapshot, len(m.breakers))
	for p, cb := range m.breakers {
		out[p] = cb.GetSnapshot()
	}
	return Summary{Providers: out}
}
