package health

import (
	"time"

	"github.com/mcpvgw/vgateway/pkg/gwerrors"
)

// CircuitBreakerConfig configures per-provider circuit breaking. A nil
// config (or one with Enabled=false) disables breaking entirely: every
// call is always attempted and failures are tracked only via the
// provider's Degraded state in pkg/downstream.
type CircuitBreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	Timeout          time.Duration
}

// Validate returns an error only for an enabled config with an invalid
// threshold or timeout; a disabled (or nil) config is always valid.
func (c *CircuitBreakerConfig) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}
	if c.FailureThreshold < 1 {
		return gwerrors.New(gwerrors.KindInvalidRequest, "circuit breaker failure threshold must be >= 1")
	}
	if c.Timeout <= 0 {
		return gwerrors.New(gwerrors.KindInvalidRequest, "circuit breaker timeout must be positive")
	}
	return nil
}

// DefaultCircuitBreakerConfig enables breaking with a 5-failure
// threshold and a 60s cool-down, matching the teacher's own default.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{Enabled: true, FailureThreshold: 5, Timeout: 60 * time.Second}
}
