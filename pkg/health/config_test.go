package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreakerConfig_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		config  *CircuitBreakerConfig
		wantErr bool
	}{
		{"nil config is valid", nil, false},
		{"disabled config is valid", &CircuitBreakerConfig{Enabled: false, FailureThreshold: 0}, false},
		{"valid enabled config", &CircuitBreakerConfig{Enabled: true, FailureThreshold: 5, Timeout: 60 * time.Second}, false},
		{"enabled with zero threshold", &CircuitBreakerConfig{Enabled: true, FailureThreshold: 0, Timeout: time.Second}, true},
		{"enabled with negative threshold", &CircuitBreakerConfig{Enabled: true, FailureThreshold: -1, Timeout: time.Second}, true},
		{"enabled with zero timeout", &CircuitBreakerConfig{Enabled: true, FailureThreshold: 5, Timeout: 0}, true},
		{"enabled with negative timeout", &CircuitBreakerConfig{Enabled: true, FailureThreshold: 5, Timeout: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultCircuitBreakerConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultCircuitBreakerConfig()
	assert.NoError(t, cfg.Validate())
	assert.True(t, cfg.Enabled)
}
