package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// validEventTypes is the set of event type strings Validate accepts in
// EventTypes/ExcludeEventTypes.
var validEventTypes = map[string]bool{
	EventTypeMCPInitialize:       true,
	EventTypeMCPToolCall:         true,
	EventTypeMCPToolsList:        true,
	EventTypeMCPResourceRead:     true,
	EventTypeMCPResourcesList:    true,
	EventTypeMCPPromptGet:        true,
	EventTypeMCPPromptsList:      true,
	EventTypeMCPNotification:     true,
	EventTypeMCPPing:             true,
	EventTypeMCPLogging:          true,
	EventTypeMCPCompletion:       true,
	EventTypeMCPRootsListChanged: true,
}

// Config configures an Auditor.
type Config struct {
	Component         string   `json:"component,omitempty"`
	EventTypes        []string `json:"event_types,omitempty"`
	ExcludeEventTypes []string `json:"exclude_event_types,omitempty"`
	IncludeParams     bool     `json:"include_params"`
	IncludeResult     bool     `json:"include_result"`
	MaxDataSize       int      `json:"max_data_size"`
	LogFile           string   `json:"log_file,omitempty"`
}

// DefaultConfig returns the zero-value-safe default: log every event type
// to stdout without capturing params or results. MaxDataSize is 1 KiB, so
// if capture is switched on, a payload larger than that is left out of
// the event.
func DefaultConfig() *Config {
	return &Config{MaxDataSize: 1024}
}

// LoadFromReader decodes a JSON audit config document.
func LoadFromReader(r io.Reader) (*Config, error) {
	var cfg Config
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode audit config: %w", err)
	}
	return &cfg, nil
}

// LoadFromFile reads and decodes a JSON audit config file.
func LoadFromFile(path string) (*Config, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open audit config file: %w", err)
	}
	defer f.Close()
	return LoadFromReader(f)
}

// ShouldAuditEvent reports whether eventType should be logged: excluded
// types always lose, an empty EventTypes allow-list means "audit
// everything else".
func (c *Config) ShouldAuditEvent(eventType string) bool {
	if c == nil {
		return true
	}
	for _, excluded := range c.ExcludeEventTypes {
		if excluded == eventType {
			return false
		}
	}
	if len(c.EventTypes) == 0 {
		return true
	}
	for _, included := range c.EventTypes {
		if included == eventType {
			return true
		}
	}
	return false
}

// Validate checks the config for internal consistency and fills in the
// default MaxDataSize when left at zero.
func (c *Config) Validate() error {
	if c.MaxDataSize < 0 {
		return fmt.Errorf("max_data_size cannot be negative")
	}
	if c.MaxDataSize == 0 {
		c.MaxDataSize = DefaultConfig().MaxDataSize
	}
	for _, t := range c.EventTypes {
		if !validEventTypes[t] {
			return fmt.Errorf("unknown event type: %s", t)
		}
	}
	for _, t := range c.ExcludeEventTypes {
		if !validEventTypes[t] {
			return fmt.Errorf("unknown exclude event type: %s", t)
		}
	}
	return nil
}

// GetLogWriter opens the configured log destination: stdout when LogFile
// is unset (or c is nil), otherwise an append-mode file created (with
// parent directories already expected to exist) at owner-only
// permissions.
func (c *Config) GetLogWriter() (io.Writer, error) {
	if c == nil || c.LogFile == "" {
		return os.Stdout, nil
	}
	f, err := os.OpenFile(filepath.Clean(c.LogFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	return f, nil
}
