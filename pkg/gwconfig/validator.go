package gwconfig

import (
	"fmt"
	"strings"

	"github.com/mcpvgw/vgateway/pkg/gwerrors"
)

// Validator checks a loaded Config for internal consistency before it is
// handed to the rest of the gateway (§3 invariants, §6 surface modes).
type Validator struct{}

// NewValidator constructs a stateless Validator.
func NewValidator() *Validator { return &Validator{} }

// Validate returns a single error aggregating every violation found, or
// nil if cfg is well-formed.
func (*Validator) Validate(cfg *Config) error {
	var problems []string

	switch cfg.SurfaceMode {
	case SurfaceFindRun, SurfaceFindCode, SurfaceCodeOnly:
	case "":
		problems = append(problems, "surface_mode must be set")
	default:
		problems = append(problems, fmt.Sprintf("surface_mode %q is not one of find+run, find+code, code-only", cfg.SurfaceMode))
	}

	seen := make(map[string]bool, len(cfg.Providers))
	for i, p := range cfg.Providers {
		if p.Name == "" {
			problems = append(problems, fmt.Sprintf("providers[%d]: name must not be empty", i))
			continue
		}
		if strings.Contains(p.Name, ":") {
			problems = append(problems, fmt.Sprintf("providers[%d] %q: name must not contain ':'", i, p.Name))
		}
		if seen[p.Name] {
			problems = append(problems, fmt.Sprintf("duplicate provider name %q", p.Name))
		}
		seen[p.Name] = true

		switch p.Kind {
		case ProviderStdio:
			if p.Command == "" {
				problems = append(problems, fmt.Sprintf("provider %q: stdio requires command", p.Name))
			}
		case ProviderHTTP:
			if p.URL == "" {
				problems = append(problems, fmt.Sprintf("provider %q: http requires url", p.Name))
			}
			if p.Auth != nil {
				switch p.Auth.Kind {
				case AuthNone, AuthBearer, AuthOAuth:
				default:
					problems = append(problems, fmt.Sprintf("provider %q: auth.kind %q is invalid", p.Name, p.Auth.Kind))
				}
			}
		case ProviderInternal:
			// No command/url: an internal provider's behavior comes
			// from a registered internaltool.Factory keyed by name.
		default:
			problems = append(problems, fmt.Sprintf("provider %q: kind %q must be stdio, http, or internal", p.Name, p.Kind))
		}
	}

	if cfg.Sandbox.DefaultTimeout <= 0 {
		problems = append(problems, "sandbox.default_timeout must be positive")
	}
	if cfg.Sandbox.MaxTimeout < cfg.Sandbox.DefaultTimeout {
		problems = append(problems, "sandbox.max_timeout must be >= sandbox.default_timeout")
	}
	if cfg.Sandbox.MemoryCeiling <= 0 {
		problems = append(problems, "sandbox.memory_ceiling_bytes must be positive")
	}

	if cfg.SemanticIndex.DefaultLimit <= 0 || cfg.SemanticIndex.DefaultLimit > cfg.SemanticIndex.MaxLimit {
		problems = append(problems, "semantic_index.default_limit must be in (0, max_limit]")
	}

	switch cfg.ConflictStrategy {
	case "prefix", "priority", "":
	default:
		problems = append(problems, fmt.Sprintf("conflict_resolution %q must be prefix or priority", cfg.ConflictStrategy))
	}
	if cfg.ConflictStrategy == "priority" && len(cfg.ConflictPriority) == 0 {
		problems = append(problems, "conflict_resolution=priority requires a non-empty conflict_priority list")
	}

	if len(problems) == 0 {
		return nil
	}
	return gwerrors.New(gwerrors.KindInvalidRequest, "invalid configuration: %s", strings.Join(problems, "; "))
}
