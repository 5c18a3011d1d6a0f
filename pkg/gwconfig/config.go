// Package gwconfig defines the gateway's configuration model — the
// provider profile, synthesized-surface mode, and the sandbox/egress/
// semantic-index knobs — and the YAML loader and validator that produce
// it (§3 "Provider config", §6 "Environment knobs").
package gwconfig

import "time"

// SurfaceMode selects which synthesized tools the gateway server
// advertises over tools/list (§4.7, §6). Exactly one is active.
type SurfaceMode string

// Supported surface modes.
const (
	SurfaceFindRun  SurfaceMode = "find+run"
	SurfaceFindCode SurfaceMode = "find+code"
	SurfaceCodeOnly SurfaceMode = "code-only"
)

// ProviderKind distinguishes the two provider transport variants (§3).
type ProviderKind string

// Supported provider kinds.
const (
	ProviderStdio    ProviderKind = "stdio"
	ProviderHTTP     ProviderKind = "http"
	ProviderInternal ProviderKind = "internal"
)

// AuthKind selects how an HTTP provider authenticates outbound requests.
type AuthKind string

// Supported HTTP auth kinds.
const (
	AuthNone   AuthKind = "none"
	AuthBearer AuthKind = "bearer"
	AuthOAuth  AuthKind = "oauth"
)

// HTTPAuth configures outbound authentication for an HTTP provider.
type HTTPAuth struct {
	Kind          AuthKind          `yaml:"kind"`
	Token         string            `yaml:"token,omitempty"`
	TokenEnv      string            `yaml:"token_env,omitempty"`
	OAuthParams   map[string]string `yaml:"oauth_params,omitempty"`
}

// Provider is one named downstream entry. Exactly one of Stdio or HTTP
// fields is meaningful, selected by Kind.
type Provider struct {
	Name string       `yaml:"name"`
	Kind ProviderKind `yaml:"kind"`

	// Stdio variant.
	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`

	// HTTP variant.
	URL  string    `yaml:"url,omitempty"`
	Auth *HTTPAuth `yaml:"auth,omitempty"`
}

// SandboxConfig bounds a single code-sandbox invocation (§4.8).
type SandboxConfig struct {
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	MaxTimeout     time.Duration `yaml:"max_timeout"`
	MemoryCeiling  int64         `yaml:"memory_ceiling_bytes"`
	MaxOutputBytes int64         `yaml:"max_output_bytes"`
}

// DefaultSandboxConfig mirrors the spec's defaults: 30s/5min timeout,
// 64 MiB memory ceiling, 1 MiB output cap.
func DefaultSandboxConfig() SandboxConfig {
	return SandboxConfig{
		DefaultTimeout: 30 * time.Second,
		MaxTimeout:     5 * time.Minute,
		MemoryCeiling:  64 * 1024 * 1024,
		MaxOutputBytes: 1024 * 1024,
	}
}

// EgressConfig configures the sandbox network broker (§4.9).
type EgressConfig struct {
	AllowLoopback    bool `yaml:"allow_loopback"`
	PromptPrivateLAN bool `yaml:"prompt_private_lan"`
	PromptLinkLocal  bool `yaml:"prompt_link_local"`
	AllowPublic      bool `yaml:"allow_public"`
}

// DefaultEgressConfig mirrors §4.9's stated defaults.
func DefaultEgressConfig() EgressConfig {
	return EgressConfig{
		AllowLoopback:    true,
		PromptPrivateLAN: true,
		PromptLinkLocal:  true,
		AllowPublic:      true,
	}
}

// SemanticIndexConfig tunes the embedding warm-up and query path (§4.6).
type SemanticIndexConfig struct {
	WarmUpConcurrency int           `yaml:"warmup_concurrency"`
	QueryBudget       time.Duration `yaml:"query_budget"`
	DefaultLimit      int           `yaml:"default_limit"`
	MaxLimit          int           `yaml:"max_limit"`
}

// DefaultSemanticIndexConfig matches the 250ms budget and default k=10
// named in §4.6 and §6.
func DefaultSemanticIndexConfig() SemanticIndexConfig {
	return SemanticIndexConfig{
		WarmUpConcurrency: 4,
		QueryBudget:       250 * time.Millisecond,
		DefaultLimit:      10,
		MaxLimit:          50,
	}
}

// PartialFailureMode names a policy for providers that failed to connect
// at startup or were dropped mid-session by the health monitor's
// breaker. The value is parsed and defaulted, but no component reads it:
// the gateway serves whichever providers are ready under either mode.
type PartialFailureMode string

// Supported partial-failure modes.
const (
	// DegradeServeReady serves the tools of whichever providers are
	// ready and reports the rest as unavailable in find/run errors.
	DegradeServeReady PartialFailureMode = "serve-ready"
	// DegradeFailClosed is an accepted value; the gateway does not refuse
	// to start or to serve calls when it is set.
	DegradeFailClosed PartialFailureMode = "fail-closed"
)

// OperationalConfig tunes behavior that spans providers rather than
// configuring any one subsystem.
type OperationalConfig struct {
	PartialFailureMode PartialFailureMode `yaml:"partial_failure_mode"`
}

// DefaultOperationalConfig degrades to serving whatever is ready,
// matching the connection manager's existing isolate-one-provider's-
// failure behavior (§4.4).
func DefaultOperationalConfig() OperationalConfig {
	return OperationalConfig{PartialFailureMode: DegradeServeReady}
}

// ConnectionConfig tunes the connection manager (§4.4, §5).
type ConnectionConfig struct {
	HandshakeConcurrency int           `yaml:"handshake_concurrency"`
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	ShutdownGrace        time.Duration `yaml:"shutdown_grace"`
	PerProviderHighWater int           `yaml:"per_provider_high_water"`
	DefaultCallTimeout   time.Duration `yaml:"default_call_timeout"`
	MaxCallTimeout       time.Duration `yaml:"max_call_timeout"`
}

// DefaultConnectionConfig mirrors §4.3/§4.4's stated defaults: 8-way
// handshake fan-out cap, 10s handshake timeout, 2s shutdown grace, 30s
// default / 5min max call timeout.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		HandshakeConcurrency: 8,
		HandshakeTimeout:     10 * time.Second,
		ShutdownGrace:        2 * time.Second,
		PerProviderHighWater: 64,
		DefaultCallTimeout:   30 * time.Second,
		MaxCallTimeout:       5 * time.Minute,
	}
}

// Config is the gateway's fully resolved configuration.
type Config struct {
	Name              string               `yaml:"name"`
	ProfileRef        string               `yaml:"group"`
	SurfaceMode       SurfaceMode          `yaml:"surface_mode"`
	Debug             bool                 `yaml:"debug"`
	ExtensionMode     bool                 `yaml:"extension_mode"`
	MaxFrameBytes     int                  `yaml:"max_frame_bytes"`
	Providers         []Provider           `yaml:"providers"`
	Sandbox           SandboxConfig        `yaml:"sandbox"`
	Egress            EgressConfig         `yaml:"egress"`
	SemanticIndex     SemanticIndexConfig  `yaml:"semantic_index"`
	Connection        ConnectionConfig     `yaml:"connection"`
	Operational       OperationalConfig    `yaml:"operational"`
	ConflictStrategy  string               `yaml:"conflict_resolution"`
	ConflictPriority  []string             `yaml:"conflict_priority"`
	StateDir          string               `yaml:"state_dir"`
}

// Defaults returns a Config with every sub-section's documented default
// and an empty provider set, suitable as a base before a YAML overlay.
func Defaults() *Config {
	return &Config{
		SurfaceMode:      SurfaceFindRun,
		MaxFrameBytes:    16 * 1024 * 1024,
		Sandbox:          DefaultSandboxConfig(),
		Egress:           DefaultEgressConfig(),
		SemanticIndex:    DefaultSemanticIndexConfig(),
		Connection:       DefaultConnectionConfig(),
		Operational:      DefaultOperationalConfig(),
		ConflictStrategy: "prefix",
	}
}
