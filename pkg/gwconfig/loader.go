package gwconfig

import (
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/mcpvgw/vgateway/pkg/gwerrors"
)

// EnvReader abstracts environment lookup for testability, matching the
// same seam used by pkg/logger.
type EnvReader interface {
	Getenv(key string) string
}

type osEnvReader struct{}

func (osEnvReader) Getenv(key string) string { return os.Getenv(key) }

// envVarPattern matches "${VAR}" or "$VAR" references inside a raw YAML
// document, substituted before parsing.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// YAMLLoader loads a Config from a YAML profile file, substituting
// ${VAR}/$VAR references against the environment and filling an empty
// HTTPAuth.Token from the variable named by HTTPAuth.TokenEnv. No other
// "*_env" field is resolved.
type YAMLLoader struct {
	path string
	env  EnvReader
}

// NewYAMLLoader constructs a loader reading from path using the real OS
// environment. Pass a custom EnvReader via NewYAMLLoaderWithEnv in tests.
func NewYAMLLoader(path string) *YAMLLoader {
	return NewYAMLLoaderWithEnv(path, osEnvReader{})
}

// NewYAMLLoaderWithEnv is NewYAMLLoader with an injectable EnvReader.
func NewYAMLLoaderWithEnv(path string, env EnvReader) *YAMLLoader {
	return &YAMLLoader{path: path, env: env}
}

// Load reads, substitutes, and parses the profile, overlaying it onto
// Defaults().
func (l *YAMLLoader) Load() (*Config, error) {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindInvalidRequest, err, "reading profile %q", l.path)
	}
	return l.LoadBytes(raw)
}

// LoadBytes parses an in-memory YAML document, exposed separately so
// tests don't need a real file.
func (l *YAMLLoader) LoadBytes(raw []byte) (*Config, error) {
	substituted := l.substituteEnv(raw)

	cfg := Defaults()
	if err := yaml.Unmarshal(substituted, cfg); err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindInvalidRequest, err, "parsing profile YAML")
	}

	for i := range cfg.Providers {
		if cfg.Providers[i].Auth != nil && cfg.Providers[i].Auth.TokenEnv != "" && cfg.Providers[i].Auth.Token == "" {
			cfg.Providers[i].Auth.Token = l.env.Getenv(cfg.Providers[i].Auth.TokenEnv)
		}
	}

	return cfg, nil
}

func (l *YAMLLoader) substituteEnv(raw []byte) []byte {
	return envVarPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		groups := envVarPattern.FindSubmatch(match)
		name := string(groups[1])
		if name == "" {
			name = string(groups[2])
		}
		if v := l.env.Getenv(name); v != "" {
			return []byte(v)
		}
		return match
	})
}
