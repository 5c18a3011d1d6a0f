package gwconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapEnvReader map[string]string

func (m mapEnvReader) Getenv(key string) string { return m[key] }

func TestYAMLLoader_LoadBytes_MinimalConfig(t *testing.T) {
	t.Parallel()

	doc := []byte(`
name: test-gateway
group: default
surface_mode: find+run

providers:
  - name: echo
    kind: stdio
    command: python3
    args: ["-m", "echo_server"]
`)
	l := NewYAMLLoaderWithEnv("", mapEnvReader{})
	cfg, err := l.LoadBytes(doc)
	require.NoError(t, err)

	assert.Equal(t, "test-gateway", cfg.Name)
	assert.Equal(t, SurfaceFindRun, cfg.SurfaceMode)
	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "python3", cfg.Providers[0].Command)
	// defaults overlay even though not present in the document.
	assert.Equal(t, 16*1024*1024, cfg.MaxFrameBytes)
	assert.True(t, cfg.Egress.AllowLoopback)
}

func TestYAMLLoader_LoadBytes_SubstitutesEnvVars(t *testing.T) {
	t.Parallel()

	doc := []byte(`
name: ${GATEWAY_NAME}
group: default
surface_mode: find+run
providers:
  - name: api
    kind: http
    url: https://api.example.com
`)
	env := mapEnvReader{"GATEWAY_NAME": "prod-gateway"}
	cfg, err := NewYAMLLoaderWithEnv("", env).LoadBytes(doc)
	require.NoError(t, err)
	assert.Equal(t, "prod-gateway", cfg.Name)
}

func TestYAMLLoader_LoadBytes_ResolvesTokenEnv(t *testing.T) {
	t.Parallel()

	doc := []byte(`
name: test
group: default
surface_mode: find+run
providers:
  - name: api
    kind: http
    url: https://api.example.com
    auth:
      kind: bearer
      token_env: API_TOKEN
`)
	env := mapEnvReader{"API_TOKEN": "secret-value"}
	cfg, err := NewYAMLLoaderWithEnv("", env).LoadBytes(doc)
	require.NoError(t, err)
	require.NotNil(t, cfg.Providers[0].Auth)
	assert.Equal(t, "secret-value", cfg.Providers[0].Auth.Token)
}

func TestYAMLLoader_LoadBytes_RejectsMalformedYAML(t *testing.T) {
	t.Parallel()

	_, err := NewYAMLLoaderWithEnv("", mapEnvReader{}).LoadBytes([]byte("not: valid: yaml: ["))
	assert.Error(t, err)
}

func TestYAMLLoader_LoadBytes_UnresolvedVarLeftAsLiteral(t *testing.T) {
	t.Parallel()

	doc := []byte(`
name: ${MISSING_VAR}
group: default
surface_mode: find+run
`)
	cfg, err := NewYAMLLoaderWithEnv("", mapEnvReader{}).LoadBytes(doc)
	require.NoError(t, err)
	assert.Equal(t, "${MISSING_VAR}", cfg.Name)
}
