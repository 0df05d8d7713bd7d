package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_EmptyDocumentUsesDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "/api", cfg.Server.BasePath)
	assert.Equal(t, "scullery.db", cfg.Store.LogPath)
	assert.Equal(t, "scullery-docs.db", cfg.Store.DocsPath)
	assert.Equal(t, 1000, cfg.Engine.MaxSteps)
	assert.Equal(t, 25, cfg.Engine.MaxRepeats)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout())
	assert.Empty(t, cfg.Routes.Inclusions)
}

func TestParse_OverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
server:
  port: 9999
  basePath: /v1
llm:
  model: gpt-4o
engine:
  maxSteps: 50
request:
  timeoutSeconds: 3
routes:
  exclusions:
    - /Recipe/addRecipe
`))
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "/v1", cfg.Server.BasePath)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 50, cfg.Engine.MaxSteps)
	// Unset fields keep their defaults.
	assert.Equal(t, 25, cfg.Engine.MaxRepeats)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout())
	assert.Equal(t, []string{"/Recipe/addRecipe"}, cfg.Routes.Exclusions)
}

func TestParse_RejectsOutOfRangePort(t *testing.T) {
	_, err := Parse([]byte("server:\n  port: 70000\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate")
}

func TestParse_RejectsWrongType(t *testing.T) {
	_, err := Parse([]byte("engine:\n  maxSteps: \"lots\"\n"))
	require.Error(t, err)
}

func TestParse_RejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte(":\n  - ["))
	require.Error(t, err)
}

func TestLoad_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scullery.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8181\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8181, cfg.Server.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}
