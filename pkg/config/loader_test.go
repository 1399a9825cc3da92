package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o644))
	return dir
}

func TestInitializeDefaultsOnly(t *testing.T) {
	cfg, err := Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8765, cfg.Server.Port)
	assert.Equal(t, "local_worker", cfg.Security.Profile)
	assert.Equal(t, []string{"heuristic"}, cfg.Security.Scanners)
	assert.Equal(t, 4, cfg.Executor.MaxConcurrentPlans)
	assert.True(t, cfg.Triggers.IsEnabled())
	assert.Equal(t, 5, cfg.Triggers.MaxChainDepth)
}

func TestInitializeMergesYAMLOverDefaults(t *testing.T) {
	dir := writeConfig(t, `
server:
  port: 9000
executor:
  max_concurrent_plans: 8
  default_timeout: 90s
resource_limits:
  filesystem: 2
  shell: 1
security:
  profile: readonly
triggers:
  enabled: false
`)
	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Executor.MaxConcurrentPlans)
	assert.Equal(t, 90*time.Second, cfg.Executor.DefaultTimeout)
	assert.Equal(t, 2, cfg.ResourceLimits["filesystem"])
	assert.Equal(t, "readonly", cfg.Security.Profile)
	assert.False(t, cfg.Triggers.IsEnabled())
	// Untouched sections keep defaults.
	assert.Equal(t, 64*1024, cfg.Security.Sanitizer.MaxOutputBytes)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRIGGERS__MAX_CHAIN_DEPTH", "3")
	t.Setenv("SECURITY__LLM__PROVIDER", "ollama")
	t.Setenv("SECURITY__SCANNERS", "heuristic,intent")
	t.Setenv("EXECUTOR__DEFAULT_TIMEOUT", "45s")
	// Unknown top-level sections must be ignored.
	t.Setenv("NOT_A_SECTION__FOO", "bar")

	cfg, err := Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Triggers.MaxChainDepth)
	assert.Equal(t, "ollama", cfg.Security.LLM.Provider)
	assert.Equal(t, []string{"heuristic", "intent"}, cfg.Security.Scanners)
	assert.Equal(t, 45*time.Second, cfg.Executor.DefaultTimeout)
}

func TestEnvOverridesWinOverYAML(t *testing.T) {
	dir := writeConfig(t, `
triggers:
  max_chain_depth: 7
`)
	t.Setenv("TRIGGERS__MAX_CHAIN_DEPTH", "2")

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Triggers.MaxChainDepth)
}

func TestValidationCollectsAllViolations(t *testing.T) {
	dir := writeConfig(t, `
server:
  port: -1
security:
  profile: superuser
  scanners: [heuristic, bogus]
executor:
  max_concurrent_plans: 0
`)
	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorContains(t, err, "server.port")
	assert.ErrorContains(t, err, "security.profile")
	assert.ErrorContains(t, err, "security.scanners")
	assert.ErrorContains(t, err, "executor.max_concurrent_plans")
}

func TestMLScannerRequiresURL(t *testing.T) {
	dir := writeConfig(t, `
security:
  scanners: [heuristic, ml]
`)
	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorContains(t, err, "security.ml.url")
}

func TestExpandEnvTemplates(t *testing.T) {
	t.Setenv("BRIDGE_TEST_DB", "/tmp/state.db")
	out := ExpandEnv([]byte("database:\n  path: {{.BRIDGE_TEST_DB}}\n"))
	assert.Contains(t, string(out), "/tmp/state.db")
}
