package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the daemon configuration file looked up in configDir.
const ConfigFileName = "bridge.yaml"

// topLevelKeys guards environment overrides: only variables whose first
// double-underscore segment names a real config section are applied.
var topLevelKeys = map[string]bool{
	"server":          true,
	"database":        true,
	"executor":        true,
	"resource_limits": true,
	"security":        true,
	"triggers":        true,
	"retention":       true,
}

// listLeafKeys are config leaves decoded from comma-separated env values.
var listLeafKeys = map[string]bool{
	"scanners":           true,
	"sandbox_paths":      true,
	"allowed_ws_origins": true,
}

// Initialize loads, merges, and validates the daemon configuration.
//
// Steps performed:
//  1. Read bridge.yaml from configDir (missing file → defaults only)
//  2. Expand {{.ENV_VAR}} template references
//  3. Apply environment overrides (double-underscore nesting, e.g.
//     TRIGGERS__MAX_CHAIN_DEPTH=3, SECURITY__LLM__PROVIDER=ollama)
//  4. Merge on top of built-in defaults
//  5. Validate, collecting every violation
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	log.Info("Configuration initialized",
		"profile", cfg.Security.Profile,
		"scanners", cfg.Security.Scanners,
		"triggers_enabled", cfg.Triggers.Enabled,
		"max_concurrent_plans", cfg.Executor.MaxConcurrentPlans)
	return cfg, nil
}

func load(configDir string) (*Config, error) {
	raw := map[string]any{}

	path := filepath.Join(configDir, ConfigFileName)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		data = ExpandEnv(data)
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidYAML, path, err)
		}
	case os.IsNotExist(err):
		slog.Warn("Config file not found, using defaults with env overrides", "path", path)
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	applyEnvOverrides(raw, os.Environ())

	// Round-trip the merged map through YAML into the typed config so
	// env-sourced strings get the same coercion as file values.
	buf, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	// User values win over defaults; unset fields fall back.
	if err := mergo.Merge(cfg, DefaultConfig()); err != nil {
		return nil, fmt.Errorf("failed to merge defaults: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides walks environment variables with double-underscore
// nesting and writes them into the raw config map. The first segment must
// name a known config section; unknown variables are ignored.
func applyEnvOverrides(raw map[string]any, environ []string) {
	for _, env := range environ {
		idx := strings.IndexByte(env, '=')
		if idx <= 0 || !strings.Contains(env[:idx], "__") {
			continue
		}
		key, value := env[:idx], env[idx+1:]

		segments := strings.Split(strings.ToLower(key), "__")
		if len(segments) < 2 || !topLevelKeys[segments[0]] {
			continue
		}
		setNested(raw, segments, value)
	}
}

func setNested(m map[string]any, segments []string, value string) {
	leaf := segments[len(segments)-1]
	for _, seg := range segments[:len(segments)-1] {
		child, ok := m[seg].(map[string]any)
		if !ok {
			child = map[string]any{}
			m[seg] = child
		}
		m = child
	}
	if listLeafKeys[leaf] {
		parts := strings.Split(value, ",")
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		m[leaf] = out
		return
	}
	m[leaf] = coerceScalar(value)
}

// coerceScalar lets YAML decide the scalar type so "true", "42", and
// "0.5" become bool/int/float while "30s" stays a string for duration
// fields downstream.
func coerceScalar(value string) any {
	var v any
	if err := yaml.Unmarshal([]byte(value), &v); err != nil || v == nil {
		return value
	}
	switch v.(type) {
	case bool, int, int64, float64, string:
		return v
	default:
		return value
	}
}
