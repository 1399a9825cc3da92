// Package config loads, merges, and validates the daemon configuration
// from bridge.yaml plus environment overrides.
package config

import (
	"os"
	"time"
)

// Config is the fully merged, validated daemon configuration.
type Config struct {
	Server         *ServerConfig    `yaml:"server"`
	Database       *DatabaseConfig  `yaml:"database"`
	Executor       *ExecutorConfig  `yaml:"executor"`
	ResourceLimits map[string]int   `yaml:"resource_limits"`
	Security       *SecurityConfig  `yaml:"security"`
	Triggers       *TriggersConfig  `yaml:"triggers"`
	Retention      *RetentionConfig `yaml:"retention"`
}

// ServerConfig holds the HTTP/WebSocket surface settings.
type ServerConfig struct {
	Port             int      `yaml:"port"`
	AllowedWSOrigins []string `yaml:"allowed_ws_origins"`
	// AuthTokenEnv names the environment variable holding the bearer
	// token required on mutating routes. Empty disables auth (tests).
	AuthTokenEnv string `yaml:"auth_token_env"`
}

// AuthToken resolves the configured bearer token, or "" if auth is off.
func (s *ServerConfig) AuthToken() string {
	if s.AuthTokenEnv == "" {
		return ""
	}
	return os.Getenv(s.AuthTokenEnv)
}

// DatabaseConfig locates the embedded SQLite store.
type DatabaseConfig struct {
	// Path is the SQLite file path; ":memory:" keeps state in-process.
	Path string `yaml:"path"`
}

// ExecutorConfig bounds plan execution.
type ExecutorConfig struct {
	MaxConcurrentPlans int           `yaml:"max_concurrent_plans"`
	DefaultTimeout     time.Duration `yaml:"default_timeout"`
	// RollbackOnFailure is the global default; a plan may override it.
	RollbackOnFailure bool `yaml:"rollback_on_failure"`
	// ApprovalTimeout bounds how long a gated action waits for a decision.
	ApprovalTimeout time.Duration `yaml:"approval_timeout"`
}

// SecurityConfig selects the permission profile and the scanner chain.
type SecurityConfig struct {
	// Profile is one of readonly, local_worker, power_user, unrestricted.
	Profile string `yaml:"profile"`
	// Scanners lists the admission scanners in execution order.
	// Recognised: heuristic, ml, intent.
	Scanners []string `yaml:"scanners"`
	// StrictTemplates makes missing {{memory.K}} keys a resolution error
	// instead of an empty string.
	StrictTemplates bool `yaml:"strict_templates"`
	// StrictClarify maps an intent-verifier "clarify" verdict to REJECT
	// with clarification_needed instead of WARN.
	StrictClarify bool `yaml:"strict_clarify"`
	// SandboxPaths extends the profile's sandbox prefix list.
	SandboxPaths []string `yaml:"sandbox_paths"`

	Sanitizer *SanitizerConfig `yaml:"sanitizer"`
	ML        *MLScannerConfig `yaml:"ml"`
	LLM       *LLMConfig       `yaml:"llm"`

	RateLimit *RateLimitConfig `yaml:"rate_limit"`
}

// SanitizerConfig bounds model-bound output.
type SanitizerConfig struct {
	MaxOutputBytes int `yaml:"max_output_bytes"`
}

// MLScannerConfig points the ML scanner adapter at an external classifier.
type MLScannerConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// LLMConfig selects and configures the intent-verifier provider.
type LLMConfig struct {
	// Provider is one of anthropic, openai, ollama.
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string        `yaml:"api_key_env"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxTokens int           `yaml:"max_tokens"`
}

// APIKey resolves the provider API key from the environment.
func (l *LLMConfig) APIKey() string {
	if l.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(l.APIKeyEnv)
}

// RateLimitConfig bounds plan submissions per identity and action.
// Enabled is a pointer so an explicit false survives the defaults merge.
type RateLimitConfig struct {
	Enabled      *bool         `yaml:"enabled,omitempty"`
	MaxPerWindow int           `yaml:"max_per_window"`
	Window       time.Duration `yaml:"window"`
	SubmitBurst  int           `yaml:"submit_burst"`
	SubmitPerSec float64       `yaml:"submit_per_sec"`
}

// IsEnabled reports whether submission rate limiting is on.
func (r *RateLimitConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// TriggersConfig controls the trigger daemon.
// Enabled is a pointer so an explicit false survives the defaults merge.
type TriggersConfig struct {
	Enabled             *bool         `yaml:"enabled,omitempty"`
	MaxConcurrentPlans  int           `yaml:"max_concurrent_plans"`
	MaxChainDepth       int           `yaml:"max_chain_depth"`
	ExpirySweepInterval time.Duration `yaml:"expiry_sweep_interval"`
	// LockWaitTimeout bounds the queue conflict policy's wait.
	LockWaitTimeout time.Duration `yaml:"lock_wait_timeout"`
}

// IsEnabled reports whether the trigger daemon should run.
func (t *TriggersConfig) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// RetentionConfig controls purging of old terminal plan records.
type RetentionConfig struct {
	Enabled  bool          `yaml:"enabled"`
	MaxAge   time.Duration `yaml:"max_age"`
	Interval time.Duration `yaml:"interval"`
}
