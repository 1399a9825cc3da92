package config

import "time"

// DefaultConfig returns the built-in configuration. User YAML and
// environment overrides are merged on top of these values.
func DefaultConfig() *Config {
	on := true
	return &Config{
		Server: &ServerConfig{
			Port:             8765,
			AllowedWSOrigins: []string{"localhost", "127.0.0.1"},
			AuthTokenEnv:     "BRIDGE_AUTH_TOKEN",
		},
		Database: &DatabaseConfig{
			Path: "bridge.db",
		},
		Executor: &ExecutorConfig{
			MaxConcurrentPlans: 4,
			DefaultTimeout:     5 * time.Minute,
			RollbackOnFailure:  false,
			ApprovalTimeout:    10 * time.Minute,
		},
		ResourceLimits: map[string]int{},
		Security: &SecurityConfig{
			Profile:  "local_worker",
			Scanners: []string{"heuristic"},
			Sanitizer: &SanitizerConfig{
				MaxOutputBytes: 64 * 1024,
			},
			ML: &MLScannerConfig{
				Timeout: 2 * time.Second,
			},
			LLM: &LLMConfig{
				Provider:  "anthropic",
				Model:     "claude-sonnet-4-5",
				APIKeyEnv: "ANTHROPIC_API_KEY",
				Timeout:   30 * time.Second,
				MaxTokens: 1024,
			},
			RateLimit: &RateLimitConfig{
				Enabled:      &on,
				MaxPerWindow: 120,
				Window:       time.Minute,
				SubmitBurst:  10,
				SubmitPerSec: 5,
			},
		},
		Triggers: &TriggersConfig{
			Enabled:             &on,
			MaxConcurrentPlans:  4,
			MaxChainDepth:       5,
			ExpirySweepInterval: 30 * time.Second,
			LockWaitTimeout:     60 * time.Second,
		},
		Retention: &RetentionConfig{
			Enabled:  false,
			MaxAge:   30 * 24 * time.Hour,
			Interval: time.Hour,
		},
	}
}
