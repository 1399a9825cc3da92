package config

import "fmt"

var validProfiles = map[string]bool{
	"readonly":     true,
	"local_worker": true,
	"power_user":   true,
	"unrestricted": true,
}

var validScanners = map[string]bool{
	"heuristic": true,
	"ml":        true,
	"intent":    true,
}

var validProviders = map[string]bool{
	"anthropic": true,
	"openai":    true,
	"ollama":    true,
}

// validate checks the merged configuration, collecting every violation.
func validate(cfg *Config) error {
	errs := &ValidationErrors{}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs.Addf("server.port", "must be in 1..65535, got %d", cfg.Server.Port)
	}
	if cfg.Database.Path == "" {
		errs.Addf("database.path", "must not be empty")
	}
	if cfg.Executor.MaxConcurrentPlans < 1 {
		errs.Addf("executor.max_concurrent_plans", "must be >= 1, got %d", cfg.Executor.MaxConcurrentPlans)
	}
	if cfg.Executor.DefaultTimeout <= 0 {
		errs.Addf("executor.default_timeout", "must be positive, got %s", cfg.Executor.DefaultTimeout)
	}
	for module, limit := range cfg.ResourceLimits {
		if limit < 1 {
			errs.Addf(fmt.Sprintf("resource_limits.%s", module), "must be >= 1, got %d", limit)
		}
	}

	if !validProfiles[cfg.Security.Profile] {
		errs.Addf("security.profile", "unknown profile %q", cfg.Security.Profile)
	}
	for _, s := range cfg.Security.Scanners {
		if !validScanners[s] {
			errs.Addf("security.scanners", "unknown scanner %q", s)
		}
	}
	if hasScanner(cfg.Security.Scanners, "ml") && cfg.Security.ML.URL == "" {
		errs.Addf("security.ml.url", "required when the ml scanner is enabled")
	}
	if hasScanner(cfg.Security.Scanners, "intent") {
		if !validProviders[cfg.Security.LLM.Provider] {
			errs.Addf("security.llm.provider", "unknown provider %q", cfg.Security.LLM.Provider)
		}
		if cfg.Security.LLM.Model == "" {
			errs.Addf("security.llm.model", "required when the intent scanner is enabled")
		}
	}
	if cfg.Security.Sanitizer.MaxOutputBytes < 1 {
		errs.Addf("security.sanitizer.max_output_bytes", "must be >= 1, got %d", cfg.Security.Sanitizer.MaxOutputBytes)
	}

	if cfg.Triggers.IsEnabled() {
		if cfg.Triggers.MaxConcurrentPlans < 1 {
			errs.Addf("triggers.max_concurrent_plans", "must be >= 1, got %d", cfg.Triggers.MaxConcurrentPlans)
		}
		if cfg.Triggers.MaxChainDepth < 1 {
			errs.Addf("triggers.max_chain_depth", "must be >= 1, got %d", cfg.Triggers.MaxChainDepth)
		}
		if cfg.Triggers.ExpirySweepInterval <= 0 {
			errs.Addf("triggers.expiry_sweep_interval", "must be positive, got %s", cfg.Triggers.ExpirySweepInterval)
		}
	}

	if cfg.Retention.Enabled {
		if cfg.Retention.MaxAge <= 0 {
			errs.Addf("retention.max_age", "must be positive, got %s", cfg.Retention.MaxAge)
		}
		if cfg.Retention.Interval <= 0 {
			errs.Addf("retention.interval", "must be positive, got %s", cfg.Retention.Interval)
		}
	}

	if errs.Empty() {
		return nil
	}
	return errs
}

func hasScanner(scanners []string, name string) bool {
	for _, s := range scanners {
		if s == name {
			return true
		}
	}
	return false
}
