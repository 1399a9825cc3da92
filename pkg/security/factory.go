package security

import (
	"fmt"
	"log/slog"

	"github.com/llmos-bridge/bridge/pkg/config"
	"github.com/llmos-bridge/bridge/pkg/llm"
)

// BuildPipeline assembles the scanner chain from configuration, in the
// configured order. The heuristic scanner is always present even when
// the scanners list omits it.
func BuildPipeline(cfg *config.SecurityConfig, logger *slog.Logger) (*Pipeline, error) {
	names := cfg.Scanners
	if len(names) == 0 {
		names = []string{"heuristic"}
	}

	var scanners []Scanner
	seen := map[string]bool{}
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		switch name {
		case "heuristic":
			scanners = append(scanners, NewHeuristicScanner())
		case "ml":
			if cfg.ML == nil || cfg.ML.URL == "" {
				return nil, fmt.Errorf("ml scanner enabled without ml.url")
			}
			scanners = append(scanners, NewMLScanner(cfg.ML, logger))
		case "intent":
			if cfg.LLM == nil {
				return nil, fmt.Errorf("intent scanner enabled without llm configuration")
			}
			client, err := llm.NewClient(cfg.LLM)
			if err != nil {
				return nil, fmt.Errorf("failed to build intent verifier: %w", err)
			}
			scanners = append(scanners, NewIntentVerifier(client, cfg.StrictClarify, logger))
		default:
			return nil, fmt.Errorf("unknown scanner %q", name)
		}
	}
	if !seen["heuristic"] {
		scanners = append([]Scanner{NewHeuristicScanner()}, scanners...)
	}
	return NewPipeline(scanners...), nil
}
