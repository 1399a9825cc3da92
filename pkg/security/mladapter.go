package security

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/llmos-bridge/bridge/pkg/config"
	"github.com/llmos-bridge/bridge/pkg/models"
)

// MLScanner forwards the serialised plan to an external classifier
// service over HTTP. The classifier is advisory: an unreachable or slow
// service degrades to WARN with a finding, never to REJECT and never to
// a silent PASS.
type MLScanner struct {
	url     string
	timeout time.Duration
	http    *http.Client
	logger  *slog.Logger
}

// NewMLScanner creates the adapter from configuration.
func NewMLScanner(cfg *config.MLScannerConfig, logger *slog.Logger) *MLScanner {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &MLScanner{
		url:     cfg.URL,
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Name implements Scanner.
func (s *MLScanner) Name() string { return "ml" }

type mlResponse struct {
	Verdict     string   `json:"verdict"`
	RiskScore   float64  `json:"risk_score"`
	ThreatTypes []string `json:"threat_types"`
	Rationale   string   `json:"rationale"`
}

// Scan implements Scanner.
func (s *MLScanner) Scan(ctx context.Context, plan *models.Plan) ScannerResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	payload, err := json.Marshal(map[string]any{"plan": plan})
	if err != nil {
		return s.degraded(plan.PlanID, fmt.Errorf("failed to marshal plan: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return s.degraded(plan.PlanID, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return s.degraded(plan.PlanID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return s.degraded(plan.PlanID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return s.degraded(plan.PlanID, fmt.Errorf("classifier returned status %d", resp.StatusCode))
	}

	var ml mlResponse
	if err := json.Unmarshal(data, &ml); err != nil {
		return s.degraded(plan.PlanID, fmt.Errorf("unparseable classifier response: %w", err))
	}

	res := ScannerResult{
		RiskScore:   ml.RiskScore,
		ThreatTypes: ml.ThreatTypes,
	}
	switch ml.Verdict {
	case "REJECT":
		res.Verdict = VerdictReject
	case "WARN":
		res.Verdict = VerdictWarn
	default:
		res.Verdict = VerdictPass
	}
	if res.Verdict != VerdictPass {
		res.Findings = append(res.Findings, models.ScannerFinding{
			Scanner:     s.Name(),
			Rule:        "classifier",
			Description: ml.Rationale,
			RiskScore:   ml.RiskScore,
		})
	}
	return res
}

// degraded is the fail-open-with-a-trace path: the pipeline keeps
// running, the aggregate verdict floor is raised to WARN.
func (s *MLScanner) degraded(planID string, err error) ScannerResult {
	s.logger.Warn("ML scanner unavailable, degrading to WARN",
		"plan_id", planID, "url", s.url, "error", err)
	return ScannerResult{
		Verdict:   VerdictWarn,
		RiskScore: 0.3,
		Findings: []models.ScannerFinding{{
			Scanner:     s.Name(),
			Rule:        "scanner_unavailable",
			Description: "ML classifier unavailable: " + err.Error(),
			RiskScore:   0.3,
		}},
	}
}
