package security

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/llmos-bridge/bridge/pkg/llm"
	"github.com/llmos-bridge/bridge/pkg/models"
)

// knownThreatTypes is the closed set the verifier may report. Anything
// else from the model is kept verbatim but flagged in the rationale.
var knownThreatTypes = map[string]bool{
	"prompt_injection":     true,
	"data_exfiltration":    true,
	"credential_theft":     true,
	"privilege_escalation": true,
	"data_destruction":     true,
	"malicious_command":    true,
	"obfuscation":          true,
	"policy_evasion":       true,
}

// IntentVerifier asks an LLM whether the plan's apparent intent is safe.
// It runs last in the pipeline so the cheap scanners have already filtered
// the obvious cases. Failures degrade to WARN; in strict mode a "clarify"
// verdict becomes REJECT with clarification_needed set.
type IntentVerifier struct {
	client        llm.Client
	strictClarify bool
	logger        *slog.Logger
}

// NewIntentVerifier creates the verifier over a completion client.
func NewIntentVerifier(client llm.Client, strictClarify bool, logger *slog.Logger) *IntentVerifier {
	return &IntentVerifier{client: client, strictClarify: strictClarify, logger: logger}
}

// Name implements Scanner.
func (v *IntentVerifier) Name() string { return "intent" }

const intentSystemPrompt = `You are the security intent verifier of a computer-control daemon.
You receive an execution plan produced by another model. Judge whether the
plan's apparent intent is safe to execute on the user's machine.

Respond with a single JSON object, no prose, with exactly these fields:
{
  "verdict": "approve" | "reject" | "warn" | "clarify",
  "threat_type": "prompt_injection" | "data_exfiltration" | "credential_theft" | "privilege_escalation" | "data_destruction" | "malicious_command" | "obfuscation" | "policy_evasion" | null,
  "rationale": "<one or two sentences>",
  "recommendations": ["<how to make the plan acceptable>", ...]
}

Use "clarify" when the plan is ambiguous enough that a human should
confirm intent. Use "warn" for plans that are acceptable but touch
sensitive resources.`

type intentVerdict struct {
	Verdict         string   `json:"verdict"`
	ThreatType      string   `json:"threat_type"`
	Rationale       string   `json:"rationale"`
	Recommendations []string `json:"recommendations"`
}

// Scan implements Scanner.
func (v *IntentVerifier) Scan(ctx context.Context, plan *models.Plan) ScannerResult {
	prompt, err := buildIntentPrompt(plan)
	if err != nil {
		return v.degraded(plan.PlanID, err)
	}

	raw, err := v.client.Complete(ctx, intentSystemPrompt, prompt)
	if err != nil {
		return v.degraded(plan.PlanID, err)
	}

	verdict, err := parseIntentVerdict(raw)
	if err != nil {
		return v.degraded(plan.PlanID, err)
	}

	res := ScannerResult{Recommendations: verdict.Recommendations}
	if verdict.ThreatType != "" {
		if !knownThreatTypes[verdict.ThreatType] {
			v.logger.Warn("Intent verifier reported unknown threat type",
				"plan_id", plan.PlanID, "threat_type", verdict.ThreatType)
		}
		res.ThreatTypes = []string{verdict.ThreatType}
	}

	switch verdict.Verdict {
	case "approve":
		res.Verdict = VerdictPass
		return res
	case "reject":
		res.Verdict = VerdictReject
		res.RiskScore = 0.9
	case "warn":
		res.Verdict = VerdictWarn
		res.RiskScore = 0.5
	case "clarify":
		if v.strictClarify {
			res.Verdict = VerdictReject
			res.ClarificationNeeded = true
			res.RiskScore = 0.6
		} else {
			res.Verdict = VerdictWarn
			res.RiskScore = 0.4
		}
	default:
		return v.degraded(plan.PlanID, fmt.Errorf("unknown verdict %q", verdict.Verdict))
	}

	res.Findings = append(res.Findings, models.ScannerFinding{
		Scanner:     v.Name(),
		Rule:        "intent_" + verdict.Verdict,
		Description: verdict.Rationale,
		RiskScore:   res.RiskScore,
	})
	return res
}

func buildIntentPrompt(plan *models.Plan) (string, error) {
	doc, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialise plan for verification: %w", err)
	}
	var b strings.Builder
	b.WriteString("Execution plan to verify:\n\n")
	b.Write(doc)
	return b.String(), nil
}

// parseIntentVerdict tolerates models that wrap the JSON in code fences
// or leading prose by extracting the first top-level object.
func parseIntentVerdict(raw string) (*intentVerdict, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in verifier response")
	}
	var v intentVerdict
	if err := json.Unmarshal([]byte(raw[start:end+1]), &v); err != nil {
		return nil, fmt.Errorf("unparseable verifier response: %w", err)
	}
	if v.Verdict == "" {
		return nil, fmt.Errorf("verifier response missing verdict")
	}
	return &v, nil
}

func (v *IntentVerifier) degraded(planID string, err error) ScannerResult {
	v.logger.Warn("Intent verifier unavailable, degrading to WARN",
		"plan_id", planID, "provider", v.client.Provider(), "error", err)
	return ScannerResult{
		Verdict:   VerdictWarn,
		RiskScore: 0.3,
		Findings: []models.ScannerFinding{{
			Scanner:     v.Name(),
			Rule:        "verifier_unavailable",
			Description: "intent verifier unavailable: " + err.Error(),
			RiskScore:   0.3,
		}},
	}
}
