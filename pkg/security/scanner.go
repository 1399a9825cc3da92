// Package security implements the layered pre-execution admission
// control: the scanner pipeline (heuristic rules, ML adapters, the LLM
// intent verifier), the permission guard, the output sanitiser, and the
// submission rate limiter.
package security

import (
	"context"

	"github.com/llmos-bridge/bridge/pkg/models"
)

// Verdict is a scanner's judgement, ordered by severity.
type Verdict int

const (
	VerdictPass Verdict = iota
	VerdictWarn
	VerdictReject
)

// String returns the wire form of the verdict.
func (v Verdict) String() string {
	switch v {
	case VerdictPass:
		return "PASS"
	case VerdictWarn:
		return "WARN"
	case VerdictReject:
		return "REJECT"
	}
	return "UNKNOWN"
}

// ScannerResult is one scanner's output for a plan.
type ScannerResult struct {
	Verdict     Verdict
	RiskScore   float64
	ThreatTypes []string
	Findings    []models.ScannerFinding
	// Recommendations are surfaced to the LLM on rejection.
	Recommendations []string
	// ClarificationNeeded marks a strict-mode clarify verdict.
	ClarificationNeeded bool
}

// Scanner is the single small contract every admission check shares.
type Scanner interface {
	Name() string
	Scan(ctx context.Context, plan *models.Plan) ScannerResult
}

// Pipeline is an ordered chain of scanners folded into one aggregate
// result: verdict = max severity, risk = max score, findings
// concatenated. Idempotent for a given plan; scanner order is stable.
type Pipeline struct {
	scanners []Scanner
}

// NewPipeline creates a pipeline running the given scanners in order.
func NewPipeline(scanners ...Scanner) *Pipeline {
	return &Pipeline{scanners: scanners}
}

// Scanners returns the configured chain in order.
func (p *Pipeline) Scanners() []Scanner { return p.scanners }

// Scan folds all scanner results. REJECT is terminal for the plan; the
// remaining scanners still run so the rejection report is complete.
func (p *Pipeline) Scan(ctx context.Context, plan *models.Plan) ScannerResult {
	agg := ScannerResult{Verdict: VerdictPass}
	for _, s := range p.scanners {
		res := s.Scan(ctx, plan)
		if res.Verdict > agg.Verdict {
			agg.Verdict = res.Verdict
		}
		if res.RiskScore > agg.RiskScore {
			agg.RiskScore = res.RiskScore
		}
		agg.Findings = append(agg.Findings, res.Findings...)
		agg.ThreatTypes = appendUnique(agg.ThreatTypes, res.ThreatTypes...)
		agg.Recommendations = append(agg.Recommendations, res.Recommendations...)
		agg.ClarificationNeeded = agg.ClarificationNeeded || res.ClarificationNeeded
	}
	return agg
}

// RejectionDetails converts an aggregate result into the structured
// rejection record surfaced to the LLM.
func (r ScannerResult) RejectionDetails(source models.RejectionSource) *models.RejectionDetails {
	return &models.RejectionDetails{
		Source:              source,
		Verdict:             r.Verdict.String(),
		RiskScore:           r.RiskScore,
		ThreatTypes:         r.ThreatTypes,
		ScannerFindings:     r.Findings,
		Recommendations:     r.Recommendations,
		ClarificationNeeded: r.ClarificationNeeded,
	}
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, existing := range dst {
			if existing == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}
