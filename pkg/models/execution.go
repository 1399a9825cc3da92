package models

import (
	"encoding/json"
	"time"
)

// PlanStatus is the aggregate status of a plan execution.
type PlanStatus string

const (
	PlanQueued    PlanStatus = "QUEUED"
	PlanRunning   PlanStatus = "RUNNING"
	PlanSucceeded PlanStatus = "SUCCEEDED"
	PlanFailed    PlanStatus = "FAILED"
	PlanCancelled PlanStatus = "CANCELLED"
	PlanRejected  PlanStatus = "REJECTED"
)

// IsTerminal reports whether the plan can still make progress.
func (s PlanStatus) IsTerminal() bool {
	switch s {
	case PlanSucceeded, PlanFailed, PlanCancelled, PlanRejected:
		return true
	}
	return false
}

// ExecutionState is the per-plan runtime record. It persists across
// daemon restarts; the executor exclusively owns it while RUNNING.
type ExecutionState struct {
	PlanID           string                   `json:"plan_id"`
	Status           PlanStatus               `json:"status"`
	SessionID        string                   `json:"session_id,omitempty"`
	CorrelationID    string                   `json:"correlation_id,omitempty"`
	Actions          map[string]*ActionRecord `json:"actions"`
	RejectionDetails *RejectionDetails        `json:"rejection_details,omitempty"`
	Error            string                   `json:"error,omitempty"`
	CreatedAt        time.Time                `json:"created_at"`
	StartedAt        *time.Time               `json:"started_at,omitempty"`
	EndedAt          *time.Time               `json:"ended_at,omitempty"`
}

// ActionRecord is the runtime record for a single action.
type ActionRecord struct {
	ActionID  string          `json:"action_id"`
	State     ActionState     `json:"state"`
	Attempts  int             `json:"attempts,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	StartedAt *time.Time      `json:"started_at,omitempty"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`

	// RollbackError records a failed compensation attempt. Rollback
	// failures are recorded, never retried recursively.
	RollbackError string `json:"rollback_error,omitempty"`
}

// RejectionSource identifies which admission gate refused a plan.
type RejectionSource string

const (
	RejectionScannerPipeline RejectionSource = "scanner_pipeline"
	RejectionIntentVerifier  RejectionSource = "intent_verifier"
	RejectionPermissionGuard RejectionSource = "permission_guard"
	RejectionRateLimiter     RejectionSource = "rate_limiter"
)

// RejectionDetails is the structured diagnosis returned when a plan is
// refused before any action runs. It round-trips verbatim through the
// plans table so the SDK can surface it to the LLM.
type RejectionDetails struct {
	Source              RejectionSource  `json:"source"`
	Verdict             string           `json:"verdict"`
	RiskScore           float64          `json:"risk_score"`
	ThreatTypes         []string         `json:"threat_types,omitempty"`
	ScannerFindings     []ScannerFinding `json:"scanner_findings,omitempty"`
	Recommendations     []string         `json:"recommendations,omitempty"`
	ClarificationNeeded bool             `json:"clarification_needed,omitempty"`
}

// ScannerFinding is a single observation produced by a security scanner.
type ScannerFinding struct {
	Scanner     string  `json:"scanner"`
	Rule        string  `json:"rule,omitempty"`
	ActionID    string  `json:"action_id,omitempty"`
	Description string  `json:"description"`
	RiskScore   float64 `json:"risk_score"`
}

// GroupStatus aggregates the outcome of a plan-group fan-out.
type GroupStatus string

const (
	GroupAllSucceeded GroupStatus = "all_succeeded"
	GroupPartial      GroupStatus = "partial"
	GroupAllFailed    GroupStatus = "all_failed"
)

// GroupResult is the aggregate returned by the plan group executor.
type GroupResult struct {
	Status   GroupStatus                `json:"status"`
	Results  map[string]*ExecutionState `json:"results"`
	Errors   map[string]string          `json:"errors,omitempty"`
	Duration time.Duration              `json:"duration"`
}
