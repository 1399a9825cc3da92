// Package models defines the IML v2 protocol entities shared across the
// daemon: plans, actions, execution state, rejection details, and trigger
// definitions. These structs mirror the wire format — field names are part
// of the protocol, not of this implementation.
package models

import (
	"encoding/json"
	"time"
)

// ProtocolVersion is the only IML protocol version this daemon accepts.
const ProtocolVersion = "2.0"

// PlanMode describes how a plan was produced.
type PlanMode string

const (
	// PlanModeDirect is a plan authored directly by the LLM or a caller.
	PlanModeDirect PlanMode = "direct"
	// PlanModeCompiled is a plan produced by the IML compiler and must
	// carry a non-empty CompilerTrace.
	PlanModeCompiled PlanMode = "compiled"
)

// DefaultTargetNode is the node-addressing value for local execution.
// Distributed execution is a future concern; only the field exists today.
const DefaultTargetNode = "local"

// Plan is an immutable DAG of actions submitted for execution.
type Plan struct {
	PlanID          string         `json:"plan_id"`
	ProtocolVersion string         `json:"protocol_version"`
	Description     string         `json:"description,omitempty"`
	PlanMode        PlanMode       `json:"plan_mode"`
	Actions         []*Action      `json:"actions"`
	SessionID       string         `json:"session_id,omitempty"`
	CorrelationID   string         `json:"correlation_id,omitempty"`
	CompilerTrace   *CompilerTrace `json:"compiler_trace,omitempty"`
	SubmittedAt     time.Time      `json:"submitted_at,omitempty"`

	// RollbackOnFailure requests a compensation sweep over COMPLETED
	// actions when the plan terminates FAILED.
	RollbackOnFailure bool `json:"rollback_on_failure,omitempty"`
}

// ActionByID returns the action with the given id, or nil.
func (p *Plan) ActionByID(id string) *Action {
	for _, a := range p.Actions {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// CompilerTrace records the four compilation phases of a compiled plan.
// All four phases must be present and non-empty for plan_mode=compiled.
type CompilerTrace struct {
	Parse    string `json:"parse"`
	Analyze  string `json:"analyze"`
	Optimize string `json:"optimize"`
	Emit     string `json:"emit"`
}

// Phases returns the trace phases in canonical order.
func (t *CompilerTrace) Phases() map[string]string {
	return map[string]string{
		"parse":    t.Parse,
		"analyze":  t.Analyze,
		"optimize": t.Optimize,
		"emit":     t.Emit,
	}
}

// OnFailure selects the cascade policy applied to an action's transitive
// descendants when the action terminates FAILED.
type OnFailure string

const (
	// OnFailureAbort marks all transitive descendants SKIPPED and fails
	// the plan. This is the default.
	OnFailureAbort OnFailure = "abort"
	// OnFailureContinue leaves descendants eligible for execution.
	OnFailureContinue OnFailure = "continue"
)

// Action is a single unit of work dispatched to a module.
type Action struct {
	ID               string          `json:"id"`
	Module           string          `json:"module"`
	Action           string          `json:"action"`
	Params           json.RawMessage `json:"params,omitempty"`
	DependsOn        []string        `json:"depends_on,omitempty"`
	TargetNode       string          `json:"target_node,omitempty"`
	Retry            *RetrySpec      `json:"retry,omitempty"`
	RequiresApproval bool            `json:"requires_approval,omitempty"`
	Approval         *ApprovalSpec   `json:"approval,omitempty"`
	Perception       *PerceptionSpec `json:"perception,omitempty"`
	Memory           *MemorySpec     `json:"memory,omitempty"`
	Rollback         *RollbackSpec   `json:"rollback,omitempty"`
	OnFailure        OnFailure       `json:"on_failure,omitempty"`
}

// RetrySpec bounds automatic retry of a failing action.
type RetrySpec struct {
	MaxAttempts    int     `json:"max_attempts"`
	BackoffSeconds float64 `json:"backoff_seconds"`
}

// ApprovalSpec carries the human-facing prompt for a gated action.
type ApprovalSpec struct {
	Prompt               string   `json:"prompt,omitempty"`
	ClarificationOptions []string `json:"clarification_options,omitempty"`
}

// PerceptionSpec hints the perception pipeline to capture screen state
// around the action. The pipeline itself is an external collaborator.
type PerceptionSpec struct {
	CaptureBefore bool `json:"capture_before,omitempty"`
	CaptureAfter  bool `json:"capture_after,omitempty"`
}

// MemorySpec declares session-memory reads and the key the action's
// output is written back to.
type MemorySpec struct {
	ReadKeys []string `json:"read_keys,omitempty"`
	WriteKey string   `json:"write_key,omitempty"`
}

// RollbackSpec is the compensation body executed during a rollback sweep.
// It is structurally an action body but never participates in the main DAG.
type RollbackSpec struct {
	Module string          `json:"module"`
	Action string          `json:"action"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ActionState is the per-action execution state machine.
type ActionState string

const (
	ActionPending    ActionState = "PENDING"
	ActionWaiting    ActionState = "WAITING"
	ActionRunning    ActionState = "RUNNING"
	ActionCompleted  ActionState = "COMPLETED"
	ActionFailed     ActionState = "FAILED"
	ActionSkipped    ActionState = "SKIPPED"
	ActionRolledBack ActionState = "ROLLED_BACK"
)

// IsTerminal reports whether the state admits no further transitions.
func (s ActionState) IsTerminal() bool {
	switch s {
	case ActionCompleted, ActionFailed, ActionSkipped, ActionRolledBack:
		return true
	}
	return false
}
