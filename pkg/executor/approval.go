package executor

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/llmos-bridge/bridge/pkg/models"
)

// ErrNoPendingApproval is returned when a decision targets a gate that
// is not waiting.
var ErrNoPendingApproval = errors.New("no pending approval")

// DecisionType enumerates the resolutions a human may give a gate.
type DecisionType string

const (
	DecisionApprove            DecisionType = "approve"
	DecisionReject             DecisionType = "reject"
	DecisionApproveWithChanges DecisionType = "approve_with_changes"
	DecisionChoose             DecisionType = "choose"
	DecisionDefer              DecisionType = "defer"
)

// Decision resolves one pending approval.
type Decision struct {
	Type DecisionType `json:"type"`
	// Params replaces the action's params for approve_with_changes.
	Params json.RawMessage `json:"params,omitempty"`
	// Choice selects one clarification option for choose.
	Choice string `json:"choice,omitempty"`
	// Reason is recorded on reject.
	Reason string `json:"reason,omitempty"`
}

// PendingApproval describes one gate waiting for a decision.
type PendingApproval struct {
	PlanID      string    `json:"plan_id"`
	ActionID    string    `json:"action_id"`
	Prompt      string    `json:"prompt,omitempty"`
	Options     []string  `json:"options,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

type pendingGate struct {
	info PendingApproval
	ch   chan Decision
}

// ApprovalRegistry holds the approval gates currently blocking actions,
// keyed by (plan_id, action_id). The executor registers a gate and waits
// on its channel; the API resolves it.
type ApprovalRegistry struct {
	mu      sync.Mutex
	pending map[string]*pendingGate
}

// NewApprovalRegistry creates an empty registry.
func NewApprovalRegistry() *ApprovalRegistry {
	return &ApprovalRegistry{pending: make(map[string]*pendingGate)}
}

func gateKey(planID, actionID string) string { return planID + "/" + actionID }

// Request registers a gate and returns the channel its decision arrives
// on. A second request for the same gate replaces the first.
func (r *ApprovalRegistry) Request(planID, actionID string, spec *models.ApprovalSpec) <-chan Decision {
	gate := &pendingGate{
		info: PendingApproval{
			PlanID:      planID,
			ActionID:    actionID,
			RequestedAt: time.Now().UTC(),
		},
		ch: make(chan Decision, 1),
	}
	if spec != nil {
		gate.info.Prompt = spec.Prompt
		gate.info.Options = spec.ClarificationOptions
	}

	r.mu.Lock()
	r.pending[gateKey(planID, actionID)] = gate
	r.mu.Unlock()
	return gate.ch
}

// Resolve delivers a decision to a waiting gate. Validation of choose
// decisions against the declared options happens here so the executor
// only ever sees well-formed decisions.
func (r *ApprovalRegistry) Resolve(planID, actionID string, d Decision) error {
	r.mu.Lock()
	gate, ok := r.pending[gateKey(planID, actionID)]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w for plan %s action %s", ErrNoPendingApproval, planID, actionID)
	}

	switch d.Type {
	case DecisionApprove, DecisionReject, DecisionDefer:
	case DecisionApproveWithChanges:
		if len(d.Params) == 0 || !json.Valid(d.Params) {
			return fmt.Errorf("approve_with_changes requires valid params JSON")
		}
	case DecisionChoose:
		if len(gate.info.Options) == 0 {
			return fmt.Errorf("action %s has no clarification options to choose from", actionID)
		}
		valid := false
		for _, opt := range gate.info.Options {
			if opt == d.Choice {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("choice %q is not one of the offered options", d.Choice)
		}
	default:
		return fmt.Errorf("unknown decision type %q", d.Type)
	}

	// Deferrals keep the gate open; everything else closes it.
	if d.Type != DecisionDefer {
		r.mu.Lock()
		delete(r.pending, gateKey(planID, actionID))
		r.mu.Unlock()
	}
	gate.ch <- d
	return nil
}

// Drop removes all gates for a plan, used on cancellation.
func (r *ApprovalRegistry) Drop(planID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, gate := range r.pending {
		if gate.info.PlanID == planID {
			delete(r.pending, key)
		}
	}
}

// Pending lists all open gates.
func (r *ApprovalRegistry) Pending() []PendingApproval {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PendingApproval, 0, len(r.pending))
	for _, gate := range r.pending {
		out = append(out, gate.info)
	}
	return out
}
