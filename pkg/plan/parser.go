package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/llmos-bridge/bridge/pkg/models"
)

// Parse decodes raw JSON into a normalised Plan. It enforces the schema
// shape only; structural invariants are the validator's job.
//
// Normalisation applied:
//   - missing plan_id → fresh UUID
//   - missing plan_mode → direct
//   - missing target_node → "local"
//   - missing on_failure → abort
//   - submission timestamp stamped
func Parse(raw []byte) (*models.Plan, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	p := &models.Plan{}
	if err := dec.Decode(p); err != nil {
		return nil, &SchemaError{Err: err}
	}

	if p.PlanID == "" {
		p.PlanID = uuid.NewString()
	} else if _, err := uuid.Parse(p.PlanID); err != nil {
		return nil, &SchemaError{Field: "plan_id", Err: fmt.Errorf("not a UUID: %w", err)}
	}

	if p.ProtocolVersion != models.ProtocolVersion {
		return nil, &SchemaError{
			Field: "protocol_version",
			Err:   fmt.Errorf("unsupported version %q, want %q", p.ProtocolVersion, models.ProtocolVersion),
		}
	}

	switch p.PlanMode {
	case "":
		p.PlanMode = models.PlanModeDirect
	case models.PlanModeDirect, models.PlanModeCompiled:
	default:
		return nil, &SchemaError{Field: "plan_mode", Err: fmt.Errorf("unknown mode %q", p.PlanMode)}
	}

	if len(p.Actions) == 0 {
		return nil, &SchemaError{Field: "actions", Err: fmt.Errorf("plan has no actions")}
	}

	for i, a := range p.Actions {
		field := fmt.Sprintf("actions[%d]", i)
		if a == nil {
			return nil, &SchemaError{Field: field, Err: fmt.Errorf("null action")}
		}
		if a.ID == "" {
			return nil, &SchemaError{Field: field + ".id", Err: fmt.Errorf("missing action id")}
		}
		if a.Module == "" {
			return nil, &SchemaError{Field: field + ".module", Err: fmt.Errorf("missing module")}
		}
		if a.Action == "" {
			return nil, &SchemaError{Field: field + ".action", Err: fmt.Errorf("missing action name")}
		}
		if a.TargetNode == "" {
			a.TargetNode = models.DefaultTargetNode
		}
		switch a.OnFailure {
		case "":
			a.OnFailure = models.OnFailureAbort
		case models.OnFailureAbort, models.OnFailureContinue:
		default:
			return nil, &SchemaError{
				Field: field + ".on_failure",
				Err:   fmt.Errorf("unknown policy %q", a.OnFailure),
			}
		}
		if a.Retry != nil && a.Retry.MaxAttempts < 1 {
			return nil, &SchemaError{
				Field: field + ".retry.max_attempts",
				Err:   fmt.Errorf("must be >= 1, got %d", a.Retry.MaxAttempts),
			}
		}
		if a.Rollback != nil && (a.Rollback.Module == "" || a.Rollback.Action == "") {
			return nil, &SchemaError{
				Field: field + ".rollback",
				Err:   fmt.Errorf("rollback body must declare module and action"),
			}
		}
	}

	if p.SubmittedAt.IsZero() {
		p.SubmittedAt = time.Now().UTC()
	}
	return p, nil
}

// ParseAndValidate is the submission-path convenience: Parse followed by
// Validate.
func ParseAndValidate(raw []byte) (*models.Plan, error) {
	p, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if err := Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}
