package plan

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/llmos-bridge/bridge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func planJSON(actions string) []byte {
	return []byte(fmt.Sprintf(`{
		"plan_id": "6fa459ea-ee8a-3ca4-894e-db77e160355e",
		"protocol_version": "2.0",
		"description": "test plan",
		"plan_mode": "direct",
		"actions": %s
	}`, actions))
}

func TestParseNormalises(t *testing.T) {
	p, err := Parse(planJSON(`[
		{"id": "a1", "module": "filesystem", "action": "read_file",
		 "params": {"path": "/tmp/hello.txt"}}
	]`))
	require.NoError(t, err)

	a := p.Actions[0]
	assert.Equal(t, models.DefaultTargetNode, a.TargetNode)
	assert.Equal(t, models.OnFailureAbort, a.OnFailure)
	assert.Equal(t, models.PlanModeDirect, p.PlanMode)
	assert.False(t, p.SubmittedAt.IsZero())
}

func TestParseGeneratesPlanID(t *testing.T) {
	p, err := Parse([]byte(`{
		"protocol_version": "2.0",
		"actions": [{"id": "a1", "module": "clock", "action": "now"}]
	}`))
	require.NoError(t, err)
	assert.NotEmpty(t, p.PlanID)
}

func TestParseSchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"malformed json", `{"actions": [`},
		{"wrong protocol", `{"protocol_version": "1.0", "actions": [{"id":"a","module":"m","action":"x"}]}`},
		{"no actions", `{"protocol_version": "2.0", "actions": []}`},
		{"missing module", `{"protocol_version": "2.0", "actions": [{"id":"a","action":"x"}]}`},
		{"bad plan_id", `{"protocol_version": "2.0", "plan_id": "nope", "actions": [{"id":"a","module":"m","action":"x"}]}`},
		{"bad on_failure", `{"protocol_version": "2.0", "actions": [{"id":"a","module":"m","action":"x","on_failure":"retry"}]}`},
		{"zero retry attempts", `{"protocol_version": "2.0", "actions": [{"id":"a","module":"m","action":"x","retry":{"max_attempts":0}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			assert.ErrorIs(t, err, ErrSchema)
		})
	}
}

func TestValidateCycleDetection(t *testing.T) {
	_, err := ParseAndValidate(planJSON(`[
		{"id": "a1", "module": "m", "action": "x", "depends_on": ["a2"]},
		{"id": "a2", "module": "m", "action": "x", "depends_on": ["a1"]}
	]`))
	require.ErrorIs(t, err, ErrValidation)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Violations, 1)
	v := verr.Violations[0]
	assert.Equal(t, "dependency_cycle", v.Rule)
	// The cycle path names both actions and closes the loop.
	assert.Contains(t, v.Message, "a1")
	assert.Contains(t, v.Message, "a2")
	assert.Contains(t, v.Message, "→")
}

func TestValidateUnresolvedDependency(t *testing.T) {
	_, err := ParseAndValidate(planJSON(`[
		{"id": "a1", "module": "m", "action": "x", "depends_on": ["ghost"]}
	]`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "unresolved_dependency", verr.Violations[0].Rule)
}

func TestValidateCollectsAllViolations(t *testing.T) {
	_, err := ParseAndValidate(planJSON(`[
		{"id": "a1", "module": "m", "action": "x", "depends_on": ["ghost"]},
		{"id": "a1", "module": "m", "action": "x"},
		{"id": "a2", "module": "m", "action": "x", "depends_on": ["a2"]}
	]`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	rules := make([]string, 0, len(verr.Violations))
	for _, v := range verr.Violations {
		rules = append(rules, v.Rule)
	}
	assert.Contains(t, rules, "duplicate_action_id")
	assert.Contains(t, rules, "unresolved_dependency")
	assert.Contains(t, rules, "self_dependency")
}

func TestValidateTemplateRefs(t *testing.T) {
	// a2 references its dependency a1: valid.
	_, err := ParseAndValidate(planJSON(`[
		{"id": "a1", "module": "filesystem", "action": "read_file", "params": {"path": "/tmp/a"}},
		{"id": "a2", "module": "filesystem", "action": "write_file", "depends_on": ["a1"],
		 "params": {"path": "/tmp/b", "content": "{{result.a1.output}}"}}
	]`))
	assert.NoError(t, err)

	// a2 references a3 which is not a dependency: invalid.
	_, err = ParseAndValidate(planJSON(`[
		{"id": "a1", "module": "m", "action": "x"},
		{"id": "a3", "module": "m", "action": "x"},
		{"id": "a2", "module": "m", "action": "x", "depends_on": ["a1"],
		 "params": {"v": "{{result.a3.output}}"}}
	]`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "non_dependency_template_ref", verr.Violations[0].Rule)
	assert.Equal(t, "a2", verr.Violations[0].ActionID)
}

func TestValidateTransitiveTemplateRef(t *testing.T) {
	// a3 depends on a2 depends on a1; a3 may reference a1.
	_, err := ParseAndValidate(planJSON(`[
		{"id": "a1", "module": "m", "action": "x"},
		{"id": "a2", "module": "m", "action": "x", "depends_on": ["a1"]},
		{"id": "a3", "module": "m", "action": "x", "depends_on": ["a2"],
		 "params": {"v": "{{result.a1.output}}"}}
	]`))
	assert.NoError(t, err)
}

func TestValidateMemoryAndEnvRefs(t *testing.T) {
	_, err := ParseAndValidate(planJSON(`[
		{"id": "a1", "module": "m", "action": "x",
		 "params": {"k": "{{memory.user_prefs}}", "h": "{{env.HOME}}"}}
	]`))
	assert.NoError(t, err)

	_, err = ParseAndValidate(planJSON(`[
		{"id": "a1", "module": "m", "action": "x",
		 "params": {"bad": "{{env.9NOPE}}"}}
	]`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "invalid_template_ref", verr.Violations[0].Rule)
}

func TestValidateCompiledModeRequiresTrace(t *testing.T) {
	_, err := ParseAndValidate([]byte(`{
		"protocol_version": "2.0",
		"plan_mode": "compiled",
		"actions": [{"id": "a1", "module": "m", "action": "x"}]
	}`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "missing_compiler_trace", verr.Violations[0].Rule)

	_, err = ParseAndValidate([]byte(`{
		"protocol_version": "2.0",
		"plan_mode": "compiled",
		"compiler_trace": {"parse": "ok", "analyze": "ok", "optimize": "", "emit": "ok"},
		"actions": [{"id": "a1", "module": "m", "action": "x"}]
	}`))
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "empty_compiler_phase", verr.Violations[0].Rule)

	_, err = ParseAndValidate([]byte(`{
		"protocol_version": "2.0",
		"plan_mode": "compiled",
		"compiler_trace": {"parse": "p", "analyze": "a", "optimize": "o", "emit": "e"},
		"actions": [{"id": "a1", "module": "m", "action": "x"}]
	}`))
	assert.NoError(t, err)
}

func TestRoundTripStructuralEquivalence(t *testing.T) {
	raw := planJSON(`[
		{"id": "a1", "module": "filesystem", "action": "read_file", "params": {"path": "/tmp/a"}},
		{"id": "a2", "module": "filesystem", "action": "write_file", "depends_on": ["a1"],
		 "params": {"path": "/tmp/b", "content": "{{result.a1.output}}"}}
	]`)
	p1, err := ParseAndValidate(raw)
	require.NoError(t, err)

	out, err := json.Marshal(p1)
	require.NoError(t, err)
	p2, err := ParseAndValidate(out)
	require.NoError(t, err)

	assert.Equal(t, p1.PlanID, p2.PlanID)
	require.Len(t, p2.Actions, 2)
	for i := range p1.Actions {
		assert.Equal(t, p1.Actions[i].ID, p2.Actions[i].ID)
		assert.Equal(t, p1.Actions[i].Module, p2.Actions[i].Module)
		assert.Equal(t, p1.Actions[i].DependsOn, p2.Actions[i].DependsOn)
		assert.JSONEq(t, string(p1.Actions[i].Params), string(p2.Actions[i].Params))
	}
}
