package template

import (
	"encoding/json"
	"testing"

	"github.com/llmos-bridge/bridge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResults map[string]struct {
	raw   json.RawMessage
	state models.ActionState
}

func (f fakeResults) ActionResult(id string) (json.RawMessage, models.ActionState, bool) {
	r, ok := f[id]
	return r.raw, r.state, ok
}

type fakeMemory map[string]any

func (f fakeMemory) Read(key string) (any, bool) {
	v, ok := f[key]
	return v, ok
}

func completed(raw string) struct {
	raw   json.RawMessage
	state models.ActionState
} {
	return struct {
		raw   json.RawMessage
		state models.ActionState
	}{json.RawMessage(raw), models.ActionCompleted}
}

func resolve(t *testing.T, r *Resolver, params string) map[string]any {
	t.Helper()
	out, err := r.Resolve(json.RawMessage(params))
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(out, &m))
	return m
}

func TestWholeLeafPreservesNativeType(t *testing.T) {
	r := &Resolver{Results: fakeResults{
		"a1": completed(`{"output": {"count": 42, "items": ["x", "y"]}}`),
	}}

	m := resolve(t, r, `{
		"n": "{{result.a1.output.count}}",
		"list": "{{result.a1.output.items}}",
		"first": "{{result.a1.output.items.0}}"
	}`)
	assert.Equal(t, float64(42), m["n"])
	assert.Equal(t, []any{"x", "y"}, m["list"])
	assert.Equal(t, "x", m["first"])
}

func TestMixedContentConcatenates(t *testing.T) {
	r := &Resolver{Results: fakeResults{
		"a1": completed(`{"output": "hi"}`),
	}}
	m := resolve(t, r, `{"msg": "said: {{result.a1.output}}!"}`)
	assert.Equal(t, "said: hi!", m["msg"])
}

func TestNumericConcatenation(t *testing.T) {
	r := &Resolver{Results: fakeResults{
		"a1": completed(`{"output": 7}`),
	}}
	m := resolve(t, r, `{"msg": "count={{result.a1.output}}"}`)
	assert.Equal(t, "count=7", m["msg"])
}

func TestIncompletePredecessorFails(t *testing.T) {
	r := &Resolver{Results: fakeResults{
		"a1": {json.RawMessage(`{}`), models.ActionRunning},
	}}
	_, err := r.Resolve(json.RawMessage(`{"v": "{{result.a1.output}}"}`))
	assert.ErrorIs(t, err, ErrPreconditionViolated)

	_, err = r.Resolve(json.RawMessage(`{"v": "{{result.ghost.output}}"}`))
	assert.ErrorIs(t, err, ErrPreconditionViolated)
}

func TestMissingPathFails(t *testing.T) {
	r := &Resolver{Results: fakeResults{
		"a1": completed(`{"output": {"a": 1}}`),
	}}
	_, err := r.Resolve(json.RawMessage(`{"v": "{{result.a1.output.missing}}"}`))
	assert.ErrorIs(t, err, ErrMissingPath)
}

func TestMemoryLenientAndStrict(t *testing.T) {
	mem := fakeMemory{"greeting": "hello", "retries": 3}

	lenient := &Resolver{Memory: mem}
	m := resolve(t, lenient, `{"g": "{{memory.greeting}}", "r": "{{memory.retries}}", "missing": "{{memory.nope}}"}`)
	assert.Equal(t, "hello", m["g"])
	assert.Equal(t, 3, int(m["r"].(float64)))
	assert.Equal(t, "", m["missing"])

	strict := &Resolver{Memory: mem, Strict: true}
	_, err := strict.Resolve(json.RawMessage(`{"missing": "{{memory.nope}}"}`))
	assert.ErrorIs(t, err, ErrMissingMemoryKey)
}

func TestEnvResolution(t *testing.T) {
	r := &Resolver{LookupEnv: func(k string) (string, bool) {
		if k == "HOME" {
			return "/home/u", true
		}
		return "", false
	}}
	m := resolve(t, r, `{"h": "{{env.HOME}}", "missing": "{{env.NOPE}}"}`)
	assert.Equal(t, "/home/u", m["h"])
	assert.Equal(t, "", m["missing"])
}

func TestNestedStructuresResolved(t *testing.T) {
	r := &Resolver{Results: fakeResults{
		"a1": completed(`{"output": "data"}`),
	}}
	m := resolve(t, r, `{
		"outer": {"inner": ["{{result.a1.output}}", {"deep": "{{result.a1.output}}"}]},
		"untouched": 5
	}`)
	outer := m["outer"].(map[string]any)
	inner := outer["inner"].([]any)
	assert.Equal(t, "data", inner[0])
	assert.Equal(t, "data", inner[1].(map[string]any)["deep"])
	assert.Equal(t, float64(5), m["untouched"])
}
