// Package template late-binds {{result.*}}, {{memory.*}}, and {{env.*}}
// references in action params immediately before dispatch.
package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/llmos-bridge/bridge/pkg/models"
)

// ErrPreconditionViolated is returned when a {{result.X}} reference
// names an action that has not COMPLETED.
var ErrPreconditionViolated = errors.New("PRECONDITION_VIOLATED")

// ErrMissingPath is returned when a result path does not exist in the
// referent's output document.
var ErrMissingPath = errors.New("result path not found")

// ErrMissingMemoryKey is returned in strict mode for absent memory keys.
var ErrMissingMemoryKey = errors.New("memory key not found")

var refPattern = regexp.MustCompile(`\{\{\s*(result|memory|env)\.([^}{]*?)\s*\}\}`)

// ResultReader exposes completed predecessor outputs to the resolver.
type ResultReader interface {
	// ActionResult returns the action's output document and state.
	ActionResult(actionID string) (json.RawMessage, models.ActionState, bool)
}

// MemoryReader exposes the per-session KV store to the resolver.
type MemoryReader interface {
	Read(key string) (any, bool)
}

// Resolver resolves the three template sigils recursively through a
// params document, preserving leaf types.
type Resolver struct {
	Results ResultReader
	Memory  MemoryReader
	// Strict makes a missing memory key an error instead of "".
	Strict bool
	// LookupEnv defaults to os.LookupEnv; injectable for tests.
	LookupEnv func(string) (string, bool)
}

// Resolve walks the params JSON and substitutes template references.
// If a template forms the entire string value of a leaf, the leaf is
// replaced by the referent's native type; otherwise the referent is
// stringified and concatenated.
func (r *Resolver) Resolve(params json.RawMessage) (json.RawMessage, error) {
	if len(params) == 0 {
		return params, nil
	}
	var doc any
	if err := json.Unmarshal(params, &doc); err != nil {
		return nil, fmt.Errorf("params not valid JSON: %w", err)
	}
	resolved, err := r.resolveValue(doc)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode resolved params: %w", err)
	}
	return out, nil
}

func (r *Resolver) resolveValue(v any) (any, error) {
	switch t := v.(type) {
	case string:
		return r.resolveString(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			resolved, err := r.resolveValue(child)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			resolved, err := r.resolveValue(child)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

func (r *Resolver) resolveString(s string) (any, error) {
	matches := refPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	// Whole-leaf template: replace with the referent's native type.
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		return r.lookup(s[matches[0][2]:matches[0][3]], s[matches[0][4]:matches[0][5]])
	}

	// Mixed content: stringify each referent and concatenate.
	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		val, err := r.lookup(s[m[2]:m[3]], s[m[4]:m[5]])
		if err != nil {
			return nil, err
		}
		b.WriteString(stringify(val))
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

func (r *Resolver) lookup(sigil, ref string) (any, error) {
	switch sigil {
	case "result":
		return r.lookupResult(ref)
	case "memory":
		if r.Memory == nil {
			if r.Strict {
				return nil, fmt.Errorf("%w: %q (no memory store)", ErrMissingMemoryKey, ref)
			}
			return "", nil
		}
		val, ok := r.Memory.Read(ref)
		if !ok {
			if r.Strict {
				return nil, fmt.Errorf("%w: %q", ErrMissingMemoryKey, ref)
			}
			return "", nil
		}
		return val, nil
	case "env":
		lookup := r.LookupEnv
		if lookup == nil {
			lookup = os.LookupEnv
		}
		val, _ := lookup(ref)
		return val, nil
	default:
		return nil, fmt.Errorf("unknown template sigil %q", sigil)
	}
}

func (r *Resolver) lookupResult(ref string) (any, error) {
	actionID := ref
	path := ""
	if idx := strings.IndexByte(ref, '.'); idx >= 0 {
		actionID, path = ref[:idx], ref[idx+1:]
	}

	if r.Results == nil {
		return nil, fmt.Errorf("%w: no results available for {{result.%s}}", ErrPreconditionViolated, ref)
	}
	raw, state, ok := r.Results.ActionResult(actionID)
	if !ok || state != models.ActionCompleted {
		return nil, fmt.Errorf("%w: action %q is %s, not COMPLETED", ErrPreconditionViolated, actionID, stateOrMissing(state, ok))
	}

	var doc any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &doc); err != nil {
			// Non-JSON module output behaves as an opaque string.
			doc = string(raw)
		}
	}
	if path == "" {
		return doc, nil
	}
	return walkPath(doc, path, ref)
}

// walkPath traverses a dot-separated path through maps and arrays
// (numeric segments index arrays).
func walkPath(doc any, path, ref string) (any, error) {
	cur := doc
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, fmt.Errorf("%w: %q has no key %q", ErrMissingPath, ref, seg)
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("%w: %q has no index %q", ErrMissingPath, ref, seg)
			}
			cur = node[idx]
		default:
			return nil, fmt.Errorf("%w: %q cannot descend into %q", ErrMissingPath, ref, seg)
		}
	}
	return cur, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		out, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(out)
	}
}

func stateOrMissing(state models.ActionState, ok bool) string {
	if !ok {
		return "missing"
	}
	return string(state)
}
