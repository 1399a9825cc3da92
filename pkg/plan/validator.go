package plan

import (
	"regexp"
	"strings"

	"github.com/llmos-bridge/bridge/pkg/models"
)

// templateRefPattern matches the three template sigils inside params
// documents: {{result.<id>.<path>}}, {{memory.<key>}}, {{env.<var>}}.
var templateRefPattern = regexp.MustCompile(`\{\{\s*(result|memory|env)\.([^}{]*?)\s*\}\}`)

var envVarPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
var memoryKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// Validate enforces the structural invariants of a parsed plan and
// returns a ValidationError enumerating every violation found.
//
// Checks:
//   - action ids are unique within the plan
//   - every depends_on id resolves to another action in the plan
//   - the dependency graph is acyclic (cycle reported with path trace)
//   - {{result.<id>.*}} references name a transitive dependency
//   - {{memory.*}} and {{env.*}} references are syntactically valid
//   - plan_mode=compiled carries a non-empty four-phase compiler trace
func Validate(p *models.Plan) error {
	verr := &ValidationError{}

	byID := make(map[string]*models.Action, len(p.Actions))
	for _, a := range p.Actions {
		if _, dup := byID[a.ID]; dup {
			verr.add("duplicate_action_id", a.ID, "action id appears more than once")
			continue
		}
		byID[a.ID] = a
	}

	for _, a := range p.Actions {
		for _, dep := range a.DependsOn {
			if dep == a.ID {
				verr.add("self_dependency", a.ID, "action depends on itself")
				continue
			}
			if _, ok := byID[dep]; !ok {
				verr.add("unresolved_dependency", a.ID, "depends_on references unknown action %q", dep)
			}
		}
	}

	if cycle := findCycle(p.Actions, byID); cycle != nil {
		verr.add("dependency_cycle", "", "cycle [%s]", strings.Join(cycle, "→"))
	} else {
		// Template reachability needs the transitive closure, which is
		// only well-defined on an acyclic graph.
		checkTemplateRefs(p, byID, verr)
	}

	if p.PlanMode == models.PlanModeCompiled {
		checkCompilerTrace(p, verr)
	}

	if len(verr.Violations) > 0 {
		return verr
	}
	return nil
}

type dfsColor int

const (
	colorWhite dfsColor = iota
	colorGray
	colorBlack
)

// findCycle runs a depth-first search with gray/black marking and
// returns the cycle path (closed: first element repeated at the end),
// or nil if the graph is acyclic. Unknown dependency ids are skipped —
// they are reported separately as unresolved.
func findCycle(actions []*models.Action, byID map[string]*models.Action) []string {
	colors := make(map[string]dfsColor, len(actions))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = colorGray
		stack = append(stack, id)

		a := byID[id]
		for _, dep := range a.DependsOn {
			if _, ok := byID[dep]; !ok {
				continue
			}
			switch colors[dep] {
			case colorGray:
				// Found a back-edge; slice the stack from the first
				// occurrence of dep and close the loop.
				for i, s := range stack {
					if s == dep {
						cycle = append(append([]string{}, stack[i:]...), dep)
						return true
					}
				}
			case colorWhite:
				if visit(dep) {
					return true
				}
			}
		}

		stack = stack[:len(stack)-1]
		colors[id] = colorBlack
		return false
	}

	for _, a := range actions {
		if colors[a.ID] == colorWhite {
			if visit(a.ID) {
				return cycle
			}
		}
	}
	return nil
}

// transitiveDeps returns the set of action ids reachable from a through
// depends_on edges.
func transitiveDeps(a *models.Action, byID map[string]*models.Action) map[string]bool {
	seen := map[string]bool{}
	var walk func(*models.Action)
	walk = func(cur *models.Action) {
		for _, dep := range cur.DependsOn {
			if seen[dep] {
				continue
			}
			next, ok := byID[dep]
			if !ok {
				continue
			}
			seen[dep] = true
			walk(next)
		}
	}
	walk(a)
	return seen
}

func checkTemplateRefs(p *models.Plan, byID map[string]*models.Action, verr *ValidationError) {
	for _, a := range p.Actions {
		if len(a.Params) == 0 {
			continue
		}
		deps := transitiveDeps(a, byID)
		for _, m := range templateRefPattern.FindAllStringSubmatch(string(a.Params), -1) {
			sigil, ref := m[1], m[2]
			switch sigil {
			case "result":
				target := ref
				if idx := strings.IndexByte(ref, '.'); idx >= 0 {
					target = ref[:idx]
				}
				if target == "" {
					verr.add("invalid_template_ref", a.ID, "empty result reference")
					continue
				}
				if _, ok := byID[target]; !ok {
					verr.add("unresolved_template_ref", a.ID, "{{result.%s}} references unknown action %q", ref, target)
					continue
				}
				if !deps[target] {
					verr.add("non_dependency_template_ref", a.ID,
						"{{result.%s}} references action %q which is not a transitive dependency", ref, target)
				}
			case "memory":
				if !memoryKeyPattern.MatchString(ref) {
					verr.add("invalid_template_ref", a.ID, "invalid memory key %q", ref)
				}
			case "env":
				if !envVarPattern.MatchString(ref) {
					verr.add("invalid_template_ref", a.ID, "invalid environment variable %q", ref)
				}
			}
		}
	}
}

func checkCompilerTrace(p *models.Plan, verr *ValidationError) {
	if p.CompilerTrace == nil {
		verr.add("missing_compiler_trace", "", "plan_mode=compiled requires a compiler trace")
		return
	}
	for phase, content := range p.CompilerTrace.Phases() {
		if strings.TrimSpace(content) == "" {
			verr.add("empty_compiler_phase", "", "compiler trace phase %q is empty", phase)
		}
	}
}
