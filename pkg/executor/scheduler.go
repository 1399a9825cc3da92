package executor

import (
	"github.com/llmos-bridge/bridge/pkg/models"
)

// readyActions returns, in declaration order, the PENDING actions whose
// dependencies have all reached a terminal state. Failure cascades have
// already converted the affected descendants to SKIPPED, so terminal
// dependencies are sufficient here.
func readyActions(plan *models.Plan, records map[string]*models.ActionRecord) []*models.Action {
	var ready []*models.Action
	for _, a := range plan.Actions {
		rec := records[a.ID]
		if rec == nil || rec.State != models.ActionPending {
			continue
		}
		eligible := true
		for _, dep := range a.DependsOn {
			depRec := records[dep]
			if depRec == nil || !depRec.State.IsTerminal() {
				eligible = false
				break
			}
		}
		if eligible {
			ready = append(ready, a)
		}
	}
	return ready
}

// transitiveDescendants returns every action reachable from id through
// depends_on edges, in declaration order.
func transitiveDescendants(plan *models.Plan, id string) []*models.Action {
	dependents := make(map[string][]string, len(plan.Actions))
	for _, a := range plan.Actions {
		for _, dep := range a.DependsOn {
			dependents[dep] = append(dependents[dep], a.ID)
		}
	}

	reached := map[string]bool{}
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range dependents[cur] {
			if !reached[next] {
				reached[next] = true
				stack = append(stack, next)
			}
		}
	}

	var out []*models.Action
	for _, a := range plan.Actions {
		if reached[a.ID] {
			out = append(out, a)
		}
	}
	return out
}

// rollbackOrder returns the COMPLETED actions carrying a rollback body,
// most recently completed first. Ties on identical timestamps fall back
// to reverse declaration order.
func rollbackOrder(plan *models.Plan, records map[string]*models.ActionRecord) []*models.Action {
	var out []*models.Action
	for i := len(plan.Actions) - 1; i >= 0; i-- {
		a := plan.Actions[i]
		rec := records[a.ID]
		if rec == nil || rec.State != models.ActionCompleted || a.Rollback == nil {
			continue
		}
		out = append(out, a)
	}
	// Order by completion time where known, newest first.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0; j-- {
			a, b := records[out[j-1].ID], records[out[j].ID]
			if a.EndedAt != nil && b.EndedAt != nil && b.EndedAt.After(*a.EndedAt) {
				out[j-1], out[j] = out[j], out[j-1]
			} else {
				break
			}
		}
	}
	return out
}
