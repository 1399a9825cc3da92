package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/llmos-bridge/bridge/pkg/events"
	"github.com/llmos-bridge/bridge/pkg/models"
)

// GroupExecutor fans a batch of independent plans out through the
// executor and aggregates their outcomes. Plans in a group share no
// state; fan-out is bounded by the request's max_concurrent ceiling on
// top of the executor's global semaphore.
type GroupExecutor struct {
	executor *Executor
}

// NewGroupExecutor creates a group executor over the plan executor.
func NewGroupExecutor(e *Executor) *GroupExecutor {
	return &GroupExecutor{executor: e}
}

// Execute submits every plan and waits for all of them to terminate. At
// most maxConcurrent plans are in flight at once; zero means no
// per-group ceiling. Admission failures count as errors for that plan;
// the rest of the group still runs.
func (g *GroupExecutor) Execute(ctx context.Context, plans []*models.Plan, maxConcurrent int, identity string, sc events.SessionContext) *models.GroupResult {
	start := time.Now()
	result := &models.GroupResult{
		Results: make(map[string]*models.ExecutionState, len(plans)),
		Errors:  make(map[string]string),
	}

	limit := maxConcurrent
	if limit <= 0 || limit > len(plans) {
		limit = len(plans)
	}
	sem := semaphore.NewWeighted(int64(limit))

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, plan := range plans {
		wg.Add(1)
		go func(p *models.Plan) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				result.Errors[p.PlanID] = err.Error()
				mu.Unlock()
				return
			}
			defer sem.Release(1)

			state, err := g.runOne(ctx, p, identity, sc)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors[p.PlanID] = err.Error()
				return
			}
			result.Results[p.PlanID] = state
		}(plan)
	}
	wg.Wait()

	result.Duration = time.Since(start)
	result.Status = aggregateStatus(result)
	return result
}

func (g *GroupExecutor) runOne(ctx context.Context, plan *models.Plan, identity string, sc events.SessionContext) (*models.ExecutionState, error) {
	state, err := g.executor.Submit(ctx, plan, identity, sc)
	if err != nil {
		return nil, err
	}
	if state.Status.IsTerminal() {
		return state, nil
	}

	done, running := g.executor.Wait(plan.PlanID)
	if running {
		select {
		case <-done:
		case <-ctx.Done():
			_ = g.executor.Cancel(plan.PlanID)
			<-done
		}
	}

	final, err := g.executor.deps.Plans.Get(context.Background(), plan.PlanID)
	if err != nil {
		return nil, fmt.Errorf("failed to load final state for %s: %w", plan.PlanID, err)
	}
	return final, nil
}

func aggregateStatus(result *models.GroupResult) models.GroupStatus {
	succeeded, failed := 0, len(result.Errors)
	for _, state := range result.Results {
		if state.Status == models.PlanSucceeded {
			succeeded++
		} else {
			failed++
		}
	}
	switch {
	case failed == 0:
		return models.GroupAllSucceeded
	case succeeded == 0:
		return models.GroupAllFailed
	default:
		return models.GroupPartial
	}
}
