// Package executor runs admitted plans: wave scheduling over the action
// DAG, retry with jittered exponential backoff, approval gating, failure
// cascades, and the compensating rollback sweep.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"github.com/llmos-bridge/bridge/pkg/config"
	"github.com/llmos-bridge/bridge/pkg/events"
	"github.com/llmos-bridge/bridge/pkg/metrics"
	"github.com/llmos-bridge/bridge/pkg/models"
	"github.com/llmos-bridge/bridge/pkg/modules"
	"github.com/llmos-bridge/bridge/pkg/security"
	"github.com/llmos-bridge/bridge/pkg/services"
	"github.com/llmos-bridge/bridge/pkg/session"
	"github.com/llmos-bridge/bridge/pkg/template"
)

// ErrNotRunning is returned by Cancel for plans with no live execution.
var ErrNotRunning = errors.New("plan is not running")

const (
	defaultApprovalTimeout = 10 * time.Minute
	defaultActionTimeout   = 5 * time.Minute
	rollbackTimeout        = 2 * time.Minute
	eventSource            = "executor"
)

// Deps wires the executor's collaborators.
type Deps struct {
	Config     *config.Config
	Registry   *modules.Registry
	Pipeline   *security.Pipeline
	Guard      *security.Guard
	Sanitizer  *security.Sanitizer
	Limiter    *security.ActionRateLimiter
	Plans      *services.PlanService
	Sessions   *session.Manager
	Bus        events.Bus
	Propagator *events.SessionContextPropagator
	Approvals  *ApprovalRegistry
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

type runningPlan struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Executor admits and runs plans. One Executor serves the whole daemon.
type Executor struct {
	deps Deps

	globalSem  *semaphore.Weighted
	moduleSems map[string]*semaphore.Weighted

	mu      sync.Mutex
	running map[string]*runningPlan
}

// New creates an executor. Resource limits become per-module semaphores;
// max_concurrent_plans becomes the global one.
func New(deps Deps) *Executor {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	maxPlans := deps.Config.Executor.MaxConcurrentPlans
	if maxPlans < 1 {
		maxPlans = 4
	}
	moduleSems := make(map[string]*semaphore.Weighted, len(deps.Config.ResourceLimits))
	for module, limit := range deps.Config.ResourceLimits {
		if limit > 0 {
			moduleSems[module] = semaphore.NewWeighted(int64(limit))
		}
	}
	return &Executor{
		deps:       deps,
		globalSem:  semaphore.NewWeighted(int64(maxPlans)),
		moduleSems: moduleSems,
		running:    make(map[string]*runningPlan),
	}
}

// Submit admits a plan and, when admission passes, starts it
// asynchronously. A refused plan is persisted as REJECTED with its
// rejection details and returned without error; structural problems
// (unknown module or action) return an error instead.
func (e *Executor) Submit(ctx context.Context, plan *models.Plan, identity string, sc events.SessionContext) (*models.ExecutionState, error) {
	if identity == "" {
		identity = "anonymous"
	}

	for _, a := range plan.Actions {
		if !e.deps.Registry.Has(a.Module, a.Action) {
			return nil, &modules.UnknownActionError{Module: a.Module, Action: a.Action}
		}
		if a.Rollback != nil && !e.deps.Registry.Has(a.Rollback.Module, a.Rollback.Action) {
			return nil, &modules.UnknownActionError{Module: a.Rollback.Module, Action: a.Rollback.Action}
		}
	}

	state := newExecutionState(plan, sc)

	if err := e.deps.Limiter.AllowSubmission(identity); err != nil {
		var rlErr *security.RateLimitError
		if errors.As(err, &rlErr) {
			return e.reject(ctx, plan, state, rlErr.RejectionDetails())
		}
		return nil, err
	}

	if permErr := e.deps.Guard.CheckPlan(plan); permErr != nil {
		return e.reject(ctx, plan, state, &models.RejectionDetails{
			Source:    models.RejectionPermissionGuard,
			Verdict:   security.VerdictReject.String(),
			RiskScore: 0,
			Recommendations: []string{
				permErr.Error(),
				fmt.Sprintf("the active profile is %q", e.deps.Guard.Profile()),
			},
		})
	}

	scan := e.deps.Pipeline.Scan(ctx, plan)
	e.deps.Metrics.ScannerVerdict(scan.Verdict.String())
	if scan.Verdict == security.VerdictReject {
		return e.reject(ctx, plan, state, scan.RejectionDetails(rejectionSource(scan)))
	}

	if err := e.deps.Plans.Create(ctx, plan, state); err != nil {
		return nil, err
	}
	e.deps.Propagator.Bind(plan.PlanID, sc)
	e.emit(plan.PlanID, "plan.submitted", events.TopicPlanSubmitted, map[string]any{
		"plan_id": plan.PlanID,
		"actions": len(plan.Actions),
	})

	runCtx, cancel := context.WithCancel(context.Background())
	rp := &runningPlan{cancel: cancel, done: make(chan struct{})}
	e.mu.Lock()
	e.running[plan.PlanID] = rp
	e.mu.Unlock()

	go e.run(runCtx, plan, state, identity, rp)
	return state, nil
}

// Cancel interrupts a running plan. Running actions see their context
// cancelled; pending actions are skipped.
func (e *Executor) Cancel(planID string) error {
	e.mu.Lock()
	rp, ok := e.running[planID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRunning, planID)
	}
	e.deps.Approvals.Drop(planID)
	rp.cancel()
	return nil
}

// Wait returns the completion channel for a running plan. ok is false
// when the plan is not currently executing.
func (e *Executor) Wait(planID string) (<-chan struct{}, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rp, ok := e.running[planID]
	if !ok {
		return nil, false
	}
	return rp.done, true
}

func newExecutionState(plan *models.Plan, sc events.SessionContext) *models.ExecutionState {
	records := make(map[string]*models.ActionRecord, len(plan.Actions))
	for _, a := range plan.Actions {
		records[a.ID] = &models.ActionRecord{ActionID: a.ID, State: models.ActionPending}
	}
	return &models.ExecutionState{
		PlanID:        plan.PlanID,
		Status:        models.PlanQueued,
		SessionID:     sc.SessionID,
		CorrelationID: sc.CorrelationID,
		Actions:       records,
		CreatedAt:     time.Now().UTC(),
	}
}

func (e *Executor) reject(ctx context.Context, plan *models.Plan, state *models.ExecutionState, details *models.RejectionDetails) (*models.ExecutionState, error) {
	now := time.Now().UTC()
	state.Status = models.PlanRejected
	state.RejectionDetails = details
	state.EndedAt = &now
	if err := e.deps.Plans.Create(ctx, plan, state); err != nil {
		return nil, err
	}
	e.deps.Metrics.PlanFinished(string(models.PlanRejected))
	e.emit(plan.PlanID, "plan.rejected", events.TopicPlanRejected, map[string]any{
		"plan_id": plan.PlanID,
		"source":  string(details.Source),
		"verdict": details.Verdict,
	})
	e.deps.Logger.Info("Plan rejected",
		"plan_id", plan.PlanID, "source", details.Source, "risk_score", details.RiskScore)
	return state, nil
}

// rejectionSource attributes the aggregate rejection to the verifier when
// the deciding finding came from it, otherwise to the scanner pipeline.
func rejectionSource(res security.ScannerResult) models.RejectionSource {
	if res.ClarificationNeeded {
		return models.RejectionIntentVerifier
	}
	deciding := ""
	top := -1.0
	for _, f := range res.Findings {
		if f.RiskScore > top {
			top = f.RiskScore
			deciding = f.Scanner
		}
	}
	if deciding == "intent" {
		return models.RejectionIntentVerifier
	}
	return models.RejectionScannerPipeline
}

func (e *Executor) run(ctx context.Context, plan *models.Plan, state *models.ExecutionState, identity string, rp *runningPlan) {
	defer func() {
		e.deps.Propagator.Unbind(plan.PlanID)
		e.deps.Approvals.Drop(plan.PlanID)
		e.mu.Lock()
		delete(e.running, plan.PlanID)
		e.mu.Unlock()
		close(rp.done)
	}()

	if err := e.globalSem.Acquire(ctx, 1); err != nil {
		e.skipRemaining(plan, state, "plan cancelled")
		e.finalize(plan, state, models.PlanCancelled, "cancelled before execution started")
		return
	}
	defer e.globalSem.Release(1)

	now := time.Now().UTC()
	state.Status = models.PlanRunning
	state.StartedAt = &now
	e.persistStatus(state)
	e.emit(plan.PlanID, "plan.started", events.TopicPlanStarted, map[string]any{
		"plan_id": plan.PlanID,
	})

	for ctx.Err() == nil {
		ready := readyActions(plan, state.Actions)
		if len(ready) == 0 {
			break
		}
		var wg sync.WaitGroup
		for _, action := range ready {
			wg.Add(1)
			go func(a *models.Action) {
				defer wg.Done()
				e.runAction(ctx, plan, state, a, identity)
			}(action)
		}
		wg.Wait()
		e.applyCascades(plan, state)
	}

	if ctx.Err() != nil {
		e.skipRemaining(plan, state, "plan cancelled")
		e.finalize(plan, state, models.PlanCancelled, "")
		return
	}

	status := models.PlanSucceeded
	failureMsg := ""
	for _, rec := range state.Actions {
		if rec.State != models.ActionCompleted {
			status = models.PlanFailed
			if rec.State == models.ActionFailed && failureMsg == "" {
				failureMsg = fmt.Sprintf("action %s failed: %s", rec.ActionID, rec.Error)
			}
		}
	}

	if status == models.PlanFailed && e.rollbackRequested(plan) {
		e.rollbackSweep(plan, state)
	}
	e.finalize(plan, state, status, failureMsg)
}

func (e *Executor) rollbackRequested(plan *models.Plan) bool {
	return plan.RollbackOnFailure || e.deps.Config.Executor.RollbackOnFailure
}

// applyCascades marks the transitive descendants of failed abort-policy
// actions as SKIPPED. Idempotent across waves.
func (e *Executor) applyCascades(plan *models.Plan, state *models.ExecutionState) {
	for _, a := range plan.Actions {
		rec := state.Actions[a.ID]
		if rec.State != models.ActionFailed {
			continue
		}
		if a.OnFailure == models.OnFailureContinue {
			continue
		}
		for _, desc := range transitiveDescendants(plan, a.ID) {
			descRec := state.Actions[desc.ID]
			if descRec.State.IsTerminal() || descRec.State == models.ActionRunning {
				continue
			}
			e.markSkipped(plan.PlanID, descRec, fmt.Sprintf("dependency %s failed", a.ID))
		}
	}
}

func (e *Executor) skipRemaining(plan *models.Plan, state *models.ExecutionState, reason string) {
	for _, a := range plan.Actions {
		rec := state.Actions[a.ID]
		if !rec.State.IsTerminal() {
			e.markSkipped(plan.PlanID, rec, reason)
		}
	}
}

func (e *Executor) markSkipped(planID string, rec *models.ActionRecord, reason string) {
	now := time.Now().UTC()
	rec.State = models.ActionSkipped
	rec.Error = reason
	rec.EndedAt = &now
	e.persistAction(planID, rec)
	e.emit(planID, "action.skipped", events.TopicActionSkipped, map[string]any{
		"plan_id":   planID,
		"action_id": rec.ActionID,
		"reason":    reason,
	})
}

func (e *Executor) finalize(plan *models.Plan, state *models.ExecutionState, status models.PlanStatus, errMsg string) {
	now := time.Now().UTC()
	state.Status = status
	state.EndedAt = &now
	if errMsg != "" {
		state.Error = errMsg
	}
	e.persistStatus(state)
	e.deps.Metrics.PlanFinished(string(status))

	topic := events.TopicPlanCompleted
	eventType := "plan.completed"
	switch status {
	case models.PlanFailed:
		topic, eventType = events.TopicPlanFailed, "plan.failed"
	case models.PlanCancelled:
		topic, eventType = events.TopicPlanCancelled, "plan.cancelled"
	}
	e.emit(plan.PlanID, eventType, topic, map[string]any{
		"plan_id": plan.PlanID,
		"status":  string(status),
		"error":   errMsg,
	})
	e.deps.Logger.Info("Plan finished", "plan_id", plan.PlanID, "status", status)
}

func (e *Executor) runAction(ctx context.Context, plan *models.Plan, state *models.ExecutionState, a *models.Action, identity string) {
	rec := state.Actions[a.ID]
	params := a.Params

	if a.RequiresApproval {
		approved, newParams := e.awaitApproval(ctx, plan, a, rec, params)
		if !approved {
			return
		}
		params = newParams
	}

	resolved, err := e.resolveParams(state, params)
	if err != nil {
		e.failAction(plan.PlanID, a, rec, fmt.Sprintf("template resolution failed: %v", err))
		return
	}

	if permErr := e.deps.Guard.CheckResolvedPaths(a.ID, a.Module, a.Action, resolved); permErr != nil {
		e.failAction(plan.PlanID, a, rec, permErr.Error())
		return
	}

	if err := e.deps.Limiter.AllowAction(identity, a.Module, a.Action); err != nil {
		e.failAction(plan.PlanID, a, rec, err.Error())
		return
	}

	if a.Perception != nil && a.Perception.CaptureBefore {
		e.emitPerception(plan.PlanID, a.ID, "before")
	}

	now := time.Now().UTC()
	rec.State = models.ActionRunning
	rec.StartedAt = &now
	e.persistAction(plan.PlanID, rec)
	e.emit(plan.PlanID, "action.started", events.TopicActionStarted, map[string]any{
		"plan_id":   plan.PlanID,
		"action_id": a.ID,
		"module":    a.Module,
		"action":    a.Action,
	})

	out, err := e.dispatchWithRetry(ctx, plan.PlanID, a, rec, resolved)
	if err != nil {
		e.failAction(plan.PlanID, a, rec, err.Error())
		return
	}

	sanitized := e.sanitizeResult(out)
	rec.Result = sanitized
	e.writeMemory(state, a, sanitized)

	end := time.Now().UTC()
	rec.State = models.ActionCompleted
	rec.EndedAt = &end
	e.persistAction(plan.PlanID, rec)
	e.deps.Metrics.ActionFinished(a.Module, string(models.ActionCompleted))
	e.emit(plan.PlanID, "action.completed", events.TopicActionCompleted, map[string]any{
		"plan_id":   plan.PlanID,
		"action_id": a.ID,
		"attempts":  rec.Attempts,
	})

	if a.Perception != nil && a.Perception.CaptureAfter {
		e.emitPerception(plan.PlanID, a.ID, "after")
	}
}

// awaitApproval blocks the action on its gate. Deferral restarts the
// timeout; every other decision closes the gate.
func (e *Executor) awaitApproval(ctx context.Context, plan *models.Plan, a *models.Action, rec *models.ActionRecord, params json.RawMessage) (bool, json.RawMessage) {
	rec.State = models.ActionWaiting
	e.persistAction(plan.PlanID, rec)
	e.emit(plan.PlanID, "approval.requested", events.TopicApprovalRequested, map[string]any{
		"plan_id":   plan.PlanID,
		"action_id": a.ID,
		"prompt":    approvalPrompt(a),
	})

	timeout := e.deps.Config.Executor.ApprovalTimeout
	if timeout <= 0 {
		timeout = defaultApprovalTimeout
	}
	ch := e.deps.Approvals.Request(plan.PlanID, a.ID, a.Approval)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			e.markSkipped(plan.PlanID, rec, "plan cancelled while awaiting approval")
			return false, nil
		case <-timer.C:
			e.failAction(plan.PlanID, a, rec, "approval timed out")
			return false, nil
		case d := <-ch:
			e.emit(plan.PlanID, "approval.resolved", events.TopicApprovalResolved, map[string]any{
				"plan_id":   plan.PlanID,
				"action_id": a.ID,
				"decision":  string(d.Type),
			})
			switch d.Type {
			case DecisionDefer:
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(timeout)
			case DecisionReject:
				reason := d.Reason
				if reason == "" {
					reason = "approval rejected"
				}
				e.failAction(plan.PlanID, a, rec, reason)
				return false, nil
			case DecisionApproveWithChanges:
				return true, d.Params
			case DecisionChoose:
				return true, mergeChoice(params, d.Choice)
			default:
				return true, params
			}
		}
	}
}

func approvalPrompt(a *models.Action) string {
	if a.Approval != nil && a.Approval.Prompt != "" {
		return a.Approval.Prompt
	}
	return fmt.Sprintf("Approve %s.%s?", a.Module, a.Action)
}

// mergeChoice injects the selected clarification option into params.
func mergeChoice(params json.RawMessage, choice string) json.RawMessage {
	doc := map[string]any{}
	if len(params) > 0 {
		_ = json.Unmarshal(params, &doc)
	}
	doc["choice"] = choice
	out, err := json.Marshal(doc)
	if err != nil {
		return params
	}
	return out
}

type resultReader struct {
	records map[string]*models.ActionRecord
}

func (r resultReader) ActionResult(actionID string) (json.RawMessage, models.ActionState, bool) {
	rec, ok := r.records[actionID]
	if !ok {
		return nil, "", false
	}
	return rec.Result, rec.State, true
}

func (e *Executor) resolveParams(state *models.ExecutionState, params json.RawMessage) (json.RawMessage, error) {
	resolver := &template.Resolver{
		Results: resultReader{records: state.Actions},
		Memory:  e.deps.Sessions.Memory(state.SessionID),
		Strict:  e.deps.Config.Security.StrictTemplates,
	}
	return resolver.Resolve(params)
}

// dispatchWithRetry runs the action with jittered exponential backoff.
// Cancellation interrupts a backoff sleep immediately.
func (e *Executor) dispatchWithRetry(ctx context.Context, planID string, a *models.Action, rec *models.ActionRecord, params json.RawMessage) (json.RawMessage, error) {
	maxAttempts := 1
	base := time.Second
	if a.Retry != nil {
		maxAttempts = a.Retry.MaxAttempts
		if a.Retry.BackoffSeconds > 0 {
			base = time.Duration(a.Retry.BackoffSeconds * float64(time.Second))
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = base
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.2
	bo.MaxInterval = 10 * time.Minute
	bo.MaxElapsedTime = 0
	bo.Reset()

	timeout := e.deps.Config.Executor.DefaultTimeout
	if timeout <= 0 {
		timeout = defaultActionTimeout
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		rec.Attempts = attempt

		out, err := e.dispatchOnce(ctx, a.Module, a.Action, params, timeout)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == maxAttempts {
			break
		}

		e.deps.Metrics.ActionRetried()
		e.deps.Logger.Warn("Action attempt failed, retrying",
			"plan_id", planID, "action_id", a.ID, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(bo.NextBackOff()):
		}
	}
	return nil, fmt.Errorf("failed after %d attempt(s): %w", rec.Attempts, lastErr)
}

func (e *Executor) dispatchOnce(ctx context.Context, module, action string, params json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	if sem, ok := e.moduleSems[module]; ok {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer sem.Release(1)
	}
	actionCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return e.deps.Registry.Dispatch(actionCtx, module, action, params)
}

// sanitizeResult applies the output sanitizer to the serialised result.
// If sanitisation (typically truncation) breaks the JSON, the remainder
// is wrapped as a plain string value.
func (e *Executor) sanitizeResult(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	clean := e.deps.Sanitizer.Sanitize(string(raw))
	if json.Valid([]byte(clean)) {
		return json.RawMessage(clean)
	}
	wrapped, err := json.Marshal(clean)
	if err != nil {
		return raw
	}
	return wrapped
}

func (e *Executor) writeMemory(state *models.ExecutionState, a *models.Action, result json.RawMessage) {
	if a.Memory == nil || a.Memory.WriteKey == "" {
		return
	}
	var value any
	if err := json.Unmarshal(result, &value); err != nil {
		value = string(result)
	}
	e.deps.Sessions.Memory(state.SessionID).Write(a.Memory.WriteKey, value)
}

func (e *Executor) failAction(planID string, a *models.Action, rec *models.ActionRecord, msg string) {
	now := time.Now().UTC()
	rec.State = models.ActionFailed
	rec.Error = msg
	rec.EndedAt = &now
	e.persistAction(planID, rec)
	e.deps.Metrics.ActionFinished(a.Module, string(models.ActionFailed))
	e.emit(planID, "action.failed", events.TopicActionFailed, map[string]any{
		"plan_id":   planID,
		"action_id": a.ID,
		"error":     msg,
	})
	e.deps.Logger.Warn("Action failed", "plan_id", planID, "action_id", a.ID, "error", msg)
}

// rollbackSweep compensates COMPLETED actions in reverse completion
// order. A failing compensation is recorded and the sweep continues.
func (e *Executor) rollbackSweep(plan *models.Plan, state *models.ExecutionState) {
	for _, a := range rollbackOrder(plan, state.Actions) {
		rec := state.Actions[a.ID]

		params, err := e.resolveParams(state, a.Rollback.Params)
		if err != nil {
			rec.RollbackError = fmt.Sprintf("rollback params resolution failed: %v", err)
			e.persistAction(plan.PlanID, rec)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), rollbackTimeout)
		_, err = e.deps.Registry.Dispatch(ctx, a.Rollback.Module, a.Rollback.Action, params)
		cancel()
		if err != nil {
			rec.RollbackError = err.Error()
			e.persistAction(plan.PlanID, rec)
			e.deps.Logger.Error("Rollback failed",
				"plan_id", plan.PlanID, "action_id", a.ID, "error", err)
			continue
		}

		now := time.Now().UTC()
		rec.State = models.ActionRolledBack
		rec.EndedAt = &now
		e.persistAction(plan.PlanID, rec)
		e.deps.Metrics.ActionFinished(a.Module, string(models.ActionRolledBack))
		e.emit(plan.PlanID, "action.rolled_back", events.TopicActionRolledBack, map[string]any{
			"plan_id":   plan.PlanID,
			"action_id": a.ID,
		})
	}
}

func (e *Executor) emitPerception(planID, actionID, phase string) {
	e.emit(planID, "perception.capture_requested", events.TopicPerceptionCapture, map[string]any{
		"plan_id":   planID,
		"action_id": actionID,
		"phase":     phase,
	})
}

func (e *Executor) emit(planID, eventType, topic string, payload map[string]any) {
	evt := events.New(eventType, topic, eventSource, payload)
	e.deps.Propagator.Stamp(planID, evt)
	if err := e.deps.Bus.Publish(context.Background(), evt); err != nil {
		e.deps.Logger.Warn("Failed to publish event", "topic", topic, "error", err)
	}
}

func (e *Executor) persistStatus(state *models.ExecutionState) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.deps.Plans.UpdateStatus(ctx, state); err != nil {
		e.deps.Logger.Error("Failed to persist plan status",
			"plan_id", state.PlanID, "status", state.Status, "error", err)
	}
}

func (e *Executor) persistAction(planID string, rec *models.ActionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.deps.Plans.SaveAction(ctx, planID, rec); err != nil {
		e.deps.Logger.Error("Failed to persist action record",
			"plan_id", planID, "action_id", rec.ActionID, "error", err)
	}
}
