package triggers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/llmos-bridge/bridge/pkg/config"
	"github.com/llmos-bridge/bridge/pkg/events"
	"github.com/llmos-bridge/bridge/pkg/executor"
	"github.com/llmos-bridge/bridge/pkg/metrics"
	"github.com/llmos-bridge/bridge/pkg/models"
	"github.com/llmos-bridge/bridge/pkg/plan"
	"github.com/llmos-bridge/bridge/pkg/services"
)

// ErrChainDepthExceeded refuses trigger registrations whose causal chain
// of trigger-submitted plans is already past the depth bound.
var ErrChainDepthExceeded = errors.New("trigger chain depth exceeded")

// ErrDaemonDisabled is returned by trigger operations when the daemon is
// configured off.
var ErrDaemonDisabled = errors.New("trigger daemon is disabled")

// latencyAlpha is the EMA smoothing factor for fire-to-submission latency.
const latencyAlpha = 0.3

const daemonEventSource = "trigger-daemon"

// Daemon owns all registered triggers: watcher lifecycles, throttling,
// the fire scheduler, health accounting, and expiry sweeps.
type Daemon struct {
	cfg       *config.TriggersConfig
	store     *services.TriggerService
	exec      *executor.Executor
	bus       events.Bus
	metrics   *metrics.Metrics
	logger    *slog.Logger
	scheduler *Scheduler

	mu        sync.Mutex
	ctx       context.Context
	watchers  map[string]context.CancelFunc
	throttles map[string]*throttle
	started   bool
}

// NewDaemon creates a stopped daemon.
func NewDaemon(cfg *config.TriggersConfig, store *services.TriggerService, exec *executor.Executor, bus events.Bus, m *metrics.Metrics, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Daemon{
		cfg:       cfg,
		store:     store,
		exec:      exec,
		bus:       bus,
		metrics:   m,
		logger:    logger,
		watchers:  make(map[string]context.CancelFunc),
		throttles: make(map[string]*throttle),
	}
	d.scheduler = NewScheduler(d, cfg.MaxConcurrentPlans, cfg.LockWaitTimeout, d.fireFinished, logger)
	return d
}

// Start loads enabled triggers, starts their watchers and the fire
// scheduler, and begins the expiry sweep loop.
func (d *Daemon) Start(ctx context.Context) error {
	if !d.cfg.IsEnabled() {
		return ErrDaemonDisabled
	}
	d.mu.Lock()
	d.ctx = ctx
	d.started = true
	d.mu.Unlock()

	d.scheduler.Start(ctx)

	enabled, err := d.store.List(ctx, true)
	if err != nil {
		return fmt.Errorf("failed to load triggers: %w", err)
	}
	for _, t := range enabled {
		if err := d.startWatcher(t); err != nil {
			d.logger.Error("Failed to start trigger watcher",
				"trigger_id", t.TriggerID, "error", err)
			d.markFailed(t.TriggerID, err)
		}
	}
	d.logger.Info("Trigger daemon started", "triggers", len(enabled))

	go d.sweepLoop(ctx)
	return nil
}

// Register validates and persists a trigger, starting its watcher when
// the trigger is enabled and the daemon is running.
func (d *Daemon) Register(ctx context.Context, t *models.TriggerDefinition) error {
	if !d.cfg.IsEnabled() {
		return ErrDaemonDisabled
	}
	if t.TriggerID == "" {
		t.TriggerID = uuid.NewString()
	}
	if t.Name == "" {
		return fmt.Errorf("trigger name is required")
	}

	maxDepth := t.EffectiveMaxChainDepth()
	if d.cfg.MaxChainDepth > 0 && d.cfg.MaxChainDepth < maxDepth {
		maxDepth = d.cfg.MaxChainDepth
	}
	if t.ChainDepth > maxDepth {
		return fmt.Errorf("%w: depth %d with bound %d", ErrChainDepthExceeded, t.ChainDepth, maxDepth)
	}

	// Validate the condition and the plan template up front; the plan
	// gets a fresh id at every fire.
	if _, err := NewWatcher(t.Condition); err != nil {
		return err
	}
	if _, err := plan.ParseAndValidate(t.PlanTemplate); err != nil {
		return fmt.Errorf("invalid plan template: %w", err)
	}

	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Health == nil {
		t.Health = &models.TriggerHealth{}
	}
	if t.State == "" {
		t.State = models.TriggerRegistered
	}

	if err := d.store.Save(ctx, t); err != nil {
		return err
	}
	d.emit(t, "trigger.registered", events.TopicTriggerRegistered, map[string]any{
		"trigger_id": t.TriggerID,
		"name":       t.Name,
	})

	if t.Enabled && d.isStarted() {
		if err := d.startWatcher(t); err != nil {
			d.markFailed(t.TriggerID, err)
			return err
		}
	}
	return nil
}

// Activate enables a trigger and starts its watcher.
func (d *Daemon) Activate(ctx context.Context, triggerID string) error {
	t, err := d.store.Get(ctx, triggerID)
	if err != nil {
		return err
	}
	if err := d.store.SetEnabled(ctx, triggerID, true); err != nil {
		return err
	}
	t.Enabled = true
	if d.isStarted() {
		return d.startWatcher(t)
	}
	return nil
}

// Deactivate disables a trigger and stops its watcher.
func (d *Daemon) Deactivate(ctx context.Context, triggerID string) error {
	if _, err := d.store.Get(ctx, triggerID); err != nil {
		return err
	}
	if err := d.store.SetEnabled(ctx, triggerID, false); err != nil {
		return err
	}
	d.stopWatcher(triggerID)
	return d.store.UpdateState(ctx, triggerID, models.TriggerInactive)
}

// Delete stops and removes a trigger.
func (d *Daemon) Delete(ctx context.Context, triggerID string) error {
	d.stopWatcher(triggerID)
	return d.store.Delete(ctx, triggerID)
}

// Get returns one trigger definition.
func (d *Daemon) Get(ctx context.Context, triggerID string) (*models.TriggerDefinition, error) {
	return d.store.Get(ctx, triggerID)
}

// List returns all trigger definitions.
func (d *Daemon) List(ctx context.Context) ([]*models.TriggerDefinition, error) {
	return d.store.List(ctx, false)
}

func (d *Daemon) isStarted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

func (d *Daemon) startWatcher(t *models.TriggerDefinition) error {
	watcher, err := NewWatcher(t.Condition)
	if err != nil {
		return err
	}

	d.mu.Lock()
	if cancel, ok := d.watchers[t.TriggerID]; ok {
		cancel()
	}
	wctx, cancel := context.WithCancel(d.ctx)
	d.watchers[t.TriggerID] = cancel
	d.throttles[t.TriggerID] = newThrottle(t.Throttle)
	d.mu.Unlock()

	_ = d.store.UpdateState(context.Background(), t.TriggerID, models.TriggerActive)

	go func() {
		err := watcher.Watch(wctx, func(payload map[string]any) {
			d.onFire(t, payload)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("Trigger watcher stopped",
				"trigger_id", t.TriggerID, "error", err)
			d.markFailed(t.TriggerID, err)
			d.emit(t, "trigger.failed", events.TopicTriggerFailed, map[string]any{
				"trigger_id": t.TriggerID,
				"error":      err.Error(),
			})
		}
	}()
	return nil
}

func (d *Daemon) stopWatcher(triggerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cancel, ok := d.watchers[triggerID]; ok {
		cancel()
		delete(d.watchers, triggerID)
		delete(d.throttles, triggerID)
	}
}

func (d *Daemon) onFire(t *models.TriggerDefinition, payload map[string]any) {
	d.mu.Lock()
	gate := d.throttles[t.TriggerID]
	d.mu.Unlock()

	if gate != nil && !gate.allow() {
		d.metrics.TriggerThrottled()
		d.updateHealth(t.TriggerID, func(h *models.TriggerHealth) {
			h.ThrottleCount++
		})
		_ = d.store.UpdateState(context.Background(), t.TriggerID, models.TriggerThrottled)
		d.emit(t, "trigger.throttled", events.TopicTriggerThrottled, map[string]any{
			"trigger_id": t.TriggerID,
		})
		return
	}

	_ = d.store.UpdateState(context.Background(), t.TriggerID, models.TriggerFired)
	d.metrics.TriggerFired(t.TriggerID)
	d.emit(t, "trigger.fired", events.TopicTriggerFired, map[string]any{
		"trigger_id": t.TriggerID,
		"payload":    payload,
	})
	d.scheduler.Enqueue(t, payload, time.Now())
}

// RunPlan implements PlanRunner: it instantiates the trigger's plan
// template with a fresh plan id and submits it.
func (d *Daemon) RunPlan(ctx context.Context, t *models.TriggerDefinition, payload map[string]any) (string, <-chan struct{}, func(), error) {
	p, err := plan.ParseAndValidate(t.PlanTemplate)
	if err != nil {
		return "", nil, nil, fmt.Errorf("plan template no longer valid: %w", err)
	}
	p.PlanID = uuid.NewString()

	sc := events.SessionContext{
		SessionID:         "trigger:" + t.TriggerID,
		TriggerID:         t.TriggerID,
		TriggerChainDepth: t.ChainDepth + 1,
	}
	state, err := d.exec.Submit(ctx, p, "trigger:"+t.TriggerID, sc)
	if err != nil {
		return "", nil, nil, err
	}
	if state.Status.IsTerminal() {
		closed := make(chan struct{})
		close(closed)
		if state.Status == models.PlanRejected {
			return p.PlanID, closed, func() {}, fmt.Errorf("plan rejected by %s", state.RejectionDetails.Source)
		}
		return p.PlanID, closed, func() {}, nil
	}

	done, ok := d.exec.Wait(p.PlanID)
	if !ok {
		closed := make(chan struct{})
		close(closed)
		done = closed
	}
	cancel := func() { _ = d.exec.Cancel(p.PlanID) }
	return p.PlanID, done, cancel, nil
}

// fireFinished is the scheduler's outcome callback: health counters,
// latency EMA, and the state transition back to ACTIVE or FAILED.
func (d *Daemon) fireFinished(out FireOutcome) {
	triggerID := out.Trigger.TriggerID
	now := time.Now().UTC()

	// A fire dropped by the lock conflict resolver is suppression, not
	// failure: the trigger stays healthy and the drop counts as a throttle.
	if errors.Is(out.Err, ErrLockHeld) || errors.Is(out.Err, ErrLockWaitTimeout) {
		d.metrics.TriggerThrottled()
		d.updateHealth(triggerID, func(h *models.TriggerHealth) {
			h.ThrottleCount++
		})
		_ = d.store.UpdateState(context.Background(), triggerID, models.TriggerThrottled)
		d.logger.Debug("Trigger fire dropped on lock conflict",
			"trigger_id", triggerID, "error", out.Err)
		return
	}

	d.updateHealth(triggerID, func(h *models.TriggerHealth) {
		if out.Err != nil {
			h.FailCount++
			h.LastError = out.Err.Error()
		} else {
			h.FireCount++
			h.LastError = ""
			h.LastFiredAt = &now
			sample := float64(out.Latency.Milliseconds())
			if h.LatencyEMA == 0 {
				h.LatencyEMA = sample
			} else {
				h.LatencyEMA = latencyAlpha*sample + (1-latencyAlpha)*h.LatencyEMA
			}
		}
	})

	state := models.TriggerActive
	if out.Err != nil {
		state = models.TriggerFailed
		d.logger.Warn("Trigger fire failed",
			"trigger_id", triggerID, "error", out.Err)
	}
	_ = d.store.UpdateState(context.Background(), triggerID, state)
}

func (d *Daemon) updateHealth(triggerID string, mutate func(*models.TriggerHealth)) {
	ctx := context.Background()
	t, err := d.store.Get(ctx, triggerID)
	if err != nil {
		return
	}
	if t.Health == nil {
		t.Health = &models.TriggerHealth{}
	}
	mutate(t.Health)
	t.UpdatedAt = time.Now().UTC()
	if err := d.store.Save(ctx, t); err != nil {
		d.logger.Warn("Failed to persist trigger health",
			"trigger_id", triggerID, "error", err)
	}
}

func (d *Daemon) markFailed(triggerID string, err error) {
	d.updateHealth(triggerID, func(h *models.TriggerHealth) {
		h.FailCount++
		h.LastError = err.Error()
	})
	_ = d.store.UpdateState(context.Background(), triggerID, models.TriggerFailed)
}

// sweepLoop purges expired triggers on the configured interval.
func (d *Daemon) sweepLoop(ctx context.Context) {
	interval := d.cfg.ExpirySweepInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := d.store.PurgeExpired(ctx, time.Now().UTC())
			if err != nil {
				d.logger.Warn("Trigger expiry sweep failed", "error", err)
				continue
			}
			for _, id := range expired {
				d.stopWatcher(id)
				evt := events.New("trigger.expired", events.TopicTriggerExpired,
					daemonEventSource, map[string]any{"trigger_id": id})
				_ = d.bus.Publish(ctx, evt)
				d.logger.Info("Trigger expired", "trigger_id", id)
			}
		}
	}
}

func (d *Daemon) emit(t *models.TriggerDefinition, eventType, topic string, payload map[string]any) {
	evt := events.New(eventType, topic, daemonEventSource, payload)
	evt.Priority = int(t.Priority)
	if err := d.bus.Publish(context.Background(), evt); err != nil {
		d.logger.Warn("Failed to publish trigger event", "topic", topic, "error", err)
	}
}
