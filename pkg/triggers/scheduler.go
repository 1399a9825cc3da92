package triggers

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/llmos-bridge/bridge/pkg/models"
)

// ErrLockHeld is reported when a reject-policy fire finds its resource
// lock taken.
var ErrLockHeld = errors.New("resource lock held")

// ErrLockWaitTimeout is reported when a queue-policy fire outwaits the
// configured lock wait.
var ErrLockWaitTimeout = errors.New("timed out waiting for resource lock")

// PlanRunner executes one instantiated trigger plan. done closes when
// the plan reaches a terminal status, after any rollback sweep.
type PlanRunner interface {
	RunPlan(ctx context.Context, t *models.TriggerDefinition, payload map[string]any) (planID string, done <-chan struct{}, cancel func(), err error)
}

// FireOutcome reports how one fire ended, for health accounting.
type FireOutcome struct {
	Trigger *models.TriggerDefinition
	PlanID  string
	Err     error
	// Latency is fire-to-submission time.
	Latency time.Duration
}

type fireRequest struct {
	trigger *models.TriggerDefinition
	payload map[string]any
	firedAt time.Time
	seq     int64
}

// fireQueue is a min-heap on (priority, seq): more urgent first, FIFO
// within a priority.
type fireQueue []*fireRequest

func (q fireQueue) Len() int { return len(q) }
func (q fireQueue) Less(i, j int) bool {
	if q[i].trigger.Priority != q[j].trigger.Priority {
		return q[i].trigger.Priority < q[j].trigger.Priority
	}
	return q[i].seq < q[j].seq
}
func (q fireQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *fireQueue) Push(x any)   { *q = append(*q, x.(*fireRequest)) }
func (q *fireQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

type lockEntry struct {
	triggerID string
	priority  models.TriggerPriority
	cancel    func()
	released  chan struct{}
}

type runningFire struct {
	triggerID string
	priority  models.TriggerPriority
	cancel    func()
}

// Scheduler orders fires by priority, bounds concurrent trigger plans,
// and resolves resource-lock conflicts per the firing trigger's policy.
type Scheduler struct {
	runner        PlanRunner
	maxConcurrent int
	lockWait      time.Duration
	logger        *slog.Logger
	outcomes      func(FireOutcome)

	mu      sync.Mutex
	queue   fireQueue
	seq     int64
	slots   int
	locks   map[string]*lockEntry
	running map[string]*runningFire
	wake    chan struct{}
}

// NewScheduler creates a stopped scheduler; Start runs the dispatch loop.
// outcomes receives one callback per finished or refused fire.
func NewScheduler(runner PlanRunner, maxConcurrent int, lockWait time.Duration, outcomes func(FireOutcome), logger *slog.Logger) *Scheduler {
	if maxConcurrent < 1 {
		maxConcurrent = 4
	}
	if lockWait <= 0 {
		lockWait = 60 * time.Second
	}
	if outcomes == nil {
		outcomes = func(FireOutcome) {}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		runner:        runner,
		maxConcurrent: maxConcurrent,
		lockWait:      lockWait,
		logger:        logger,
		outcomes:      outcomes,
		locks:         make(map[string]*lockEntry),
		running:       make(map[string]*runningFire),
		wake:          make(chan struct{}, 1),
	}
}

// Enqueue adds a fire to the priority queue.
func (s *Scheduler) Enqueue(t *models.TriggerDefinition, payload map[string]any, firedAt time.Time) {
	s.mu.Lock()
	s.seq++
	heap.Push(&s.queue, &fireRequest{trigger: t, payload: payload, firedAt: firedAt, seq: s.seq})
	s.mu.Unlock()
	s.poke()
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start runs the dispatch loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
			}
			for {
				req := s.tryDispatch(ctx)
				if req == nil {
					break
				}
				go s.executeFire(ctx, req)
			}
		}
	}()
}

// tryDispatch pops the most urgent fire if a slot is free, preempting a
// BACKGROUND plan when a CRITICAL fire would otherwise wait.
func (s *Scheduler) tryDispatch(_ context.Context) *fireRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Len() == 0 {
		return nil
	}
	if s.slots >= s.maxConcurrent {
		head := s.queue[0]
		if head.trigger.Priority != models.PriorityCritical {
			return nil
		}
		victim := s.backgroundVictim()
		if victim == nil {
			return nil
		}
		s.logger.Warn("Preempting background plan for critical trigger",
			"victim_trigger", victim.triggerID, "critical_trigger", head.trigger.TriggerID)
		victim.cancel()
		// The slot frees once the victim's fire goroutine finishes;
		// the critical fire stays queued until then.
		return nil
	}
	s.slots++
	return heap.Pop(&s.queue).(*fireRequest)
}

func (s *Scheduler) backgroundVictim() *runningFire {
	for _, rf := range s.running {
		if rf.priority == models.PriorityBackground {
			return rf
		}
	}
	return nil
}

func (s *Scheduler) executeFire(ctx context.Context, req *fireRequest) {
	defer func() {
		s.mu.Lock()
		s.slots--
		s.mu.Unlock()
		s.poke()
	}()

	t := req.trigger
	if t.ResourceLock != "" {
		if err := s.acquireLock(ctx, req); err != nil {
			s.outcomes(FireOutcome{Trigger: t, Err: err})
			return
		}
		defer s.releaseLock(t.ResourceLock)
	}

	planID, done, cancel, err := s.runner.RunPlan(ctx, t, req.payload)
	latency := time.Since(req.firedAt)
	if err != nil {
		s.outcomes(FireOutcome{Trigger: t, Err: err, Latency: latency})
		return
	}

	s.mu.Lock()
	s.running[planID] = &runningFire{triggerID: t.TriggerID, priority: t.Priority, cancel: cancel}
	if t.ResourceLock != "" {
		if entry, ok := s.locks[t.ResourceLock]; ok {
			entry.cancel = cancel
		}
	}
	s.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			cancel()
			<-done
		}
	}

	s.mu.Lock()
	delete(s.running, planID)
	s.mu.Unlock()
	s.outcomes(FireOutcome{Trigger: t, PlanID: planID, Latency: latency})
}

// acquireLock takes the resource lock per the trigger's conflict policy.
func (s *Scheduler) acquireLock(ctx context.Context, req *fireRequest) error {
	t := req.trigger
	deadline := time.Now().Add(s.lockWait)
	for {
		s.mu.Lock()
		holder, held := s.locks[t.ResourceLock]
		if !held {
			s.locks[t.ResourceLock] = &lockEntry{
				triggerID: t.TriggerID,
				priority:  t.Priority,
				released:  make(chan struct{}),
			}
			s.mu.Unlock()
			return nil
		}
		released := holder.released
		cancelHolder := holder.cancel
		s.mu.Unlock()

		switch t.Conflict {
		case models.ConflictReject:
			return fmt.Errorf("%w: %q held by trigger %s", ErrLockHeld, t.ResourceLock, holder.triggerID)
		case models.ConflictPreempt:
			// Cancel the holder's plan and wait for it to reach a
			// terminal state, rollback included, before taking over.
			if cancelHolder != nil {
				cancelHolder()
			}
			select {
			case <-released:
			case <-ctx.Done():
				return ctx.Err()
			}
		default: // queue
			wait := time.Until(deadline)
			if wait <= 0 {
				return fmt.Errorf("%w: %q after %s", ErrLockWaitTimeout, t.ResourceLock, s.lockWait)
			}
			select {
			case <-released:
			case <-time.After(wait):
				return fmt.Errorf("%w: %q after %s", ErrLockWaitTimeout, t.ResourceLock, s.lockWait)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (s *Scheduler) releaseLock(lock string) {
	s.mu.Lock()
	entry, ok := s.locks[lock]
	if ok {
		delete(s.locks, lock)
	}
	s.mu.Unlock()
	if ok {
		close(entry.released)
	}
}
