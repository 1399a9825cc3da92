// Package triggers implements the trigger daemon: persistent condition
// watchers that submit plans, with throttling, priorities, resource-lock
// conflict resolution, and chain-depth guarding.
package triggers

import (
	"context"
	"fmt"

	"github.com/llmos-bridge/bridge/pkg/models"
)

// FireFunc receives one condition fire with watcher-specific context.
type FireFunc func(payload map[string]any)

// Watcher observes one condition until its context is cancelled, calling
// fire each time the condition holds. Watch blocks; the daemon runs each
// watcher in its own goroutine.
type Watcher interface {
	Watch(ctx context.Context, fire FireFunc) error
}

// NewWatcher builds the watcher for a condition. Condition validation
// happens here so registration rejects unsatisfiable definitions.
func NewWatcher(cond *models.TriggerCondition) (Watcher, error) {
	if cond == nil {
		return nil, fmt.Errorf("trigger condition is required")
	}
	switch cond.Type {
	case models.ConditionTemporal:
		return newTemporalWatcher(cond)
	case models.ConditionFilesystem:
		return newFilesystemWatcher(cond)
	case models.ConditionProcess:
		return newProcessWatcher(cond)
	case models.ConditionResource:
		return newResourceWatcher(cond)
	case models.ConditionComposite:
		return newCompositeWatcher(cond)
	default:
		return nil, fmt.Errorf("unknown condition type %q", cond.Type)
	}
}
