package triggers

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/llmos-bridge/bridge/pkg/models"
)

func newTemporalWatcher(cond *models.TriggerCondition) (Watcher, error) {
	switch cond.Mode {
	case models.TemporalInterval:
		if cond.IntervalSeconds <= 0 {
			return nil, fmt.Errorf("temporal interval trigger requires interval_seconds > 0")
		}
		return &intervalWatcher{
			interval: time.Duration(cond.IntervalSeconds * float64(time.Second)),
		}, nil
	case models.TemporalCron:
		schedule, err := cron.ParseStandard(cond.CronExpression)
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", cond.CronExpression, err)
		}
		return &cronWatcher{schedule: schedule, expression: cond.CronExpression}, nil
	case models.TemporalOnce:
		if cond.At == nil {
			return nil, fmt.Errorf("temporal once trigger requires at")
		}
		return &onceWatcher{at: *cond.At}, nil
	default:
		return nil, fmt.Errorf("unknown temporal mode %q", cond.Mode)
	}
}

// intervalWatcher fires every interval, anchored to the start time so
// slow fire handling does not accumulate drift.
type intervalWatcher struct {
	interval time.Duration
}

func (w *intervalWatcher) Watch(ctx context.Context, fire FireFunc) error {
	start := time.Now()
	n := 1
	for {
		next := start.Add(time.Duration(n) * w.interval)
		wait := time.Until(next)
		if wait < 0 {
			// Missed slots collapse into one fire.
			n += int(-wait/w.interval) + 1
			next = start.Add(time.Duration(n-1) * w.interval)
			wait = time.Until(next)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
			fire(map[string]any{"scheduled_at": next.UTC().Format(time.RFC3339Nano)})
			n++
		}
	}
}

type cronWatcher struct {
	schedule   cron.Schedule
	expression string
}

func (w *cronWatcher) Watch(ctx context.Context, fire FireFunc) error {
	for {
		next := w.schedule.Next(time.Now())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(next)):
			fire(map[string]any{
				"cron":         w.expression,
				"scheduled_at": next.UTC().Format(time.RFC3339Nano),
			})
		}
	}
}

type onceWatcher struct {
	at time.Time
}

func (w *onceWatcher) Watch(ctx context.Context, fire FireFunc) error {
	wait := time.Until(w.at)
	if wait < 0 {
		wait = 0
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		fire(map[string]any{"at": w.at.UTC().Format(time.RFC3339Nano)})
		return nil
	}
}
