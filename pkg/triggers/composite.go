package triggers

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/llmos-bridge/bridge/pkg/models"
)

// compositeWatcher combines child watchers under one operator.
//
// Semantics per operator:
//
//	AND    every child has fired since the last composite fire; with
//	       timeout_seconds set, a child fire older than the timeout no
//	       longer counts
//	OR     any child fire
//	NOT    the (single) child stays silent for silence_seconds
//	SEQ    children fire in declared order, optionally within
//	       timeout_seconds of the first; out-of-order fires reset
//	WINDOW the (single) child fires fire_count times inside a sliding
//	       window_seconds window
type compositeWatcher struct {
	operator models.CompositeOperator
	children []Watcher
	timeout  time.Duration
	silence  time.Duration
	count    int
	window   time.Duration
}

func newCompositeWatcher(cond *models.TriggerCondition) (Watcher, error) {
	if len(cond.Conditions) == 0 {
		return nil, fmt.Errorf("composite trigger requires conditions")
	}
	switch cond.Operator {
	case models.CompositeAnd, models.CompositeOr, models.CompositeSeq:
	case models.CompositeNot:
		if len(cond.Conditions) != 1 {
			return nil, fmt.Errorf("NOT takes exactly one condition")
		}
		if cond.SilenceSeconds <= 0 {
			return nil, fmt.Errorf("NOT requires silence_seconds > 0")
		}
	case models.CompositeWindow:
		if len(cond.Conditions) != 1 {
			return nil, fmt.Errorf("WINDOW takes exactly one condition")
		}
		if cond.FireCount < 2 || cond.WindowSeconds <= 0 {
			return nil, fmt.Errorf("WINDOW requires fire_count >= 2 and window_seconds > 0")
		}
	default:
		return nil, fmt.Errorf("unknown composite operator %q", cond.Operator)
	}

	children := make([]Watcher, 0, len(cond.Conditions))
	for i, child := range cond.Conditions {
		w, err := NewWatcher(child)
		if err != nil {
			return nil, fmt.Errorf("composite condition %d: %w", i, err)
		}
		children = append(children, w)
	}
	return &compositeWatcher{
		operator: cond.Operator,
		children: children,
		timeout:  time.Duration(cond.TimeoutSeconds * float64(time.Second)),
		silence:  time.Duration(cond.SilenceSeconds * float64(time.Second)),
		count:    cond.FireCount,
		window:   time.Duration(cond.WindowSeconds * float64(time.Second)),
	}, nil
}

type childFire struct {
	index   int
	payload map[string]any
}

func (w *compositeWatcher) Watch(ctx context.Context, fire FireFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fires := make(chan childFire, 16)
	g, childCtx := errgroup.WithContext(ctx)
	for i, child := range w.children {
		g.Go(func() error {
			return child.Watch(childCtx, func(payload map[string]any) {
				select {
				case fires <- childFire{index: i, payload: payload}:
				case <-childCtx.Done():
				}
			})
		})
	}

	aggErr := w.aggregate(ctx, fires, fire)
	cancel()
	_ = g.Wait()
	if aggErr != nil && ctx.Err() == nil {
		return aggErr
	}
	return ctx.Err()
}

func (w *compositeWatcher) aggregate(ctx context.Context, fires <-chan childFire, fire FireFunc) error {
	switch w.operator {
	case models.CompositeOr:
		for {
			select {
			case <-ctx.Done():
				return nil
			case cf := <-fires:
				fire(map[string]any{"operator": "OR", "condition_index": cf.index, "child": cf.payload})
			}
		}

	case models.CompositeAnd:
		seen := make(map[int]time.Time)
		for {
			select {
			case <-ctx.Done():
				return nil
			case cf := <-fires:
				now := time.Now()
				seen[cf.index] = now
				if w.timeout > 0 {
					for i, at := range seen {
						if now.Sub(at) > w.timeout {
							delete(seen, i)
						}
					}
				}
				if len(seen) == len(w.children) {
					fire(map[string]any{"operator": "AND"})
					seen = make(map[int]time.Time)
				}
			}
		}

	case models.CompositeNot:
		timer := time.NewTimer(w.silence)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-fires:
				// Child activity re-arms the silence window.
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.silence)
			case <-timer.C:
				fire(map[string]any{"operator": "NOT", "silent_for_seconds": w.silence.Seconds()})
				timer.Reset(w.silence)
			}
		}

	case models.CompositeSeq:
		next := 0
		var first time.Time
		for {
			select {
			case <-ctx.Done():
				return nil
			case cf := <-fires:
				now := time.Now()
				if w.timeout > 0 && next > 0 && now.Sub(first) > w.timeout {
					next = 0
				}
				switch cf.index {
				case next:
					if next == 0 {
						first = now
					}
					next++
					if next == len(w.children) {
						fire(map[string]any{"operator": "SEQ"})
						next = 0
					}
				case 0:
					// An out-of-order fire of the first child restarts
					// the sequence; anything else resets it.
					first = now
					next = 1
				default:
					next = 0
				}
			}
		}

	case models.CompositeWindow:
		var times []time.Time
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-fires:
				now := time.Now()
				cutoff := now.Add(-w.window)
				kept := times[:0]
				for _, t := range times {
					if t.After(cutoff) {
						kept = append(kept, t)
					}
				}
				times = append(kept, now)
				if len(times) >= w.count {
					fire(map[string]any{"operator": "WINDOW", "fires_in_window": len(times)})
					times = times[:0]
				}
			}
		}
	}
	return fmt.Errorf("unreachable operator %q", w.operator)
}
