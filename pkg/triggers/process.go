package triggers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/llmos-bridge/bridge/pkg/models"
)

const defaultProcessPoll = 5 * time.Second

// processWatcher polls the process table and fires on started/stopped
// transitions of processes matching a name.
type processWatcher struct {
	name  string
	event string
	poll  time.Duration

	// listProcesses is replaceable for tests.
	listProcesses func(ctx context.Context) (map[int32]string, error)
}

func newProcessWatcher(cond *models.TriggerCondition) (Watcher, error) {
	if cond.ProcessName == "" {
		return nil, fmt.Errorf("process trigger requires process_name")
	}
	event := cond.ProcessEvent
	if event == "" {
		event = "started"
	}
	if event != "started" && event != "stopped" {
		return nil, fmt.Errorf("unknown process event %q", event)
	}
	poll := defaultProcessPoll
	if cond.PollIntervalSeconds > 0 {
		poll = time.Duration(cond.PollIntervalSeconds * float64(time.Second))
	}
	return &processWatcher{
		name:          cond.ProcessName,
		event:         event,
		poll:          poll,
		listProcesses: listSystemProcesses,
	}, nil
}

func listSystemProcesses(ctx context.Context) (map[int32]string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[int32]string, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		out[p.Pid] = name
	}
	return out, nil
}

func (w *processWatcher) Watch(ctx context.Context, fire FireFunc) error {
	previous, err := w.matching(ctx)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			current, err := w.matching(ctx)
			if err != nil {
				continue
			}
			switch w.event {
			case "started":
				for pid := range current {
					if !previous[pid] {
						fire(map[string]any{"process_name": w.name, "pid": pid, "event": "started"})
					}
				}
			case "stopped":
				for pid := range previous {
					if !current[pid] {
						fire(map[string]any{"process_name": w.name, "pid": pid, "event": "stopped"})
					}
				}
			}
			previous = current
		}
	}
}

func (w *processWatcher) matching(ctx context.Context) (map[int32]bool, error) {
	all, err := w.listProcesses(ctx)
	if err != nil {
		return nil, err
	}
	out := map[int32]bool{}
	for pid, name := range all {
		if strings.EqualFold(name, w.name) {
			out[pid] = true
		}
	}
	return out, nil
}
