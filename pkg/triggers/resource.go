package triggers

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/llmos-bridge/bridge/pkg/models"
)

const resourcePoll = 5 * time.Second

// resourceWatcher fires when a system metric stays at or above its
// threshold for the configured duration, then re-arms once the metric
// drops below the threshold.
type resourceWatcher struct {
	metric    string
	threshold float64
	duration  time.Duration
	poll      time.Duration

	// sample is replaceable for tests.
	sample func(ctx context.Context) (float64, error)
}

func newResourceWatcher(cond *models.TriggerCondition) (Watcher, error) {
	var sample func(ctx context.Context) (float64, error)
	switch cond.Metric {
	case "cpu_percent":
		sample = sampleCPU
	case "memory_percent":
		sample = sampleMemory
	case "disk_percent":
		sample = sampleDisk
	default:
		return nil, fmt.Errorf("unknown resource metric %q", cond.Metric)
	}
	if cond.Threshold <= 0 {
		return nil, fmt.Errorf("resource trigger requires threshold > 0")
	}
	return &resourceWatcher{
		metric:    cond.Metric,
		threshold: cond.Threshold,
		duration:  time.Duration(cond.DurationSeconds * float64(time.Second)),
		poll:      resourcePoll,
		sample:    sample,
	}, nil
}

func sampleCPU(ctx context.Context) (float64, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, fmt.Errorf("no cpu samples")
	}
	return percents[0], nil
}

func sampleMemory(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

func sampleDisk(ctx context.Context) (float64, error) {
	usage, err := disk.UsageWithContext(ctx, "/")
	if err != nil {
		return 0, err
	}
	return usage.UsedPercent, nil
}

func (w *resourceWatcher) Watch(ctx context.Context, fire FireFunc) error {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	var breachStart *time.Time
	fired := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			value, err := w.sample(ctx)
			if err != nil {
				continue
			}
			if value < w.threshold {
				breachStart = nil
				fired = false
				continue
			}
			now := time.Now()
			if breachStart == nil {
				breachStart = &now
			}
			if fired || now.Sub(*breachStart) < w.duration {
				continue
			}
			fired = true
			fire(map[string]any{
				"metric":    w.metric,
				"value":     value,
				"threshold": w.threshold,
			})
		}
	}
}
