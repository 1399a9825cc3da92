package triggers

import (
	"sync"
	"time"

	"github.com/llmos-bridge/bridge/pkg/models"
)

// throttle gates fires per trigger: a minimum interval between fires
// plus a sliding max-fires-per-hour window. Suppressed fires are counted
// but never queued.
type throttle struct {
	spec *models.ThrottleSpec
	now  func() time.Time

	mu       sync.Mutex
	lastFire time.Time
	fires    []time.Time
}

func newThrottle(spec *models.ThrottleSpec) *throttle {
	return &throttle{spec: spec, now: time.Now}
}

// allow reports whether a fire may proceed, recording it if so.
func (t *throttle) allow() bool {
	if t.spec == nil {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if t.spec.MinIntervalSeconds > 0 && !t.lastFire.IsZero() {
		minGap := time.Duration(t.spec.MinIntervalSeconds * float64(time.Second))
		if now.Sub(t.lastFire) < minGap {
			return false
		}
	}
	if t.spec.MaxFiresPerHour > 0 {
		cutoff := now.Add(-time.Hour)
		kept := t.fires[:0]
		for _, ts := range t.fires {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		t.fires = kept
		if len(t.fires) >= t.spec.MaxFiresPerHour {
			return false
		}
		t.fires = append(t.fires, now)
	}
	t.lastFire = now
	return true
}
