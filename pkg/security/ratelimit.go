package security

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/llmos-bridge/bridge/pkg/config"
	"github.com/llmos-bridge/bridge/pkg/models"
)

// RateLimitError reports which window was exhausted.
type RateLimitError struct {
	Identity string
	Key      string
	Limit    int
	Window   time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s on %s: %d per %s", e.Identity, e.Key, e.Limit, e.Window)
}

// RejectionDetails renders the denial for the plan record.
func (e *RateLimitError) RejectionDetails() *models.RejectionDetails {
	return &models.RejectionDetails{
		Source:    models.RejectionRateLimiter,
		Verdict:   VerdictReject.String(),
		RiskScore: 0,
		Recommendations: []string{
			fmt.Sprintf("wait for the %s window on %s to clear before resubmitting", e.Window, e.Key),
		},
	}
}

// ActionRateLimiter bounds both plan submission rate (token bucket per
// identity) and per-action windows (sliding count per identity+action).
type ActionRateLimiter struct {
	cfg *config.RateLimitConfig
	now func() time.Time

	mu      sync.Mutex
	submit  map[string]*rate.Limiter
	windows map[string][]time.Time
}

// NewActionRateLimiter creates a limiter from configuration.
func NewActionRateLimiter(cfg *config.RateLimitConfig) *ActionRateLimiter {
	return &ActionRateLimiter{
		cfg:     cfg,
		now:     time.Now,
		submit:  make(map[string]*rate.Limiter),
		windows: make(map[string][]time.Time),
	}
}

// AllowSubmission gates one plan submission by the caller identity.
func (l *ActionRateLimiter) AllowSubmission(identity string) error {
	if !l.cfg.IsEnabled() || l.cfg.SubmitPerSec <= 0 {
		return nil
	}
	l.mu.Lock()
	lim, ok := l.submit[identity]
	if !ok {
		burst := l.cfg.SubmitBurst
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(l.cfg.SubmitPerSec), burst)
		l.submit[identity] = lim
	}
	l.mu.Unlock()

	if !lim.Allow() {
		return &RateLimitError{
			Identity: identity, Key: "submission",
			Limit: l.cfg.SubmitBurst, Window: time.Second,
		}
	}
	return nil
}

// AllowAction records and gates one module.action invocation inside the
// sliding window. The window survives across plans for the identity.
func (l *ActionRateLimiter) AllowAction(identity, module, action string) error {
	if !l.cfg.IsEnabled() || l.cfg.MaxPerWindow <= 0 || l.cfg.Window <= 0 {
		return nil
	}
	key := identity + "|" + module + "." + action
	now := l.now()
	cutoff := now.Add(-l.cfg.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	window := l.windows[key]
	kept := window[:0]
	for _, t := range window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.cfg.MaxPerWindow {
		l.windows[key] = kept
		return &RateLimitError{
			Identity: identity, Key: module + "." + action,
			Limit: l.cfg.MaxPerWindow, Window: l.cfg.Window,
		}
	}
	l.windows[key] = append(kept, now)
	return nil
}
