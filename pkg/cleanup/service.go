// Package cleanup enforces the retention policy on stored plan records
// and the event audit trail.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/llmos-bridge/bridge/pkg/config"
	"github.com/llmos-bridge/bridge/pkg/services"
)

// Service periodically purges terminal plan records older than the
// retention window, along with audit events of the same age. All
// operations are idempotent.
type Service struct {
	config       *config.RetentionConfig
	planService  *services.PlanService
	eventService *services.EventService

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a stopped retention service.
func NewService(
	cfg *config.RetentionConfig,
	planService *services.PlanService,
	eventService *services.EventService,
) *Service {
	return &Service{
		config:       cfg,
		planService:  planService,
		eventService: eventService,
	}
}

// Start launches the background purge loop. A disabled config is a no-op.
func (s *Service) Start(ctx context.Context) {
	if !s.config.Enabled || s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Retention service started",
		"max_age", s.config.MaxAge,
		"interval", s.config.Interval)
}

// Stop signals the purge loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	slog.Info("Retention service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.purge(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.purge(ctx)
		}
	}
}

// purge removes everything older than the retention window. Running
// plans never age out; only terminal records do.
func (s *Service) purge(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.config.MaxAge)

	plans, err := s.planService.PurgeTerminalBefore(ctx, cutoff)
	if err != nil {
		slog.Error("Retention: plan purge failed", "error", err)
	} else if plans > 0 {
		slog.Info("Retention: purged terminal plans", "count", plans, "cutoff", cutoff)
	}

	events, err := s.eventService.PurgeBefore(ctx, cutoff)
	if err != nil {
		slog.Error("Retention: event purge failed", "error", err)
	} else if events > 0 {
		slog.Info("Retention: purged audit events", "count", events, "cutoff", cutoff)
	}
}
