// Package api exposes the daemon's HTTP and WebSocket surface.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/llmos-bridge/bridge/pkg/config"
	"github.com/llmos-bridge/bridge/pkg/database"
	"github.com/llmos-bridge/bridge/pkg/events"
	"github.com/llmos-bridge/bridge/pkg/executor"
	"github.com/llmos-bridge/bridge/pkg/metrics"
	"github.com/llmos-bridge/bridge/pkg/modules"
	"github.com/llmos-bridge/bridge/pkg/services"
	"github.com/llmos-bridge/bridge/pkg/session"
	"github.com/llmos-bridge/bridge/pkg/triggers"
)

// Deps carries every collaborator the API surface needs.
type Deps struct {
	Config    *config.Config
	DB        *database.Client
	Executor  *executor.Executor
	Groups    *executor.GroupExecutor
	Approvals *executor.ApprovalRegistry
	Plans     *services.PlanService
	Registry  *modules.Registry
	Daemon    *triggers.Daemon
	Bus       events.Bus
	Sessions  *session.Manager
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Server is the HTTP/WebSocket front end over the executor, the trigger
// daemon, and the stores.
type Server struct {
	deps Deps
	hub  *wsHub
	http *http.Server
}

// NewServer wires the route table. Run starts serving.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{
		deps: deps,
		hub:  newWSHub(deps.Bus, deps.Metrics, deps.Logger),
	}
	return s
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.deps.Logger), securityHeaders())

	// Open endpoints: liveness and scrape targets need no token.
	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))

	authed := r.Group("/", bearerAuth(s.deps.Config.Server))
	{
		authed.POST("/plans", s.submitPlan)
		authed.GET("/plans/:id", s.getPlan)
		authed.DELETE("/plans/:id", s.cancelPlan)
		authed.POST("/plans/:id/actions/:action_id/approve", s.resolveApproval)
		authed.GET("/approvals", s.listApprovals)
		authed.POST("/plan-groups", s.submitPlanGroup)

		authed.GET("/modules", s.listModules)
		authed.GET("/modules/:id", s.getModule)
		authed.GET("/modules/:id/actions/:action/schema", s.getActionSchema)
		authed.GET("/context", s.getContext)

		authed.GET("/triggers", s.listTriggers)
		authed.POST("/triggers", s.registerTrigger)
		authed.GET("/triggers/:id", s.getTrigger)
		authed.DELETE("/triggers/:id", s.deleteTrigger)
		authed.POST("/triggers/:id/activate", s.activateTrigger)
		authed.POST("/triggers/:id/deactivate", s.deactivateTrigger)

		authed.GET("/ws", s.handleWS)
	}
	return r
}

// Run serves until ctx is cancelled, then drains with a grace period.
func (s *Server) Run(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.deps.Config.Server.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.deps.Logger.Info("API server listening", "port", s.deps.Config.Server.Port)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.hub.closeAll()
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(ctx, s.deps.DB.DB())
	status := http.StatusOK
	overall := "healthy"
	if err != nil {
		status = http.StatusServiceUnavailable
		overall = "unhealthy"
	}

	c.JSON(status, gin.H{
		"status":   overall,
		"database": dbHealth,
		"components": gin.H{
			"triggers":   s.deps.Config.Triggers.IsEnabled(),
			"ws_clients": s.hub.clientCount(),
		},
	})
}
