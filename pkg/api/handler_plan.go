package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/llmos-bridge/bridge/pkg/events"
	"github.com/llmos-bridge/bridge/pkg/models"
	"github.com/llmos-bridge/bridge/pkg/plan"
)

// maxPlanBytes bounds the request body; plans are small documents.
const maxPlanBytes = 1 << 20

type rawPlan = json.RawMessage

// submitPlan admits one plan. `?wait=true` blocks until the plan reaches
// a terminal status; otherwise the queued state returns immediately.
// Admission refusals are a 200 with rejection_details, not an HTTP error:
// the caller is usually a model that needs the structured diagnosis.
func (s *Server) submitPlan(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPlanBytes))
	if err != nil {
		abortError(c, http.StatusBadRequest, "failed to read request body")
		return
	}

	p, err := plan.ParseAndValidate(raw)
	if err != nil {
		s.mapError(c, err)
		return
	}

	sc := s.sessionContext(c)
	state, err := s.deps.Executor.Submit(c.Request.Context(), p, clientIdentity(c), sc)
	if err != nil {
		s.mapError(c, err)
		return
	}

	if wait, _ := strconv.ParseBool(c.Query("wait")); wait && !state.Status.IsTerminal() {
		if done, ok := s.deps.Executor.Wait(p.PlanID); ok {
			select {
			case <-done:
			case <-c.Request.Context().Done():
				c.Status(http.StatusRequestTimeout)
				return
			}
		}
		final, err := s.deps.Plans.Get(c.Request.Context(), p.PlanID)
		if err != nil {
			s.mapError(c, err)
			return
		}
		state = final
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) getPlan(c *gin.Context) {
	state, err := s.deps.Plans.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.mapError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) cancelPlan(c *gin.Context) {
	if err := s.deps.Executor.Cancel(c.Param("id")); err != nil {
		s.mapError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// submitPlanGroup fans out a batch of plans and returns the aggregate.
// max_concurrent caps the in-flight plans within this group.
func (s *Server) submitPlanGroup(c *gin.Context) {
	var body struct {
		Plans         []rawPlan `json:"plans"`
		MaxConcurrent int       `json:"max_concurrent"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		abortError(c, http.StatusBadRequest, "invalid plan group body")
		return
	}
	if len(body.Plans) == 0 {
		abortError(c, http.StatusBadRequest, "plan group is empty")
		return
	}

	parsed := make([]*models.Plan, 0, len(body.Plans))
	for _, raw := range body.Plans {
		p, err := plan.ParseAndValidate(raw)
		if err != nil {
			s.mapError(c, err)
			return
		}
		parsed = append(parsed, p)
	}

	result := s.deps.Groups.Execute(c.Request.Context(), parsed, body.MaxConcurrent, clientIdentity(c), s.sessionContext(c))
	c.JSON(http.StatusOK, result)
}

// sessionContext derives the event session context for a submission. A
// missing session id gets a fresh one so causality is always traceable.
func (s *Server) sessionContext(c *gin.Context) events.SessionContext {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		sessionID = c.GetHeader("X-Session-ID")
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return events.SessionContext{
		SessionID:     sessionID,
		CorrelationID: c.GetHeader("X-Correlation-ID"),
	}
}
