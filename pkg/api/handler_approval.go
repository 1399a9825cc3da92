package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/llmos-bridge/bridge/pkg/executor"
)

type approvalRequest struct {
	Decision string          `json:"decision"`
	Params   json.RawMessage `json:"params,omitempty"`
	Choice   string          `json:"choice,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

// resolveApproval delivers a human decision to a waiting approval gate.
func (s *Server) resolveApproval(c *gin.Context) {
	var req approvalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid approval body")
		return
	}
	if req.Decision == "" {
		abortError(c, http.StatusBadRequest, "decision is required")
		return
	}

	err := s.deps.Approvals.Resolve(c.Param("id"), c.Param("action_id"), executor.Decision{
		Type:   executor.DecisionType(req.Decision),
		Params: req.Params,
		Choice: req.Choice,
		Reason: req.Reason,
	})
	switch {
	case err == nil:
	case errors.Is(err, executor.ErrNoPendingApproval):
		abortError(c, http.StatusNotFound, err.Error())
		return
	default:
		// Malformed decisions (bad type, invalid params, unknown choice).
		abortError(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"plan_id":   c.Param("id"),
		"action_id": c.Param("action_id"),
		"decision":  req.Decision,
	})
}

// listApprovals returns every gate currently blocking an action.
func (s *Server) listApprovals(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"approvals": s.deps.Approvals.Pending()})
}
