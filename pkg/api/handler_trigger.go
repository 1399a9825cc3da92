package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/llmos-bridge/bridge/pkg/models"
)

// registerTrigger persists a new trigger definition. Disabled daemons
// refuse with 503; chain-depth violations with 422.
func (s *Server) registerTrigger(c *gin.Context) {
	var def models.TriggerDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		abortError(c, http.StatusBadRequest, "invalid trigger definition")
		return
	}
	if err := s.deps.Daemon.Register(c.Request.Context(), &def); err != nil {
		s.mapTriggerError(c, err)
		return
	}
	c.JSON(http.StatusCreated, def)
}

func (s *Server) listTriggers(c *gin.Context) {
	all, err := s.deps.Daemon.List(c.Request.Context())
	if err != nil {
		s.mapError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"triggers": all})
}

func (s *Server) getTrigger(c *gin.Context) {
	def, err := s.deps.Daemon.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.mapError(c, err)
		return
	}
	c.JSON(http.StatusOK, def)
}

func (s *Server) deleteTrigger(c *gin.Context) {
	if err := s.deps.Daemon.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.mapError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) activateTrigger(c *gin.Context) {
	if err := s.deps.Daemon.Activate(c.Request.Context(), c.Param("id")); err != nil {
		s.mapError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trigger_id": c.Param("id"), "enabled": true})
}

func (s *Server) deactivateTrigger(c *gin.Context) {
	if err := s.deps.Daemon.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		s.mapError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trigger_id": c.Param("id"), "enabled": false})
}
