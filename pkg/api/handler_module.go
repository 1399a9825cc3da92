package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// listModules returns the capability manifest of every registered module.
func (s *Server) listModules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"modules": s.deps.Registry.Manifest()})
}

func (s *Server) getModule(c *gin.Context) {
	id := c.Param("id")
	for _, m := range s.deps.Registry.Manifest() {
		if m.ModuleID == id {
			c.JSON(http.StatusOK, m)
			return
		}
	}
	abortError(c, http.StatusNotFound, "resource not found")
}

func (s *Server) getActionSchema(c *gin.Context) {
	id, action := c.Param("id"), c.Param("action")
	for _, m := range s.deps.Registry.Manifest() {
		if m.ModuleID != id {
			continue
		}
		for _, a := range m.Actions {
			if a.Name == action {
				c.JSON(http.StatusOK, gin.H{
					"module":        id,
					"action":        a.Name,
					"params_schema": a.ParamsSchema,
				})
				return
			}
		}
	}
	abortError(c, http.StatusNotFound, "resource not found")
}

// getContext renders the model-facing capability context: which modules
// and actions exist, the active permission profile, and the session's
// memory keys when a session id is supplied.
func (s *Server) getContext(c *gin.Context) {
	var b strings.Builder
	b.WriteString("You control this machine by submitting plans to the bridge daemon.\n")
	fmt.Fprintf(&b, "Active permission profile: %s\n", s.deps.Config.Security.Profile)
	b.WriteString("Available modules and actions:\n")
	for _, m := range s.deps.Registry.Manifest() {
		fmt.Fprintf(&b, "- %s\n", m.ModuleID)
		for _, a := range m.Actions {
			if a.Description != "" {
				fmt.Fprintf(&b, "  - %s: %s\n", a.Name, a.Description)
			} else {
				fmt.Fprintf(&b, "  - %s\n", a.Name)
			}
		}
	}

	resp := gin.H{
		"context": b.String(),
		"profile": s.deps.Config.Security.Profile,
		"modules": s.deps.Registry.Manifest(),
	}
	if sessionID := c.Query("session_id"); sessionID != "" {
		resp["memory_keys"] = s.deps.Sessions.Memory(sessionID).Keys()
	}
	c.JSON(http.StatusOK, resp)
}
