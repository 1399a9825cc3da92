package security

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/llmos-bridge/bridge/pkg/config"
	"github.com/llmos-bridge/bridge/pkg/models"
)

// PermissionProfile grants module.action capabilities and confines
// filesystem access to sandbox prefixes.
type PermissionProfile struct {
	Name string
	// AllowPatterns are "module.action" entries; "*" wildcards either
	// segment. Empty means nothing is allowed.
	AllowPatterns []string
	// SandboxPaths are absolute prefixes filesystem and shell actions must
	// stay inside. Empty means unconfined.
	SandboxPaths []string
}

// Built-in profiles, least to most capable.
var profiles = map[string]PermissionProfile{
	"readonly": {
		Name: "readonly",
		AllowPatterns: []string{
			"filesystem.read_file", "filesystem.list_dir", "clock.*",
		},
		SandboxPaths: []string{},
	},
	"local_worker": {
		Name: "local_worker",
		AllowPatterns: []string{
			"filesystem.*", "clock.*", "shell.run",
		},
		SandboxPaths: []string{},
	},
	"power_user": {
		Name:          "power_user",
		AllowPatterns: []string{"*.*"},
		SandboxPaths:  []string{},
	},
	"unrestricted": {
		Name:          "unrestricted",
		AllowPatterns: []string{"*.*"},
	},
}

// PermissionError is a structured denial suitable for rejection_details.
type PermissionError struct {
	ActionID string
	Module   string
	Action   string
	Reason   string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("action %s (%s.%s) denied: %s", e.ActionID, e.Module, e.Action, e.Reason)
}

// Guard enforces the active permission profile. CheckPlan runs before
// admission over declared actions; CheckResolvedPaths runs again after
// template resolution, since resolved params may name different paths.
type Guard struct {
	profile PermissionProfile
}

// NewGuard builds a guard from configuration. The profile name must have
// passed config validation already; unknown names fall back to readonly.
func NewGuard(cfg *config.SecurityConfig) *Guard {
	p, ok := profiles[cfg.Profile]
	if !ok {
		p = profiles["readonly"]
	}
	if len(cfg.SandboxPaths) > 0 {
		merged := append([]string{}, p.SandboxPaths...)
		merged = append(merged, cfg.SandboxPaths...)
		p.SandboxPaths = merged
	}
	return &Guard{profile: p}
}

// Profile returns the active profile name.
func (g *Guard) Profile() string { return g.profile.Name }

// CheckPlan verifies every action (and rollback body) against the
// profile's allow patterns and sandbox, returning the first denial.
func (g *Guard) CheckPlan(plan *models.Plan) *PermissionError {
	for _, a := range plan.Actions {
		if err := g.CheckAction(a.ID, a.Module, a.Action, a.Params); err != nil {
			return err
		}
		if a.Rollback != nil {
			if err := g.CheckAction(a.ID, a.Rollback.Module, a.Rollback.Action, a.Rollback.Params); err != nil {
				return err
			}
		}
	}
	return nil
}

// CheckAction verifies one module.action invocation with the given params.
func (g *Guard) CheckAction(actionID, module, action string, params json.RawMessage) *PermissionError {
	if !g.allowed(module, action) {
		return &PermissionError{
			ActionID: actionID, Module: module, Action: action,
			Reason: fmt.Sprintf("not permitted by profile %s", g.profile.Name),
		}
	}
	if err := g.checkSandbox(actionID, module, action, params); err != nil {
		return err
	}
	return nil
}

// CheckResolvedPaths re-verifies sandbox confinement after template
// resolution. Capability patterns cannot change through resolution, so
// only paths are rechecked.
func (g *Guard) CheckResolvedPaths(actionID, module, action string, params json.RawMessage) *PermissionError {
	return g.checkSandbox(actionID, module, action, params)
}

func (g *Guard) allowed(module, action string) bool {
	for _, pattern := range g.profile.AllowPatterns {
		pm, pa, ok := strings.Cut(pattern, ".")
		if !ok {
			continue
		}
		if (pm == "*" || pm == module) && (pa == "*" || pa == action) {
			return true
		}
	}
	return false
}

func (g *Guard) checkSandbox(actionID, module, action string, params json.RawMessage) *PermissionError {
	if len(g.profile.SandboxPaths) == 0 || len(params) == 0 {
		return nil
	}
	if module != "filesystem" && module != "shell" {
		return nil
	}

	var fields map[string]any
	if err := json.Unmarshal(params, &fields); err != nil {
		return nil
	}
	for _, key := range []string{"path", "cwd", "dest", "source"} {
		raw, ok := fields[key].(string)
		if !ok || raw == "" {
			continue
		}
		if !g.insideSandbox(raw) {
			return &PermissionError{
				ActionID: actionID, Module: module, Action: action,
				Reason: fmt.Sprintf("path %q escapes the sandbox", raw),
			}
		}
	}
	return nil
}

// insideSandbox resolves symlinks so a link out of the sandbox cannot
// smuggle access. A path that does not exist yet is checked through its
// nearest existing ancestor.
func (g *Guard) insideSandbox(path string) bool {
	resolved := resolvePath(path)
	for _, prefix := range g.profile.SandboxPaths {
		abs := resolvePath(prefix)
		if resolved == abs || strings.HasPrefix(resolved, abs+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func resolvePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real
	}
	// Walk up to the nearest existing ancestor and resolve from there.
	dir, rest := abs, ""
	for dir != string(filepath.Separator) && dir != "." {
		if _, err := os.Lstat(dir); err == nil {
			break
		}
		rest = filepath.Join(filepath.Base(dir), rest)
		dir = filepath.Dir(dir)
	}
	if real, err := filepath.EvalSymlinks(dir); err == nil {
		return filepath.Join(real, rest)
	}
	return abs
}
