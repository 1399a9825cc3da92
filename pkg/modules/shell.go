package modules

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"time"
)

// ShellModule runs commands through the system shell. The security
// pipeline has already screened the command text; the module enforces
// only the mechanical limits (timeout, output size).
type ShellModule struct {
	// Shell is the interpreter, "/bin/sh" by default.
	Shell string
	// DefaultTimeout bounds commands that carry no timeout_seconds.
	DefaultTimeout time.Duration
}

// NewShellModule creates the shell module with defaults.
func NewShellModule() *ShellModule {
	return &ShellModule{Shell: "/bin/sh", DefaultTimeout: 60 * time.Second}
}

// ID implements Module.
func (m *ShellModule) ID() string { return "shell" }

const maxCapturedOutput = 1 << 20

type runParams struct {
	Cmd            string            `json:"cmd"`
	Cwd            string            `json:"cwd"`
	Env            map[string]string `json:"env"`
	TimeoutSeconds float64           `json:"timeout_seconds"`
}

// Actions implements Module.
func (m *ShellModule) Actions() []ActionSpec {
	return []ActionSpec{
		{
			Name:        "run",
			Description: "Run a shell command and capture stdout, stderr and the exit code.",
			ParamsSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"cmd":             {"type": "string", "minLength": 1},
					"cwd":             {"type": "string"},
					"env":             {"type": "object", "additionalProperties": {"type": "string"}},
					"timeout_seconds": {"type": "number", "exclusiveMinimum": 0}
				},
				"required": ["cmd"],
				"additionalProperties": false
			}`),
			Handler: m.run,
		},
	}
}

func (m *ShellModule) run(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var p runParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}

	timeout := m.DefaultTimeout
	if p.TimeoutSeconds > 0 {
		timeout = time.Duration(p.TimeoutSeconds * float64(time.Second))
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.Shell, "-c", p.Cmd)
	cmd.Dir = p.Cwd
	if len(p.Env) > 0 {
		env := cmd.Environ()
		for k, v := range p.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdout, n: maxCapturedOutput}
	cmd.Stderr = &limitedWriter{w: &stderr, n: maxCapturedOutput}

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			exitCode = exitErr.ExitCode()
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			return nil, err
		}
	}

	return json.Marshal(map[string]any{
		"cmd":         p.Cmd,
		"exit_code":   exitCode,
		"stdout":      stdout.String(),
		"stderr":      stderr.String(),
		"duration_ms": elapsed.Milliseconds(),
	})
}

// limitedWriter keeps the first n bytes and silently discards the rest.
type limitedWriter struct {
	w *bytes.Buffer
	n int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if remaining := l.n - l.w.Len(); remaining > 0 {
		if len(p) > remaining {
			l.w.Write(p[:remaining])
		} else {
			l.w.Write(p)
		}
	}
	return len(p), nil
}
