package modules

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FilesystemModule exposes basic file operations. Path confinement is
// the permission guard's job; this module only does the I/O.
type FilesystemModule struct{}

// NewFilesystemModule creates the filesystem module.
func NewFilesystemModule() *FilesystemModule { return &FilesystemModule{} }

// ID implements Module.
func (m *FilesystemModule) ID() string { return "filesystem" }

const maxReadBytes = 4 * 1024 * 1024

type pathParams struct {
	Path string `json:"path"`
}

type writeFileParams struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Append  bool   `json:"append"`
	Mode    string `json:"mode"`
}

type dirEntry struct {
	Name    string    `json:"name"`
	IsDir   bool      `json:"is_dir"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Actions implements Module.
func (m *FilesystemModule) Actions() []ActionSpec {
	pathSchema := json.RawMessage(`{
		"type": "object",
		"properties": {"path": {"type": "string", "minLength": 1}},
		"required": ["path"],
		"additionalProperties": false
	}`)
	return []ActionSpec{
		{
			Name:         "read_file",
			Description:  "Read a file and return its content as a string.",
			ParamsSchema: pathSchema,
			Handler:      m.readFile,
		},
		{
			Name:        "write_file",
			Description: "Write or append string content to a file, creating parent directories.",
			ParamsSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"path":    {"type": "string", "minLength": 1},
					"content": {"type": "string"},
					"append":  {"type": "boolean"},
					"mode":    {"type": "string", "pattern": "^0[0-7]{3}$"}
				},
				"required": ["path", "content"],
				"additionalProperties": false
			}`),
			Handler: m.writeFile,
		},
		{
			Name:         "list_dir",
			Description:  "List a directory's entries with size and modification time.",
			ParamsSchema: pathSchema,
			Handler:      m.listDir,
		},
		{
			Name:         "delete_file",
			Description:  "Delete a single file. Directories are refused.",
			ParamsSchema: pathSchema,
			Handler:      m.deleteFile,
		},
	}
}

func (m *FilesystemModule) readFile(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var p pathParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(p.Path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", p.Path)
	}
	if info.Size() > maxReadBytes {
		return nil, fmt.Errorf("%s is %d bytes, exceeds the %d byte read limit", p.Path, info.Size(), maxReadBytes)
	}
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{
		"path":    p.Path,
		"content": string(data),
		"size":    len(data),
	})
}

func (m *FilesystemModule) writeFile(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var p writeFileParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := os.FileMode(0o644)
	if p.Mode != "" {
		parsed, err := parseOctalMode(p.Mode)
		if err != nil {
			return nil, err
		}
		mode = parsed
	}
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return nil, err
	}

	flags := os.O_WRONLY | os.O_CREATE
	if p.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(p.Path, flags, mode)
	if err != nil {
		return nil, err
	}
	n, werr := f.WriteString(p.Content)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return nil, werr
	}
	return json.Marshal(map[string]any{
		"path":    p.Path,
		"written": n,
	})
}

func (m *FilesystemModule) listDir(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var p pathParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(p.Path)
	if err != nil {
		return nil, err
	}
	out := make([]dirEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, dirEntry{
			Name:    e.Name(),
			IsDir:   e.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime().UTC(),
		})
	}
	return json.Marshal(map[string]any{
		"path":    p.Path,
		"entries": out,
	})
}

func (m *FilesystemModule) deleteFile(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var p pathParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(p.Path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("refusing to delete directory %s", p.Path)
	}
	if err := os.Remove(p.Path); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"path": p.Path, "deleted": true})
}

func parseOctalMode(s string) (os.FileMode, error) {
	var mode uint32
	if _, err := fmt.Sscanf(s, "%o", &mode); err != nil {
		return 0, fmt.Errorf("invalid file mode %q: %w", s, err)
	}
	return os.FileMode(mode), nil
}
