package triggers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/llmos-bridge/bridge/pkg/models"
)

// filesystemWatcher fires on created/modified/deleted events under a
// path, optionally recursing into subdirectories (fsnotify itself is not
// recursive, so new directories are added as they appear).
type filesystemWatcher struct {
	path      string
	recursive bool
	events    map[string]bool
}

func newFilesystemWatcher(cond *models.TriggerCondition) (Watcher, error) {
	if cond.Path == "" {
		return nil, fmt.Errorf("filesystem trigger requires path")
	}
	events := map[string]bool{}
	for _, e := range cond.Events {
		switch e {
		case "created", "modified", "deleted":
			events[e] = true
		default:
			return nil, fmt.Errorf("unknown filesystem event %q", e)
		}
	}
	if len(events) == 0 {
		events = map[string]bool{"created": true, "modified": true, "deleted": true}
	}
	return &filesystemWatcher{path: cond.Path, recursive: cond.Recursive, events: events}, nil
}

func (w *filesystemWatcher) Watch(ctx context.Context, fire FireFunc) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := w.addPath(fsw, w.path); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			kind := classify(event)
			if kind == "" {
				continue
			}
			// New subdirectories join the watch before the fire so
			// nothing created inside them is missed for long.
			if w.recursive && kind == "created" {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.addPath(fsw, event.Name)
				}
			}
			if !w.events[kind] {
				continue
			}
			fire(map[string]any{"path": event.Name, "event": kind})
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("filesystem watcher error: %w", err)
		}
	}
}

func (w *filesystemWatcher) addPath(fsw *fsnotify.Watcher, root string) error {
	if !w.recursive {
		return fsw.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}

func classify(event fsnotify.Event) string {
	switch {
	case event.Has(fsnotify.Create):
		return "created"
	case event.Has(fsnotify.Write):
		return "modified"
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return "deleted"
	default:
		return ""
	}
}
