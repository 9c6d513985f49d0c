package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"

	"github.com/michalholes/audiomason2-sub000/internal/jail"
)

// Run watches a source root for filesystem activity and publishes a
// discovery.changed diagnostic for every change observed under it. It
// never mutates wizard state directly — a caller watching the bus is
// expected to trigger a fresh discovery run and, if it wants that
// result reflected in a session, a new create_session call.
func (c *WatchCmd) Run(app *App) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootDir, err := app.FS.RootDir(jail.RootName(c.Root))
	if err != nil {
		return fmt.Errorf("resolve watch root: %w", err)
	}
	watchDir := filepath.Join(rootDir, c.Path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := addRecursive(watcher, watchDir); err != nil {
		return fmt.Errorf("watch %s: %w", watchDir, err)
	}

	fmt.Fprintf(os.Stderr, "wizard: watching %s, Ctrl-C to stop\n", watchDir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			app.Bus.SafePublish("discovery.changed", "import.watch", "fs_event", map[string]any{
				"root": c.Root,
				"path": event.Name,
				"op":   event.Op.String(),
			})
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			app.Bus.SafePublish("discovery.changed", "import.watch", "watch_error", map[string]any{
				"root":  c.Root,
				"error": err.Error(),
			})
		}
	}
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
