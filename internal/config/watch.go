package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the burst of events an editor save produces.
const watchDebounce = 250 * time.Millisecond

// Watch reloads the configuration for dir whenever its project config file
// or the user config file changes, and passes the result to onChange. An
// invalid file yields a nil Config and the load error. Watching stops when
// ctx is cancelled.
func Watch(ctx context.Context, dir string, onChange func(*Config, error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to get absolute path: %w", err)
	}
	// Directories are watched so that rename-on-save editors are seen.
	watched := map[string]bool{
		filepath.Join(absDir, ProjectConfigFile):    true,
		filepath.Join(absDir, ProjectConfigFileAlt): true,
		GetUserConfigPath():                         true,
	}
	if err := w.Add(absDir); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch %s: %w", absDir, err)
	}
	if userDir := GetUserConfigDir(); dirExists(userDir) && userDir != absDir {
		if err := w.Add(userDir); err != nil {
			slog.Warn("config_watch_skipped", slog.String("dir", userDir), slog.String("error", err.Error()))
		}
	}

	go func() {
		defer w.Close()

		var (
			mu    sync.Mutex
			timer *time.Timer
		)
		reload := func() {
			cfg, err := Load(absDir)
			if err != nil {
				slog.Warn("config_reload_failed", slog.String("error", err.Error()))
			} else {
				slog.Info("config_reloaded", slog.String("dir", absDir))
			}
			onChange(cfg, err)
		}

		for {
			select {
			case <-ctx.Done():
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				mu.Unlock()
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !watched[filepath.Clean(ev.Name)] || ev.Op == fsnotify.Chmod {
					continue
				}
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(watchDebounce, reload)
				mu.Unlock()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("config_watch_error", slog.String("error", err.Error()))
			}
		}
	}()

	return nil
}
