package htmlcache

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch purges cache whenever a file below dir is written, created, removed
// or renamed. It blocks until ctx is cancelled. When cache is a FileCache
// stored below dir, its own writes are ignored.
func Watch(ctx context.Context, dir string, cache Cache, logger *zap.Logger) error {
	var skip string
	if fc, ok := cache.(*FileCache); ok {
		skip = fc.dir
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// fsnotify does not recurse, so every directory is added explicitly.
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if within(path, skip) {
				return filepath.SkipDir
			}
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod || within(ev.Name, skip) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					_ = watcher.Add(ev.Name)
				}
			}
			if err := cache.Purge(ctx); err != nil {
				logger.Warn("purge html cache", zap.String("trigger", ev.Name), zap.Error(err))
				continue
			}
			logger.Debug("html cache purged", zap.String("trigger", ev.Name), zap.String("op", ev.Op.String()))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("cache watcher error", zap.Error(err))
		}
	}
}

// within reports whether path is root or lies below it.
func within(path, root string) bool {
	if root == "" {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
