package contextstore

import (
	"context"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/insight-router/backend/pkg/logger"
)

// Watch invalidates cached files when they change on disk. Directories that do
// not exist are skipped. The returned channel is closed once the watcher has
// stopped after ctx is done.
func (s *Store) Watch(ctx context.Context) (<-chan struct{}, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	for _, dir := range []string{s.opts.GeneralDir, s.opts.IDADir, s.opts.GraphDir} {
		if dir == "" {
			continue
		}
		if _, err := os.Stat(dir); err != nil {
			logger.Warn("Skipping watch of missing directory", zap.String("dir", dir))
			continue
		}
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	done := make(chan struct{})

	go func() {
		defer close(done)
		defer w.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				s.Invalidate(event.Name)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("Context watcher error", zap.Error(err))
			}
		}
	}()

	logger.Info("Context watcher started")

	return done, nil
}
