package layouts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/mgth/SpatialVisualizer/internal/scene"
)

// DefaultDebounce groups the burst of events an editor produces on save.
const DefaultDebounce = 250 * time.Millisecond

// Watch reloads the directory whenever a layout file changes and passes the
// new list to onChange. A reload that finds no layouts reports an empty
// list. Watch returns when ctx is cancelled.
func (p *DirProvider) Watch(ctx context.Context, debounce time.Duration, onChange func([]scene.Layout)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create layout watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(p.Dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", p.Dir, err)
	}
	p.Logger.Info("watching layouts", zap.String("dir", p.Dir))

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !IsLayoutFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			p.Logger.Debug("layout file changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			timer.Reset(debounce)

		case <-timer.C:
			layouts, err := p.Load()
			if err != nil && !errors.Is(err, ErrNoLayouts) {
				p.Logger.Error("layout reload failed", zap.Error(err))
				continue
			}
			p.Logger.Info("layouts reloaded", zap.Int("layouts", len(layouts)))
			onChange(layouts)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.Logger.Warn("layout watcher error", zap.Error(err))
		}
	}
}
