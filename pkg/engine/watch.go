package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/wouteroostervld/sawmill/pkg/filter"
	"github.com/wouteroostervld/sawmill/pkg/watcher"
)

// Watch runs the pipeline once, then reruns it whenever the input tree
// changes. Excluded directories are not watched. Blocks until the
// context is cancelled.
func (e *Engine) Watch(ctx context.Context, inputRoot string, debounce time.Duration) error {
	if _, err := e.Run(ctx, inputRoot); err != nil {
		slog.Error("Initial run failed", "error", err)
	}

	rerun := make(chan struct{}, 1)
	w, err := watcher.New(watcher.Config{
		Root:          inputRoot,
		DebounceDelay: debounce,
		ShouldWatch: func(relPath string) bool {
			return filter.ShouldScanDirectory(relPath, e.cfg.Exclude)
		},
		OnChange: func(paths []string) {
			slog.Info("Source tree changed", "paths", len(paths))
			select {
			case rerun <- struct{}{}:
			default:
			}
		},
	})
	if err != nil {
		return err
	}
	defer w.Close()

	go w.Start(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-rerun:
			if _, err := e.Run(ctx, inputRoot); err != nil {
				slog.Error("Rerun failed", "error", err)
			}
		}
	}
}
