package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rheldev6-ship-it/integ/internal/services/downloader"
	"github.com/rheldev6-ship-it/integ/internal/services/resolver"
	"github.com/rheldev6-ship-it/integ/internal/services/runtimecache"

	"github.com/gammazero/workerpool"
	"go.uber.org/zap"
)

// Caller-facing operations consumed by the launcher. These are thin passes
// through the owned managers; they exist so outer layers never touch the
// managers directly.

func (app *App) ResolveRuntime(ctx context.Context, requirement string) resolver.Resolution {
	return app.resolver.Resolve(ctx, requirement)
}

func (app *App) InstallProgress(versionID string) downloader.Progress {
	return app.downloader.Progress(versionID)
}

func (app *App) ListCached() []runtimecache.Entry {
	return app.store.List()
}

func (app *App) Evict(versionID string) error {
	return app.store.Evict(versionID)
}

// Warmup downloads the config-pinned runtime versions ahead of first use,
// a bounded number at a time. Versions already installed are skipped.
func (app *App) Warmup(ctx context.Context) error {
	pinned := app.config.PinnedRuntimes
	if len(pinned) == 0 {
		app.Logger.Info("no pinned runtimes configured")
		return nil
	}

	wp := workerpool.New(app.config.WarmupWorkers)

	var (
		mu   sync.Mutex
		errs []error
	)
	for _, versionID := range pinned {
		versionID := versionID
		wp.Submit(func() {
			if app.store.Has(versionID) == runtimecache.StateInstalled {
				app.Logger.Info("runtime already installed",
					zap.String("version_id", versionID))
				return
			}

			res := app.resolver.Resolve(ctx, versionID)
			defer res.Release()

			if res.Outcome != resolver.OutcomeRequested {
				mu.Lock()
				errs = append(errs, fmt.Errorf("warmup of %s: got outcome %s (%v)",
					versionID, res.Outcome, res.Reason))
				mu.Unlock()
			}
		})
	}
	wp.StopWait()

	if len(errs) > 0 {
		return fmt.Errorf("warmup finished with %d failures: %v", len(errs), errs)
	}
	return nil
}
