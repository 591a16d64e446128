package app

import (
	"context"
	"time"

	"github.com/rheldev6-ship-it/integ/internal/config"
	"github.com/rheldev6-ship-it/integ/internal/registry"
	"github.com/rheldev6-ship-it/integ/internal/services/downloader"
	"github.com/rheldev6-ship-it/integ/internal/services/fetcher"
	"github.com/rheldev6-ship-it/integ/internal/services/resolver"
	"github.com/rheldev6-ship-it/integ/internal/services/runtimecache"
	"github.com/rheldev6-ship-it/integ/internal/services/sysprobe"
	"github.com/rheldev6-ship-it/integ/pkg/logger"

	"go.uber.org/zap"
)

// App owns every manager instance and the lock state they carry. Nothing in
// this package or below keeps process-wide globals for cache state; callers
// hold an App and pass it down.
type App struct {
	config     *config.Config
	ctx        context.Context
	cancelFunc context.CancelFunc

	Logger *zap.Logger

	store      *runtimecache.Store
	registry   registry.Client
	downloader *downloader.Manager
	probe      sysprobe.Probe
	resolver   *resolver.Resolver
}

// Option funcs used to initialize the App struct
type OptionFunc func(app *App) error

func WithRegistry(client registry.Client) OptionFunc {
	return func(app *App) error {
		app.registry = client
		return nil
	}
}

func WithProbe(probe sysprobe.Probe) OptionFunc {
	return func(app *App) error {
		app.probe = probe
		return nil
	}
}

func WithLogger(l *zap.Logger) OptionFunc {
	return func(app *App) error {
		app.Logger = l
		return nil
	}
}

func NewApp(cfg *config.Config, options ...OptionFunc) (*App, error) {
	l, err := logger.InitLogger(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		ctx:        ctx,
		config:     cfg,
		Logger:     l,
		cancelFunc: cancel,
	}

	for _, opt := range options {
		if err := opt(app); err != nil {
			cancel()
			return nil, err
		}
	}

	if app.registry == nil {
		app.registry = registry.NewHTTPClient(cfg.RegistryURL)
	}
	if app.probe == nil {
		app.probe = sysprobe.New(cfg.SystemRuntimePaths)
	}

	store, err := runtimecache.NewStore(cfg.CacheDir, cfg.StagingDir, app.Logger)
	if err != nil {
		cancel()
		return nil, err
	}
	app.store = store

	f := fetcher.New(app.Logger, fetcher.Options{
		Retries:        cfg.FetchRetries,
		InitialBackoff: time.Duration(cfg.FetchBackoffMs) * time.Millisecond,
		AttemptTimeout: time.Duration(cfg.FetchTimeoutS) * time.Second,
	})
	app.downloader = downloader.NewManager(ctx, store, f, app.Logger)
	app.resolver = resolver.New(store, app.registry, app.downloader, app.probe, app.Logger)

	return app, nil
}

func (app *App) Close() {
	app.cancelFunc()
}

func (app *App) Config() *config.Config {
	return app.config
}

func (app *App) Context() context.Context {
	return app.ctx
}

func (app *App) Store() *runtimecache.Store {
	return app.store
}

func (app *App) Downloader() *downloader.Manager {
	return app.downloader
}

func (app *App) Resolver() *resolver.Resolver {
	return app.resolver
}
