package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/najoast/catalog/api"
	"github.com/najoast/catalog/catalog"
	"github.com/najoast/catalog/choreography"
	"github.com/najoast/catalog/config"
	"github.com/najoast/catalog/core"
	"github.com/najoast/catalog/logging"
	"github.com/najoast/catalog/metrics"
	"github.com/najoast/catalog/store"
	"github.com/najoast/catalog/tracing"
)

// Application is the catalog daemon: one actor system, its catalog, and the
// services around them.
type Application struct {
	cfg *config.Config
	log *logging.Logger
	lm  *LifecycleManager

	sys     *core.System
	metrics *metrics.Metrics
	tracker *choreography.Tracker
	index   *catalog.Index

	// set by services while starting
	traces *tracing.Provider
	store  *store.Store

	mu      sync.RWMutex
	catalog *catalog.CatalogClient
	server  *api.Server
	running bool

	shutdownChan chan os.Signal
}

// NewApplication builds the application for cfg. Nothing runs until Run or
// Start.
func NewApplication(cfg *config.Config, log *logging.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = logging.NewNop()
	}

	m := metrics.New()
	tracker := choreography.NewTracker(0, log.Logger)
	index := catalog.NewIndex(catalog.CatalogInit(core.WalletInit(cfg.Ledger.OwnerWallet).Address()).Address())
	sys := core.NewSystem(
		core.WithFees(cfg.Ledger.Fees),
		core.WithLogger(log.Logger.Named("ledger")),
		core.WithActorOptions(core.ActorOptions{
			MailboxSize:    cfg.Actor.MailboxSize,
			ProcessTimeout: cfg.Actor.ProcessTimeout,
		}),
		core.WithObserver(m),
		core.WithObserver(tracker),
		core.WithObserver(index),
	)
	if err := catalog.Register(sys, catalog.Limits{MaxTitleLength: cfg.Ledger.MaxTitleLength}); err != nil {
		return nil, &ApplicationError{Operation: "register templates", Err: err}
	}

	app := &Application{
		cfg:          cfg,
		log:          log,
		lm:           NewLifecycleManager(log.Logger),
		sys:          sys,
		metrics:      m,
		tracker:      tracker,
		index:        index,
		shutdownChan: make(chan os.Signal, 1),
	}
	if err := app.registerServices(); err != nil {
		return nil, err
	}
	return app, nil
}

func (app *Application) registerServices() error {
	services := []struct {
		svc  Service
		deps []string
	}{
		{&TracingService{app: app}, nil},
		{&StoreService{app: app}, nil},
		{&LedgerService{app: app}, []string{ServiceTracing, ServiceStore}},
		{&SnapshotService{app: app}, []string{ServiceLedger, ServiceStore}},
		{&APIService{app: app}, []string{ServiceLedger}},
	}
	for _, s := range services {
		if err := app.lm.Register(s.svc.Name(), s.svc, s.deps...); err != nil {
			return &ApplicationError{Operation: "register", Service: s.svc.Name(), Err: err}
		}
	}
	return nil
}

// Start starts every service.
func (app *Application) Start(ctx context.Context) error {
	app.mu.Lock()
	if app.running {
		app.mu.Unlock()
		return fmt.Errorf("application is already running")
	}
	app.running = true
	app.mu.Unlock()

	if err := app.lm.Start(ctx); err != nil {
		app.mu.Lock()
		app.running = false
		app.mu.Unlock()
		return err
	}
	app.log.Info("catalogd started",
		zap.String("version", app.cfg.App.Version),
		zap.String("environment", app.cfg.App.Environment.String()),
		zap.Strings("services", app.lm.StartOrder()))
	return nil
}

// Run starts the application and blocks until ctx is done or the process is
// signalled, then shuts down.
func (app *Application) Run(ctx context.Context) error {
	if err := app.Start(ctx); err != nil {
		return err
	}

	signal.Notify(app.shutdownChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(app.shutdownChan)

	select {
	case sig := <-app.shutdownChan:
		app.log.Info("received shutdown signal", zap.Stringer("signal", sig))
	case <-ctx.Done():
		app.log.Info("context cancelled, shutting down")
	}

	return app.Shutdown(context.Background())
}

// Shutdown stops every service in reverse start order.
func (app *Application) Shutdown(ctx context.Context) error {
	app.mu.Lock()
	if !app.running {
		app.mu.Unlock()
		return nil
	}
	app.running = false
	app.mu.Unlock()

	err := app.lm.Stop(ctx)
	if err != nil {
		app.log.Error("shutdown incomplete", zap.Error(err))
	} else {
		app.log.Info("catalogd stopped",
			zap.Stringer("fees_collected", app.sys.FeesCollected()),
			zap.Stringer("minted", app.sys.Minted()))
	}
	return err
}

// ApplyConfig applies the parts of next that can change at runtime: the fee
// schedule and the log level. It is a config.ConfigChangeCallback.
func (app *Application) ApplyConfig(prev, next *config.Config) {
	if next.Ledger.Fees != app.sys.Fees() {
		if err := app.sys.SetFees(next.Ledger.Fees); err != nil {
			app.log.Warn("fee schedule not applied", zap.Error(err))
		}
	}
	if next.Log.Level != app.log.Level() {
		if err := app.log.SetLevel(next.Log.Level); err != nil {
			app.log.Warn("log level not applied", zap.Error(err))
		} else {
			app.log.Info("log level updated", zap.Stringer("level", next.Log.Level))
		}
	}
	if prev != nil && prev.Ledger.MaxTitleLength != next.Ledger.MaxTitleLength {
		app.log.Warn("max_title_length changes take effect after a restart")
	}
}

// Watch applies every validated reload of w.
func (app *Application) Watch(w *config.Watcher) {
	w.OnConfigChange(app.ApplyConfig)
}

// Health reports every service.
func (app *Application) Health(ctx context.Context) map[string]HealthStatus {
	return app.lm.Health(ctx)
}

// LifecycleManager returns the lifecycle manager
func (app *Application) LifecycleManager() *LifecycleManager { return app.lm }

// System returns the actor system.
func (app *Application) System() *core.System { return app.sys }

// Config returns the configuration the application was built with.
func (app *Application) Config() *config.Config { return app.cfg }

// Tracker returns the choreography tracker.
func (app *Application) Tracker() *choreography.Tracker { return app.tracker }

// Index returns the track index of the catalog.
func (app *Application) Index() *catalog.Index { return app.index }

// Catalog returns the deployed catalog, or nil before the ledger started.
func (app *Application) Catalog() *catalog.CatalogClient {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.catalog
}

// Server returns the running gateway, or nil when disabled.
func (app *Application) Server() *api.Server {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.server
}

func (app *Application) setCatalog(c *catalog.CatalogClient) {
	app.mu.Lock()
	app.catalog = c
	app.mu.Unlock()
}
