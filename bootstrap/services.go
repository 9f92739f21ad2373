package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/najoast/catalog/api"
	"github.com/najoast/catalog/catalog"
	"github.com/najoast/catalog/store"
	"github.com/najoast/catalog/tracing"
)

// Service names
const (
	ServiceTracing   = "tracing"
	ServiceStore     = "store"
	ServiceLedger    = "ledger"
	ServiceSnapshots = "snapshots"
	ServiceAPI       = "api"
)

// TracingService exports operation spans when an exporter is configured.
type TracingService struct {
	app *Application
}

func (s *TracingService) Name() string { return ServiceTracing }

func (s *TracingService) Start(ctx context.Context) error {
	cfg := s.app.cfg
	p, err := tracing.NewProvider(ctx, cfg.Tracing, cfg.App.Name)
	if err != nil {
		return err
	}
	s.app.traces = p
	if p.Enabled() {
		s.app.sys.AddObserver(tracing.NewObserver(p.Tracer()))
	}
	return nil
}

func (s *TracingService) Stop(ctx context.Context) error {
	if s.app.traces == nil {
		return nil
	}
	return s.app.traces.Shutdown(ctx)
}

func (s *TracingService) Health(context.Context) (HealthStatus, error) {
	if s.app.traces == nil || !s.app.traces.Enabled() {
		return HealthStatus{State: HealthDisabled}, nil
	}
	return HealthStatus{
		State: HealthHealthy,
		Data:  map[string]any{"exporter": s.app.cfg.Tracing.Exporter},
	}, nil
}

// StoreService owns the SQLite database.
type StoreService struct {
	app *Application
}

func (s *StoreService) Name() string { return ServiceStore }

func (s *StoreService) Start(ctx context.Context) error {
	cfg := s.app.cfg.Store
	if !cfg.Enabled {
		return nil
	}
	st, err := store.Open(ctx, cfg.File, s.app.log.Logger)
	if err != nil {
		return err
	}
	s.app.store = st
	return nil
}

func (s *StoreService) Stop(context.Context) error {
	if s.app.store == nil {
		return nil
	}
	err := s.app.store.Close()
	s.app.store = nil
	return err
}

func (s *StoreService) Health(context.Context) (HealthStatus, error) {
	if !s.app.cfg.Store.Enabled {
		return HealthStatus{State: HealthDisabled}, nil
	}
	if s.app.store == nil {
		return HealthStatus{State: HealthStopped}, nil
	}
	return HealthStatus{State: HealthHealthy, Data: map[string]any{"file": s.app.cfg.Store.File}}, nil
}

// LedgerService runs the actor system and makes sure the catalog is
// deployed, restoring a saved snapshot first when the store has one.
type LedgerService struct {
	app *Application
}

func (s *LedgerService) Name() string { return ServiceLedger }

func (s *LedgerService) Start(ctx context.Context) error {
	app := s.app
	cfg := app.cfg.Ledger

	if app.store != nil {
		if _, err := app.store.RestoreSystem(ctx, app.sys); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
	}

	owner, err := app.sys.OpenWallet(cfg.OwnerWallet, cfg.OwnerBalance)
	if err != nil {
		return err
	}

	addr := catalog.CatalogInit(owner.Address()).Address()
	if app.sys.Exists(addr) {
		app.setCatalog(catalog.NewCatalogClient(app.sys, addr))
		if app.sys.Book().Name(addr) == addr.Short() {
			_ = app.sys.Book().Label(addr, "catalog")
		}
		if err := app.index.Rebuild(ctx, app.sys); err != nil {
			return err
		}
		app.log.Info("catalog already deployed",
			zap.Stringer("address", addr),
			zap.Uint64("indexed_tracks", app.index.Count()))
		return nil
	}

	cat, op, err := catalog.Deploy(ctx, app.sys, owner, cfg.DeployValue)
	if err != nil {
		return err
	}
	if err := op.Wait(ctx); err != nil {
		return fmt.Errorf("deploy catalog: %w", err)
	}
	if !app.sys.Exists(cat.Address()) {
		return fmt.Errorf("deploy catalog: not deployed after %d transactions", len(op.Transactions()))
	}
	app.setCatalog(cat)
	app.log.Info("catalog deployed",
		zap.Stringer("address", cat.Address()),
		zap.Stringer("owner", owner.Address()),
		zap.Stringer("value", cfg.DeployValue))
	return nil
}

func (s *LedgerService) Stop(ctx context.Context) error {
	app := s.app
	settleCtx, cancel := context.WithTimeout(ctx, app.cfg.Actor.ShutdownTimeout)
	defer cancel()
	if err := app.sys.Settle(settleCtx); err != nil {
		app.log.Warn("stopping with operations in flight", zap.Error(err))
	}
	return app.sys.Shutdown(ctx)
}

func (s *LedgerService) Health(context.Context) (HealthStatus, error) {
	app := s.app
	if app.Catalog() == nil {
		return HealthStatus{State: HealthStopped}, nil
	}
	return HealthStatus{
		State: HealthHealthy,
		Data: map[string]any{
			"catalog":        app.Catalog().Address().String(),
			"actors":         len(app.sys.Stats()),
			"fees_collected": app.sys.FeesCollected().String(),
			"minted":         app.sys.Minted().String(),
		},
	}, nil
}

// SnapshotService saves the system to the store periodically and once more
// on stop.
type SnapshotService struct {
	app *Application

	cancel   context.CancelFunc
	done     chan struct{}
	lastSave time.Time
	lastErr  error
}

func (s *SnapshotService) Name() string { return ServiceSnapshots }

func (s *SnapshotService) Start(context.Context) error {
	interval := s.app.cfg.Store.SaveInterval
	if s.app.store == nil || interval <= 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.save(ctx)
			}
		}
	}()
	return nil
}

func (s *SnapshotService) save(ctx context.Context) {
	err := s.app.store.SaveSystem(ctx, s.app.sys)
	s.app.mu.Lock()
	s.lastErr = err
	if err == nil {
		s.lastSave = time.Now()
	}
	s.app.mu.Unlock()
	if err != nil && !errors.Is(err, context.Canceled) {
		s.app.log.Warn("periodic snapshot failed", zap.Error(err))
	}
}

func (s *SnapshotService) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
	}
	if s.app.store == nil {
		return nil
	}
	if err := s.app.store.SaveSystem(ctx, s.app.sys); err != nil {
		return fmt.Errorf("final snapshot: %w", err)
	}
	return nil
}

func (s *SnapshotService) Health(context.Context) (HealthStatus, error) {
	if s.app.store == nil {
		return HealthStatus{State: HealthDisabled}, nil
	}
	s.app.mu.RLock()
	defer s.app.mu.RUnlock()
	status := HealthStatus{State: HealthHealthy, Data: map[string]any{}}
	if !s.lastSave.IsZero() {
		status.Data["last_save"] = s.lastSave
	}
	if s.lastErr != nil {
		status.State = HealthUnhealthy
		status.Message = s.lastErr.Error()
	}
	return status, nil
}

// APIService serves the HTTP gateway.
type APIService struct {
	app *Application
}

func (s *APIService) Name() string { return ServiceAPI }

func (s *APIService) Start(context.Context) error {
	app := s.app
	if !app.cfg.API.Enabled {
		return nil
	}
	if !app.cfg.IsDebugEnabled() {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := api.New(app.sys, app.Catalog(), api.Options{
		API:           app.cfg.API,
		Monitor:       app.cfg.Monitor,
		WalletFunding: app.cfg.Ledger.WalletFunding,
		Metrics:       app.metrics,
		Tracker:       app.tracker,
		Index:         app.index,
		Logger:        app.log.Logger,
	})
	if err := srv.Start(); err != nil {
		return err
	}
	app.mu.Lock()
	app.server = srv
	app.mu.Unlock()
	return nil
}

func (s *APIService) Stop(ctx context.Context) error {
	srv := s.app.Server()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *APIService) Health(context.Context) (HealthStatus, error) {
	srv := s.app.Server()
	if !s.app.cfg.API.Enabled {
		return HealthStatus{State: HealthDisabled}, nil
	}
	if srv == nil {
		return HealthStatus{State: HealthStopped}, nil
	}
	return HealthStatus{State: HealthHealthy, Data: map[string]any{"addr": srv.Addr()}}, nil
}
