package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventario-fifo/internal/application/inventory"
	"github.com/jhoicas/inventario-fifo/internal/application/reconciliation"
	"github.com/jhoicas/inventario-fifo/internal/domain/repository"
	"github.com/jhoicas/inventario-fifo/internal/infrastructure/lock"
	"github.com/jhoicas/inventario-fifo/internal/infrastructure/postgres"
	"github.com/jhoicas/inventario-fifo/internal/infrastructure/sqlite"
	"github.com/jhoicas/inventario-fifo/pkg/config"
	"github.com/jhoicas/inventario-fifo/pkg/logger"
)

// App dependencias armadas a partir de la configuración.
type App struct {
	Config *config.Config
	Log    zerolog.Logger

	TxRunner    inventory.TxRunner
	Movements   repository.MovementRepository
	Lots        repository.LotRepository
	Allocations repository.AllocationRepository

	Processor  *inventory.Processor
	Reverser   *inventory.Reverser
	Valuation  *inventory.ValuationUseCase
	Reconciler *reconciliation.Reconciler

	migrate func(ctx context.Context) error
	closers []func()
}

// Migrate aplica el esquema del almacén configurado.
func (a *App) Migrate(ctx context.Context) error { return a.migrate(ctx) }

// Close libera conexiones en orden inverso de creación.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// openApp carga configuración, logger, almacén y locker.
func openApp(ctx context.Context, opts *RootOptions, logOut io.Writer) (*App, error) {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "configuración inválida", err)
	}
	level := cfg.App.LogLevel
	if opts.Verbose {
		level = "debug"
	}
	zl := logger.New(logger.Config{Env: cfg.App.Env, Level: level, Out: logOut}).Zerolog()

	app, err := buildApp(ctx, cfg, zl)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "inicializar almacén", err)
	}
	return app, nil
}

// buildApp arma repositorios y casos de uso. Separado de openApp para tests.
func buildApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	app := &App{Config: cfg, Log: log}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	var locker inventory.SKULocker
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.DB)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, pool.Close)
		app.TxRunner = postgres.NewTxRunner(pool)
		app.Movements = postgres.NewMovementRepository(pool)
		app.Lots = postgres.NewLotRepository(pool)
		app.Allocations = postgres.NewAllocationRepository(pool)
		app.migrate = func(ctx context.Context) error { return postgres.Migrate(ctx, pool) }
		if cfg.Lock.Backend == "postgres" {
			locker = postgres.NewAdvisoryLocker(pool, cfg.Lock.Timeout, log)
		}
	default:
		store, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func() { _ = store.Close() })
		app.TxRunner = store.TxRunner()
		app.Movements = store.Movements()
		app.Lots = store.Lots()
		app.Allocations = store.Allocations()
		// sqlite.Open ya aplica el esquema
		app.migrate = func(context.Context) error { return nil }
	}

	switch cfg.Lock.Backend {
	case "redis":
		client, err := lock.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func() { _ = client.Close() })
		locker = lock.NewRedisLocker(client, cfg.Redis.Prefix, cfg.Lock.Timeout, cfg.Redis.LockTTL, log)
	case "memory":
		locker = lock.NewKeyedLocker(cfg.Lock.Timeout)
	}
	if locker == nil {
		return nil, fmt.Errorf("LOCK_BACKEND %q sin implementación para STORE_DRIVER %q", cfg.Lock.Backend, cfg.Store.Driver)
	}

	policy, err := inventory.ParseOversoldPolicy(cfg.FIFO.OversoldPolicy)
	if err != nil {
		return nil, err
	}
	backfillCost, err := decimal.NewFromString(cfg.FIFO.BackfillUnitCost)
	if err != nil {
		return nil, fmt.Errorf("FIFO_BACKFILL_UNIT_COST %q: %w", cfg.FIFO.BackfillUnitCost, err)
	}

	ledger := inventory.NewLotLedger(app.TxRunner, app.Lots, log)
	engine := inventory.NewAllocationEngine(app.TxRunner, ledger, inventory.EngineConfig{
		Policy:           policy,
		BackfillUnitCost: backfillCost,
	}, log)
	app.Processor = inventory.NewProcessor(app.TxRunner, app.Movements, locker, ledger, engine, inventory.ProcessorConfig{
		BatchSize: cfg.FIFO.BatchSize,
		Workers:   cfg.FIFO.Workers,
	}, log)
	app.Reverser = inventory.NewReverser(app.TxRunner, app.Movements, locker, log)
	app.Valuation = inventory.NewValuationUseCase(app.Lots, app.Allocations)
	app.Reconciler = reconciliation.NewReconciler(app.Movements, app.Lots, app.Allocations, reconciliation.Config{
		Tolerance: cfg.Diff.Tolerance,
		Workers:   cfg.FIFO.Workers,
	}, log)

	ok = true
	return app, nil
}
