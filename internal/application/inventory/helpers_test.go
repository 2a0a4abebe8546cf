package inventory_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/inventario-fifo/internal/application/inventory"
	"github.com/jhoicas/inventario-fifo/internal/domain/entity"
	"github.com/jhoicas/inventario-fifo/internal/infrastructure/lock"
	"github.com/jhoicas/inventario-fifo/internal/infrastructure/sqlite"
)

var t0 = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

// testEnv arma el motor completo sobre una base SQLite temporal.
type testEnv struct {
	store     *sqlite.Store
	locker    *lock.KeyedLocker
	ledger    *inventory.LotLedger
	engine    *inventory.AllocationEngine
	proc      *inventory.Processor
	reverser  *inventory.Reverser
	valuation *inventory.ValuationUseCase
}

type envOption func(*inventory.EngineConfig, *inventory.ProcessorConfig, *time.Duration)

func withPolicy(p inventory.OversoldPolicy, backfillCost string) envOption {
	return func(ec *inventory.EngineConfig, _ *inventory.ProcessorConfig, _ *time.Duration) {
		ec.Policy = p
		ec.BackfillUnitCost = decimal.RequireFromString(backfillCost)
	}
}

func withBatchSize(n int) envOption {
	return func(_ *inventory.EngineConfig, pc *inventory.ProcessorConfig, _ *time.Duration) {
		pc.BatchSize = n
	}
}

func withLockTimeout(d time.Duration) envOption {
	return func(_ *inventory.EngineConfig, _ *inventory.ProcessorConfig, lt *time.Duration) {
		*lt = d
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "fifo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ec := inventory.EngineConfig{Policy: inventory.OversoldEscalate}
	pc := inventory.ProcessorConfig{BatchSize: 100, Workers: 2}
	lockTimeout := 2 * time.Second
	for _, o := range opts {
		o(&ec, &pc, &lockTimeout)
	}

	log := zerolog.Nop()
	txRunner := store.TxRunner()
	locker := lock.NewKeyedLocker(lockTimeout)
	ledger := inventory.NewLotLedger(txRunner, store.Lots(), log)
	engine := inventory.NewAllocationEngine(txRunner, ledger, ec, log)
	return &testEnv{
		store:     store,
		locker:    locker,
		ledger:    ledger,
		engine:    engine,
		proc:      inventory.NewProcessor(txRunner, store.Movements(), locker, ledger, engine, pc, log),
		reverser:  inventory.NewReverser(txRunner, store.Movements(), locker, log),
		valuation: inventory.NewValuationUseCase(store.Lots(), store.Allocations()),
	}
}

func testRunContext() inventory.RunContext {
	rc := inventory.NewRunContext("test")
	rc.Now = func() time.Time { return t0.Add(24 * time.Hour) }
	return rc
}

// in registra una entrada de qty unidades a cost, minute minutos después de t0.
func (e *testEnv) in(t *testing.T, sku string, qty int64, cost string, minute int) *entity.Movement {
	t.Helper()
	return e.appendMovement(t, sku, entity.ActionIn, qty, cost, minute)
}

// out registra una salida de qty unidades.
func (e *testEnv) out(t *testing.T, sku string, qty int64, minute int) *entity.Movement {
	t.Helper()
	return e.appendMovement(t, sku, entity.ActionOut, qty, "0", minute)
}

func (e *testEnv) appendMovement(t *testing.T, sku string, action entity.MovementAction, qty int64, cost string, minute int) *entity.Movement {
	t.Helper()
	m := &entity.Movement{
		SKU:        sku,
		Action:     action,
		Quantity:   qty,
		UnitCost:   decimal.RequireFromString(cost),
		OccurredAt: t0.Add(time.Duration(minute) * time.Minute),
	}
	require.NoError(t, e.store.Movements().Append(context.Background(), m))
	return m
}

func (e *testEnv) lotOf(t *testing.T, movementID int64) *entity.Lot {
	t.Helper()
	lot, err := e.store.Lots().GetBySourceMovement(context.Background(), movementID)
	require.NoError(t, err)
	return lot
}

func (e *testEnv) movement(t *testing.T, id int64) *entity.Movement {
	t.Helper()
	m, err := e.store.Movements().GetByID(context.Background(), id)
	require.NoError(t, err)
	return m
}

func (e *testEnv) allocations(t *testing.T, movementID int64) []*entity.Allocation {
	t.Helper()
	list, err := e.store.Allocations().ListByMovement(context.Background(), movementID)
	require.NoError(t, err)
	return list
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decFromInt(n int64) decimal.Decimal { return decimal.NewFromInt(n) }
