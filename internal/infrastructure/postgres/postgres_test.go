package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/inventario-fifo/internal/application/inventory"
	"github.com/jhoicas/inventario-fifo/internal/domain"
	"github.com/jhoicas/inventario-fifo/internal/domain/entity"
	"github.com/jhoicas/inventario-fifo/internal/infrastructure/postgres"
	"github.com/jhoicas/inventario-fifo/pkg/config"
)

// Requiere FIFO_TEST_DATABASE_URL apuntando a una base desechable.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("FIFO_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("FIFO_TEST_DATABASE_URL no definido")
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, config.DBConfig{DatabaseURL: url, MaxConns: 8})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.Migrate(ctx, pool))
	require.NoError(t, postgres.Migrate(ctx, pool), "la migración es idempotente")
	return pool
}

// cada test usa un SKU propio: la base es compartida
func uniqueSKU() string { return "T-" + uuid.NewString()[:8] }

func TestPostgres_SalidaCruzaDosLotes(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	sku := uniqueSKU()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	movRepo := postgres.NewMovementRepository(pool)
	in1 := &entity.Movement{SKU: sku, Action: entity.ActionIn, Quantity: 100, UnitCost: decimal.RequireFromString("2.00"), OccurredAt: at}
	in2 := &entity.Movement{SKU: sku, Action: entity.ActionIn, Quantity: 50, UnitCost: decimal.RequireFromString("3.00"), OccurredAt: at.Add(time.Minute)}
	out := &entity.Movement{SKU: sku, Action: entity.ActionOut, Quantity: 120, OccurredAt: at.Add(2 * time.Minute)}
	for _, m := range []*entity.Movement{in1, in2, out} {
		require.NoError(t, movRepo.Append(ctx, m))
	}

	log := zerolog.Nop()
	tx := postgres.NewTxRunner(pool)
	lotRepo := postgres.NewLotRepository(pool)
	allocRepo := postgres.NewAllocationRepository(pool)
	ledger := inventory.NewLotLedger(tx, lotRepo, log)
	engine := inventory.NewAllocationEngine(tx, ledger, inventory.EngineConfig{}, log)
	locker := postgres.NewAdvisoryLocker(pool, 2*time.Second, log)
	proc := inventory.NewProcessor(tx, movRepo, locker, ledger, engine, inventory.ProcessorConfig{}, log)

	report, err := proc.Run(ctx, inventory.NewRunContext("test"), sku)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Processed)

	lines, err := allocRepo.ListByMovement(ctx, out.RecordID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, int64(100), lines[0].QuantityAllocated)
	assert.Equal(t, int64(20), lines[1].QuantityAllocated)

	qty, cost, err := allocRepo.Totals(ctx, sku)
	require.NoError(t, err)
	assert.Equal(t, int64(120), qty)
	assert.True(t, cost.Equal(decimal.NewFromInt(260)), cost.String())

	lot1, err := lotRepo.GetBySourceMovement(ctx, in1.RecordID)
	require.NoError(t, err)
	assert.NotNil(t, lot1.ClosedAt)

	// duplicado sin abortar la transacción
	dup, _ := entity.NewLot(sku, in1.RecordID, decimal.NewFromInt(2), 100, at)
	assert.ErrorIs(t, lotRepo.Create(ctx, dup), domain.ErrDuplicateLot)

	again, err := proc.Run(ctx, inventory.NewRunContext("test"), sku)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Processed)
}

func TestAdvisoryLocker(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	sku := uniqueSKU()
	locker := postgres.NewAdvisoryLocker(pool, 100*time.Millisecond, zerolog.Nop())

	unlock, err := locker.Lock(ctx, sku)
	require.NoError(t, err)

	_, err = locker.Lock(ctx, sku)
	assert.ErrorIs(t, err, domain.ErrLockTimeout)

	unlock()
	unlock()
	again, err := locker.Lock(ctx, sku)
	require.NoError(t, err)
	again()
}

func TestAdvisoryLocker_PoolAgotado(t *testing.T) {
	testPool(t)
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, config.DBConfig{DatabaseURL: os.Getenv("FIFO_TEST_DATABASE_URL"), MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	for range 4 {
		conn, err := pool.Acquire(ctx)
		require.NoError(t, err)
		t.Cleanup(conn.Release)
	}

	locker := postgres.NewAdvisoryLocker(pool, 150*time.Millisecond, zerolog.Nop())
	start := time.Now()
	_, err = locker.Lock(ctx, uniqueSKU())
	assert.ErrorIs(t, err, domain.ErrLockTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}
