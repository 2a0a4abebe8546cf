package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/inventario-fifo/internal/domain"
	"github.com/jhoicas/inventario-fifo/internal/domain/entity"
	"github.com/jhoicas/inventario-fifo/internal/domain/repository"
	"github.com/jhoicas/inventario-fifo/internal/infrastructure/sqlite"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "fifo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func appendMov(t *testing.T, s *sqlite.Store, sku string, action entity.MovementAction, qty int64, at time.Time) *entity.Movement {
	t.Helper()
	m := &entity.Movement{SKU: sku, Action: action, Quantity: qty, UnitCost: decimal.RequireFromString("1.25"), OccurredAt: at, Reference: "ref"}
	require.NoError(t, s.Movements().Append(context.Background(), m))
	return m
}

func TestOpen_Idempotente(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fifo.db")
	s, err := sqlite.Open(path)
	require.NoError(t, err)
	appendMov(t, s, "A", entity.ActionIn, 1, base)
	require.NoError(t, s.Close())

	s, err = sqlite.Open(path)
	require.NoError(t, err)
	defer s.Close()
	var version int
	require.NoError(t, s.DB().Get(&version, "PRAGMA user_version"))
	assert.Equal(t, 1, version)
	list, err := s.Movements().ListBySKU(context.Background(), "A")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMovementRepo(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	m1 := appendMov(t, s, "A", entity.ActionIn, 10, base.Add(time.Hour))
	m2 := appendMov(t, s, "A", entity.ActionOut, 3, base)
	m3 := appendMov(t, s, "B", entity.ActionIn, 5, base)
	assert.Less(t, m1.RecordID, m2.RecordID)

	got, err := s.Movements().GetByID(ctx, m1.RecordID)
	require.NoError(t, err)
	assert.Equal(t, "A", got.SKU)
	assert.Equal(t, entity.ActionIn, got.Action)
	assert.True(t, got.UnitCost.Equal(decimal.RequireFromString("1.25")))
	assert.True(t, got.OccurredAt.Equal(base.Add(time.Hour)), "se conservan los nanosegundos")
	assert.Equal(t, "ref", got.Reference)
	assert.False(t, got.Processed)

	_, err = s.Movements().GetByID(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	sku := "A"
	pending, err := s.Movements().ListPending(ctx, &sku, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, m2.RecordID, pending[0].RecordID, "orden por fecha")

	limited, err := s.Movements().ListPending(ctx, nil, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	ok, err := s.Movements().MarkProcessed(ctx, m2.RecordID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Movements().MarkProcessed(ctx, m2.RecordID)
	require.NoError(t, err)
	assert.False(t, ok, "solo se marca una vez")

	ok, err = s.Movements().MarkProcessed(ctx, m3.RecordID)
	require.NoError(t, err)
	require.True(t, ok)
	skus, err := s.Movements().ListPendingSKUs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, skus)

	invalid := &entity.Movement{SKU: "A", Action: entity.ActionIn, Quantity: 0, OccurredAt: base}
	assert.ErrorIs(t, s.Movements().Append(ctx, invalid), domain.ErrInvalidInput)
}

func TestLotRepo(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	m := appendMov(t, s, "A", entity.ActionIn, 10, base)

	lot, err := entity.NewLot("A", m.RecordID, decimal.RequireFromString("2.5"), 10, base)
	require.NoError(t, err)
	require.NoError(t, s.Lots().Create(ctx, lot))
	assert.NotZero(t, lot.ID)

	dup, _ := entity.NewLot("A", m.RecordID, decimal.RequireFromString("2.5"), 10, base)
	err = s.Lots().Create(ctx, dup)
	var dupErr *domain.DuplicateLotError
	require.True(t, errors.As(err, &dupErr))
	assert.Equal(t, m.RecordID, dupErr.SourceMovementID)

	// compare-and-swap sobre el remanente
	require.NoError(t, lot.Consume(10, base.Add(time.Minute)))
	require.NoError(t, s.Lots().UpdateRemaining(ctx, lot, 10))
	assert.ErrorIs(t, s.Lots().UpdateRemaining(ctx, lot, 10), domain.ErrConflict)

	got, err := s.Lots().GetByID(ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.QuantityRemaining)
	require.NotNil(t, got.ClosedAt)
	assert.True(t, got.ClosedAt.Equal(base.Add(time.Minute)))

	open, err := s.Lots().ListOpen(ctx, "A")
	require.NoError(t, err)
	assert.Empty(t, open)
	all, err := s.Lots().ListBySKU(ctx, "A")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAllocationRepo_Totales(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	in := appendMov(t, s, "A", entity.ActionIn, 10, base)
	out := appendMov(t, s, "A", entity.ActionOut, 4, base.Add(time.Minute))
	lot, _ := entity.NewLot("A", in.RecordID, decimal.RequireFromString("0.1"), 10, base)
	require.NoError(t, s.Lots().Create(ctx, lot))

	a := entity.NewAllocation(out, lot, 4, base, "run-1")
	require.NoError(t, s.Allocations().Create(ctx, a))
	comp := a.Compensate(base, "run-2")
	require.NoError(t, s.Allocations().Create(ctx, comp))
	b := entity.NewAllocation(out, lot, 3, base, "run-3")
	require.NoError(t, s.Allocations().Create(ctx, b))

	lines, err := s.Allocations().ListByMovement(ctx, out.RecordID)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	require.NotNil(t, lines[1].ReversesAllocID)
	assert.Equal(t, a.ID, *lines[1].ReversesAllocID)

	sums, err := s.Allocations().SumByLot(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{lot.ID: 3}, sums)

	qty, cost, err := s.Allocations().Totals(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(3), qty)
	assert.True(t, cost.Equal(decimal.RequireFromString("0.3")), cost.String())

	// una segunda compensación de la misma línea viola la unicidad
	assert.ErrorIs(t, s.Allocations().Create(ctx, a.Compensate(base, "run-4")), domain.ErrAlreadyReversed)
}

func TestTxRunner_Rollback(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.TxRunner().Run(ctx, func(movRepo repository.MovementRepository, _ repository.LotRepository, _ repository.AllocationRepository) error {
		m := &entity.Movement{SKU: "A", Action: entity.ActionIn, Quantity: 1, OccurredAt: base}
		if err := movRepo.Append(ctx, m); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	list, err := s.Movements().ListBySKU(ctx, "A")
	require.NoError(t, err)
	assert.Empty(t, list)
}
