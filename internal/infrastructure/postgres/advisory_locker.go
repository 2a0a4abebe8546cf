package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/jhoicas/inventario-fifo/internal/application/inventory"
	"github.com/jhoicas/inventario-fifo/internal/domain"
)

var _ inventory.SKULocker = (*AdvisoryLocker)(nil)

const advisoryPollInterval = 50 * time.Millisecond

// AdvisoryLocker bloqueo por SKU con advisory locks de sesión. La conexión que toma el
// bloqueo se retiene hasta liberarlo; las transacciones del procesador usan otras del pool.
type AdvisoryLocker struct {
	pool    *pgxpool.Pool
	timeout time.Duration
	log     zerolog.Logger
}

// NewAdvisoryLocker construye el locker.
func NewAdvisoryLocker(pool *pgxpool.Pool, timeout time.Duration, log zerolog.Logger) *AdvisoryLocker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AdvisoryLocker{pool: pool, timeout: timeout, log: log.With().Str("component", "advisory_locker").Logger()}
}

func lockKey(sku string) string { return "fifo:sku:" + sku }

// Lock reintenta pg_try_advisory_lock hasta obtenerlo o agotar la espera. La espera incluye
// tomar la conexión del pool: con el pool agotado también se devuelve LockTimeoutError.
func (l *AdvisoryLocker) Lock(ctx context.Context, sku string) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	conn, err := l.pool.Acquire(waitCtx)
	if err != nil {
		return nil, l.waitError(ctx, waitCtx, sku, fmt.Errorf("acquire connection: %w", err))
	}
	key := lockKey(sku)

	ticker := time.NewTicker(advisoryPollInterval)
	defer ticker.Stop()
	for {
		var ok bool
		if err := conn.QueryRow(waitCtx, `SELECT pg_try_advisory_lock(hashtextextended($1, 0))`, key).Scan(&ok); err != nil {
			conn.Release()
			return nil, l.waitError(ctx, waitCtx, sku, fmt.Errorf("advisory lock %s: %w", sku, err))
		}
		if ok {
			break
		}
		select {
		case <-waitCtx.Done():
			conn.Release()
			return nil, l.waitError(ctx, waitCtx, sku, waitCtx.Err())
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if _, err := conn.Exec(relCtx, `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, key); err != nil {
				// sin unlock la conexión no debe volver al pool con el bloqueo tomado
				l.log.Warn().Err(err).Str("sku", sku).Msg("no se pudo liberar el advisory lock, se descarta la conexión")
				_ = conn.Conn().Close(relCtx)
			}
			conn.Release()
		})
	}, nil
}

// waitError distingue cancelación del llamador, espera agotada y error de la base.
func (l *AdvisoryLocker) waitError(ctx, waitCtx context.Context, sku string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
		return &domain.LockTimeoutError{SKU: sku, Wait: l.timeout}
	}
	return err
}
