// Package lock implementa el bloqueo por SKU: en proceso (semáforos), en Postgres
// (advisory locks, ver infrastructure/postgres) o en Redis entre procesos.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jhoicas/inventario-fifo/internal/application/inventory"
	"github.com/jhoicas/inventario-fifo/internal/domain"
)

var _ inventory.SKULocker = (*KeyedLocker)(nil)

// DefaultTimeout espera máxima por un bloqueo cuando no se configura otra.
const DefaultTimeout = 5 * time.Second

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// KeyedLocker serializa por clave dentro del proceso. Las entradas se liberan cuando nadie
// las usa, así el mapa no crece con SKUs ya procesados.
type KeyedLocker struct {
	timeout time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

// NewKeyedLocker construye el locker con la espera máxima dada.
func NewKeyedLocker(timeout time.Duration) *KeyedLocker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &KeyedLocker{timeout: timeout, entries: map[string]*entry{}}
}

// Lock espera el bloqueo de sku. Devuelve *domain.LockTimeoutError al agotar la espera
// y ctx.Err() si el contexto del llamador se canceló.
func (k *KeyedLocker) Lock(ctx context.Context, sku string) (func(), error) {
	e := k.acquire(sku)

	waitCtx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	if err := e.sem.Acquire(waitCtx, 1); err != nil {
		k.release(sku)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &domain.LockTimeoutError{SKU: sku, Wait: k.timeout}
		}
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			k.release(sku)
		})
	}, nil
}

func (k *KeyedLocker) acquire(sku string) *entry {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[sku]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		k.entries[sku] = e
	}
	e.refs++
	return e
}

func (k *KeyedLocker) release(sku string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[sku]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(k.entries, sku)
	}
}

// size cantidad de claves con usuarios activos (tests).
func (k *KeyedLocker) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
