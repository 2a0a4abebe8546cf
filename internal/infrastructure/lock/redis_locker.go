package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jhoicas/inventario-fifo/internal/application/inventory"
	"github.com/jhoicas/inventario-fifo/internal/domain"
)

var _ inventory.SKULocker = (*RedisLocker)(nil)

// solo borra la clave si el token sigue siendo el nuestro
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

const redisPollInterval = 50 * time.Millisecond

// RedisLocker bloqueo por SKU entre procesos con SET NX + TTL.
// El TTL acota cuánto sobrevive un bloqueo si el proceso muere sin liberarlo.
type RedisLocker struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
	ttl     time.Duration
	log     zerolog.Logger
}

// NewRedisLocker construye el locker sobre un cliente ya conectado.
func NewRedisLocker(client *redis.Client, prefix string, timeout, ttl time.Duration, log zerolog.Logger) *RedisLocker {
	if prefix == "" {
		prefix = "fifo:lock:"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{
		client:  client,
		prefix:  prefix,
		timeout: timeout,
		ttl:     ttl,
		log:     log.With().Str("component", "redis_locker").Logger(),
	}
}

// NewRedisClient parsea la URL (redis://...) y verifica la conexión.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Lock intenta SET NX hasta obtener la clave o agotar la espera.
func (r *RedisLocker) Lock(ctx context.Context, sku string) (func(), error) {
	key := r.prefix + sku
	token := uuid.NewString()
	deadline := time.Now().Add(r.timeout)

	ticker := time.NewTicker(redisPollInterval)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("redis setnx %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, &domain.LockTimeoutError{SKU: sku, Wait: r.timeout}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// contexto propio: el del llamador puede estar cancelado al liberar
			relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(relCtx, r.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				r.log.Warn().Err(err).Str("sku", sku).Msg("no se pudo liberar el bloqueo en redis")
			}
		})
	}, nil
}
