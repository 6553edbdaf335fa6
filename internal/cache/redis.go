// Package cache keeps all-time reports in Redis. Entries are namespaced by a
// generation counter; invalidation bumps the counter so stale entries are
// never read again and simply expire.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultTTL bounds how long an unread generation lingers.
const DefaultTTL = 10 * time.Minute

type client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// Redis implements report.Cache and posting.Invalidator.
type Redis struct {
	client client
	closer func() error
	prefix string
	ttl    time.Duration
	log    *zap.Logger
}

// Connect dials Redis and pings it.
func Connect(ctx context.Context, opts Options, log *zap.Logger) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:            opts.Addr,
		Password:        opts.Password,
		DB:              opts.DB,
		PoolTimeout:     4 * time.Second,
		ConnMaxIdleTime: 5 * time.Minute,
		MaxRetries:      3,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	log.Info("redis connected", zap.String("addr", opts.Addr))

	r := newRedis(rdb, opts, log)
	r.closer = rdb.Close
	return r, nil
}

func newRedis(c client, opts Options, log *zap.Logger) *Redis {
	if opts.Prefix == "" {
		opts.Prefix = "ledger:reports"
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Redis{client: c, prefix: opts.Prefix, ttl: opts.TTL, log: log}
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}

func (r *Redis) generationKey() string {
	return r.prefix + ":gen"
}

func (r *Redis) generation(ctx context.Context) (int64, error) {
	gen, err := r.client.Get(ctx, r.generationKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (r *Redis) entryKey(gen int64, key string) string {
	return fmt.Sprintf("%s:%d:%s", r.prefix, gen, key)
}

// Get decodes the current generation's value for key into dst. It also returns
// the generation it read, which the caller hands back to Set so that a fill
// racing an invalidation lands in the retired generation. A miss returns false
// and no error.
func (r *Redis) Get(ctx context.Context, key string, dst any) (int64, bool, error) {
	gen, err := r.generation(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("reading cache generation: %w", err)
	}
	data, err := r.client.Get(ctx, r.entryKey(gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return gen, false, nil
	}
	if err != nil {
		return gen, false, fmt.Errorf("reading %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return gen, false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return gen, true, nil
}

// Set stores v under key in generation gen.
func (r *Redis) Set(ctx context.Context, gen int64, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := r.client.Set(ctx, r.entryKey(gen, key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Invalidate starts a new generation.
func (r *Redis) Invalidate(ctx context.Context) error {
	gen, err := r.client.Incr(ctx, r.generationKey()).Result()
	if err != nil {
		return fmt.Errorf("bumping cache generation: %w", err)
	}
	r.log.Debug("report cache invalidated", zap.Int64("generation", gen))
	return nil
}
