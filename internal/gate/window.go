package gate

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Window remembers recently accepted dedup keys.
type Window interface {
	// Claim records key at t and reports whether it was free, i.e. no
	// claim for key exists inside the window ending at t.
	Claim(ctx context.Context, key string, t time.Time) (bool, error)
	// Release drops a claim so the key can be accepted again.
	Release(ctx context.Context, key string) error
}

// MemoryWindow is a process-local Window.
type MemoryWindow struct {
	span time.Duration

	mu     sync.Mutex
	claims map[string]time.Time
}

func NewMemoryWindow(span time.Duration) *MemoryWindow {
	return &MemoryWindow{span: span, claims: make(map[string]time.Time)}
}

func (w *MemoryWindow) Claim(_ context.Context, key string, t time.Time) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked(t)
	if last, ok := w.claims[key]; ok && t.Sub(last) < w.span {
		return false, nil
	}
	w.claims[key] = t
	return true, nil
}

func (w *MemoryWindow) Release(_ context.Context, key string) error {
	w.mu.Lock()
	delete(w.claims, key)
	w.mu.Unlock()
	return nil
}

// Seed marks key as claimed at t without checking. Used on startup to
// replay signals persisted before a restart.
func (w *MemoryWindow) Seed(key string, t time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if last, ok := w.claims[key]; !ok || t.After(last) {
		w.claims[key] = t
	}
}

// Len returns the number of live claims.
func (w *MemoryWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.claims)
}

func (w *MemoryWindow) pruneLocked(now time.Time) {
	for k, t := range w.claims {
		if now.Sub(t) >= w.span {
			delete(w.claims, k)
		}
	}
}

const redisPrefix = "scanner:dedup:"

// RedisWindow shares claims between scanner processes. Expiry is left to
// redis, so the window is measured in wall time rather than signal time.
type RedisWindow struct {
	rdb  *goredis.Client
	span time.Duration
}

func NewRedisWindow(rdb *goredis.Client, span time.Duration) *RedisWindow {
	return &RedisWindow{rdb: rdb, span: span}
}

// DialRedis connects and pings.
func DialRedis(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

func (w *RedisWindow) Claim(ctx context.Context, key string, t time.Time) (bool, error) {
	ok, err := w.rdb.SetNX(ctx, redisPrefix+key, t.UnixMilli(), w.span).Result()
	if err != nil {
		return false, fmt.Errorf("redis claim %s: %w", key, err)
	}
	return ok, nil
}

func (w *RedisWindow) Release(ctx context.Context, key string) error {
	if err := w.rdb.Del(ctx, redisPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis release %s: %w", key, err)
	}
	return nil
}
