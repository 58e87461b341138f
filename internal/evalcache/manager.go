package evalcache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/flagops/flagservice/internal/rollout"
)

const redisBreakerDuration = 30 * time.Second

// Options configure the cache manager.
type Options struct {
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// RedisClientFactory constructs a Redis client for the given options.
type RedisClientFactory func(options *redis.Options) *redis.Client

// Manager caches evaluation results, preferring Redis and falling back
// to memory while a breaker is tripped.
type Manager struct {
	opts           Options
	nowFn          func() time.Time
	memory         *MemoryStore
	newRedisClient RedisClientFactory

	mu           sync.Mutex
	redisStore   *RedisStore
	breakerUntil time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

// NewManager constructs a Manager with default dependencies when nil.
func NewManager(opts Options, nowFn func() time.Time, newRedisClient RedisClientFactory) *Manager {
	if nowFn == nil {
		nowFn = time.Now
	}
	if newRedisClient == nil {
		newRedisClient = redis.NewClient
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	return &Manager{
		opts:           opts,
		nowFn:          nowFn,
		memory:         NewMemoryStore(),
		newRedisClient: newRedisClient,
	}
}

// Get returns a cached evaluation from the best available backend.
func (m *Manager) Get(ctx context.Context, flagName, userID string) (*rollout.Evaluation, bool, error) {
	if m == nil {
		return nil, false, nil
	}
	now := m.nowFn()
	if store := m.activeRedis(ctx, now); store != nil {
		eval, ok, errGet := store.Get(ctx, flagName, userID)
		if errGet == nil {
			m.count(ok)
			return eval, ok, nil
		}
		m.tripBreaker(errGet, now)
	}
	eval, ok, errGet := m.memory.Get(ctx, flagName, userID)
	if errGet != nil {
		return nil, false, errGet
	}
	m.count(ok)
	return eval, ok, nil
}

// Set stores an evaluation in the best available backend.
func (m *Manager) Set(ctx context.Context, eval *rollout.Evaluation) error {
	if m == nil || eval == nil {
		return nil
	}
	now := m.nowFn()
	if store := m.activeRedis(ctx, now); store != nil {
		errSet := store.Set(ctx, eval, m.opts.TTL)
		if errSet == nil {
			return nil
		}
		m.tripBreaker(errSet, now)
	}
	return m.memory.Set(ctx, eval, m.opts.TTL)
}

// Invalidate evicts one cached evaluation from every backend.
func (m *Manager) Invalidate(ctx context.Context, flagName, userID string) error {
	if m == nil {
		return nil
	}
	errMemory := m.memory.Invalidate(ctx, flagName, userID)
	if store := m.activeRedis(ctx, m.nowFn()); store != nil {
		if errRedis := store.Invalidate(ctx, flagName, userID); errRedis != nil {
			m.tripBreaker(errRedis, m.nowFn())
			return errRedis
		}
	}
	return errMemory
}

// InvalidateAll evicts every cached evaluation from every backend.
// Both backends are cleared so a breaker flip cannot resurrect stale
// entries.
func (m *Manager) InvalidateAll(ctx context.Context) error {
	if m == nil {
		return nil
	}
	errMemory := m.memory.InvalidateAll(ctx)
	if store := m.activeRedis(ctx, m.nowFn()); store != nil {
		if errRedis := store.InvalidateAll(ctx); errRedis != nil {
			m.tripBreaker(errRedis, m.nowFn())
			return errRedis
		}
	}
	return errMemory
}

// Stats reports hit and miss counters plus the active backend name.
func (m *Manager) Stats() Stats {
	if m == nil {
		return Stats{Backend: "memory"}
	}
	backend := "memory"
	m.mu.Lock()
	if m.redisStore != nil && (m.breakerUntil.IsZero() || !m.nowFn().Before(m.breakerUntil)) {
		backend = "redis"
	}
	m.mu.Unlock()
	return Stats{
		Hits:    m.hits.Load(),
		Misses:  m.misses.Load(),
		Entries: int64(m.memory.Len()),
		Backend: backend,
	}
}

func (m *Manager) count(hit bool) {
	if hit {
		m.hits.Add(1)
		return
	}
	m.misses.Add(1)
}

func (m *Manager) activeRedis(ctx context.Context, now time.Time) *RedisStore {
	if m == nil || strings.TrimSpace(m.opts.RedisAddr) == "" {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if m.isBreakerActive(now) {
		return nil
	}
	store, errEnsure := m.ensureRedis(ctx)
	if errEnsure != nil {
		m.tripBreaker(errEnsure, now)
		return nil
	}
	return store
}

func (m *Manager) isBreakerActive(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.breakerUntil.IsZero() {
		return false
	}
	if now.Before(m.breakerUntil) {
		return true
	}
	m.breakerUntil = time.Time{}
	return false
}

func (m *Manager) tripBreaker(err error, now time.Time) {
	if err == nil || m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.breakerUntil.IsZero() && now.Before(m.breakerUntil) {
		return
	}
	m.breakerUntil = now.Add(redisBreakerDuration)
	log.WithError(err).Warn("evalcache: redis unavailable, falling back to memory")
}

func (m *Manager) ensureRedis(ctx context.Context) (*RedisStore, error) {
	addr := strings.TrimSpace(m.opts.RedisAddr)
	if addr == "" {
		return nil, errors.New("evalcache redis: missing address")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redisStore != nil {
		return m.redisStore, nil
	}

	client := m.newRedisClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(m.opts.RedisPassword),
		DB:       m.opts.RedisDB,
	})
	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if errPing := client.Ping(ctxPing).Err(); errPing != nil {
		_ = client.Close()
		return nil, errPing
	}
	m.redisStore = NewRedisStore(client, m.opts.RedisPrefix)
	return m.redisStore, nil
}
