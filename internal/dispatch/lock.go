package dispatch

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Lock serialises dispatch runs of one campaign. A Lock value is used by one run.
type Lock interface {
	// Acquire tries to take the lock without blocking. It returns true on success.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lock up if this value still holds it.
	Release(ctx context.Context) error
}

// LockFactory returns a fresh Lock for key.
type LockFactory func(key string) Lock

// DefaultLockTTL bounds how long a crashed run can hold a Redis lock.
const DefaultLockTTL = 30 * time.Minute

// RedisLock is a SET NX lock with a random ownership token.
type RedisLock struct {
	client redis.Cmdable
	key    string
	value  string
	ttl    time.Duration
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// NewRedisLock creates a lock stored under "lock:"+key.
func NewRedisLock(client redis.Cmdable, key string, ttl time.Duration) *RedisLock {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisLock{client: client, key: "lock:" + key, value: hex.EncodeToString(b), ttl: ttl}
}

// RedisLocks returns a LockFactory backed by client.
func RedisLocks(client redis.Cmdable, ttl time.Duration) LockFactory {
	return func(key string) Lock { return NewRedisLock(client, key, ttl) }
}

// Acquire implements Lock.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	return ok, nil
}

// Release implements Lock. Only the owner's token deletes the key.
func (l *RedisLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.value).Err(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	return nil
}

// PGAdvisoryLock uses a session-scoped PostgreSQL advisory lock. The connection that
// took the lock is held until Release so the unlock runs on the same session.
type PGAdvisoryLock struct {
	pool   *pgxpool.Pool
	lockID int64
	conn   *pgxpool.Conn
}

// NewPGAdvisoryLock derives a lock ID from key.
func NewPGAdvisoryLock(pool *pgxpool.Pool, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return &PGAdvisoryLock{pool: pool, lockID: int64(h.Sum64())}
}

// PGAdvisoryLocks returns a LockFactory backed by pool.
func PGAdvisoryLocks(pool *pgxpool.Pool) LockFactory {
	return func(key string) Lock { return NewPGAdvisoryLock(pool, key) }
}

// Acquire implements Lock.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to acquire connection for advisory lock: %w", err)
	}
	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Release()
		return false, fmt.Errorf("failed to take advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release implements Lock.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Release()
		l.conn = nil
	}()
	if _, err := l.conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", l.lockID); err != nil {
		return fmt.Errorf("failed to release advisory lock: %w", err)
	}
	return nil
}

// LocalLocks is an in-process lock table for single-instance deployments and tests.
type LocalLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocalLocks creates an empty lock table.
func NewLocalLocks() *LocalLocks {
	return &LocalLocks{held: make(map[string]bool)}
}

// Factory returns a LockFactory over the table.
func (t *LocalLocks) Factory() LockFactory {
	return func(key string) Lock { return &localLock{table: t, key: key} }
}

type localLock struct {
	table *LocalLocks
	key   string
	owned bool
}

func (l *localLock) Acquire(context.Context) (bool, error) {
	l.table.mu.Lock()
	defer l.table.mu.Unlock()
	if l.table.held[l.key] {
		return false, nil
	}
	l.table.held[l.key] = true
	l.owned = true
	return true, nil
}

func (l *localLock) Release(context.Context) error {
	l.table.mu.Lock()
	defer l.table.mu.Unlock()
	if l.owned {
		delete(l.table.held, l.key)
		l.owned = false
	}
	return nil
}
