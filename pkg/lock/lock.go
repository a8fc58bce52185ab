package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock is a single named lock. Instances are not safe for concurrent use;
// create one per critical section.
type Lock interface {
	// Acquire returns false when someone else holds the lock.
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
	// Extend resets the expiry to ttl from now. It fails with ErrNotHeld
	// once the lock has expired or passed to another owner.
	Extend(ctx context.Context, ttl time.Duration) error
}

var ErrNotHeld = errors.New("lock not held")

type Locker interface {
	NewLock(key string, ttl time.Duration) Lock
}

// New returns a Redis-backed locker when a client is given and an
// in-process one otherwise. The in-process locker only guards a single
// instance.
func New(client *redis.Client) Locker {
	if client != nil {
		return &RedisLocker{client: client}
	}
	return NewLocalLocker()
}

// NewRedisClient parses a redis:// URL and checks the connection.
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

type RedisLocker struct {
	client *redis.Client
}

func (l *RedisLocker) NewLock(key string, ttl time.Duration) Lock {
	return NewRedisLock(l.client, key, ttl)
}

// LocalLocker keeps held keys in a map with their expiry.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]localEntry
	now  func() time.Time
}

type localEntry struct {
	owner   *localLock
	expires time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localEntry), now: time.Now}
}

func (l *LocalLocker) NewLock(key string, ttl time.Duration) Lock {
	return &localLock{locker: l, key: key, ttl: ttl}
}

type localLock struct {
	locker *LocalLocker
	key    string
	ttl    time.Duration
}

func (l *localLock) Acquire(ctx context.Context) (bool, error) {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()

	now := l.locker.now()
	if entry, ok := l.locker.held[l.key]; ok && now.Before(entry.expires) {
		return false, nil
	}
	l.locker.held[l.key] = localEntry{owner: l, expires: now.Add(l.ttl)}
	return true, nil
}

func (l *localLock) Release(ctx context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()

	if entry, ok := l.locker.held[l.key]; ok && entry.owner == l {
		delete(l.locker.held, l.key)
	}
	return nil
}

func (l *localLock) Extend(ctx context.Context, ttl time.Duration) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()

	now := l.locker.now()
	entry, ok := l.locker.held[l.key]
	if !ok || entry.owner != l || !now.Before(entry.expires) {
		return fmt.Errorf("extend lock %s: %w", l.key, ErrNotHeld)
	}
	entry.expires = now.Add(ttl)
	l.locker.held[l.key] = entry
	return nil
}
