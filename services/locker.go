package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/studymate/studymate/utils"
)

// Locker serializes transitions on one key across requests.
type Locker interface {
	// Acquire takes key for at most ttl and returns its release func.
	// It waits until ctx is done or the wait time runs out, then returns ErrBusy.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

const (
	lockRetryEvery = 25 * time.Millisecond
	lockMaxWait    = 2 * time.Second
)

// NewLocker prefers Redis and falls back to an in-process lock table (single instance only).
func NewLocker() Locker {
	if rc := utils.GetRedis(); rc != nil {
		return &RedisLocker{rc: rc}
	}
	return NewMemoryLocker()
}

// MemoryLocker is a process-local Locker.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
}

// NewMemoryLocker creates an empty lock table.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: map[string]time.Time{}}
}

func (l *MemoryLocker) tryAcquire(key string, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return false
	}
	l.held[key] = now.Add(ttl)
	return true
}

// Acquire implements Locker.
func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	err := waitFor(ctx, func() (bool, error) { return l.tryAcquire(key, ttl), nil })
	if err != nil {
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// RedisLocker uses SET NX with a random token so only the owner can release.
type RedisLocker struct {
	rc *redis.Client
}

const releaseScript = `if redis.call('GET', KEYS[1]) == ARGV[1] then return redis.call('DEL', KEYS[1]) end; return 0`

// Acquire implements Locker.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	err := waitFor(ctx, func() (bool, error) {
		return l.rc.SetNX(ctx, key, token, ttl).Result()
	})
	if err != nil {
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := l.rc.Eval(rctx, releaseScript, []string{key}, token).Err(); err != nil {
				utils.Sugar.Warnf("release lock %s failed: %v", key, err)
			}
		})
	}, nil
}

func waitFor(ctx context.Context, try func() (bool, error)) error {
	deadline := time.Now().Add(lockMaxWait)
	for {
		ok, err := try()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrBusy
		}
		select {
		case <-ctx.Done():
			return ErrBusy
		case <-time.After(lockRetryEvery):
		}
	}
}
