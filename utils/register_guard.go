package utils

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RegisterGuard throttles account creation per client IP. It uses Redis when
// available and a process-local table otherwise. Zero limits disable a check.
type RegisterGuard struct {
	cooldown    time.Duration
	maxPerDay   int
	now         func() time.Time
	mu          sync.Mutex
	lastAttempt map[string]time.Time
	daily       map[string]int
}

// NewRegisterGuard creates a guard allowing one attempt per cooldown and maxPerDay successes per IP.
func NewRegisterGuard(cooldown time.Duration, maxPerDay int) *RegisterGuard {
	return &RegisterGuard{
		cooldown:    cooldown,
		maxPerDay:   maxPerDay,
		now:         time.Now,
		lastAttempt: map[string]time.Time{},
		daily:       map[string]int{},
	}
}

func regKey(parts ...string) string {
	key := "reg"
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

// TryAttempt reports whether ip is outside its cooldown window and starts a new one.
func (g *RegisterGuard) TryAttempt(ctx context.Context, ip string) bool {
	if g.cooldown <= 0 {
		return true
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		ok, err := rc.SetNX(ctx, regKey("cooldown", ip), "1", g.cooldown).Result()
		if err == nil {
			return ok
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if last, ok := g.lastAttempt[ip]; ok && now.Sub(last) < g.cooldown {
		return false
	}
	g.lastAttempt[ip] = now
	return true
}

// UnderDailyLimit reports whether ip may still register today.
func (g *RegisterGuard) UnderDailyLimit(ctx context.Context, ip string) bool {
	if g.maxPerDay <= 0 {
		return true
	}
	day := g.now().Format("20060102")
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		n, err := rc.Get(ctx, regKey("succday", ip, day)).Int()
		if err == redis.Nil {
			return true
		}
		if err == nil {
			return n < g.maxPerDay
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.daily[regKey(ip, day)] < g.maxPerDay
}

// RecordSuccess counts a completed registration for ip.
func (g *RegisterGuard) RecordSuccess(ctx context.Context, ip string) {
	if g.maxPerDay <= 0 {
		return
	}
	now := g.now()
	day := now.Format("20060102")
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		key := regKey("succday", ip, day)
		if err := rc.Incr(ctx, key).Err(); err == nil {
			_ = rc.Expire(ctx, key, 24*time.Hour).Err()
			return
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for k := range g.daily {
		if len(k) < 8 || k[len(k)-8:] != day {
			delete(g.daily, k)
		}
	}
	g.daily[regKey(ip, day)]++
}
