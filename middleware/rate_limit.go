package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/studymate/studymate/utils"
)

type rateLimiter struct {
	limiter *rate.Limiter
	expires time.Time
}

// limiterTable holds one token bucket per client key.
type limiterTable struct {
	mu       sync.Mutex
	limiters map[string]*rateLimiter
	limit    rate.Limit
	burst    int
	idle     time.Duration
}

func newLimiterTable(perMinute int) *limiterTable {
	perMinute = max(perMinute, 1)
	return &limiterTable{
		limiters: map[string]*rateLimiter{},
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    max(perMinute/2, 1),
		idle:     5 * time.Minute,
	}
}

// RateLimitMiddleware applies a token bucket per authenticated user, or per client IP before auth.
func RateLimitMiddleware(perMinute int) gin.HandlerFunc {
	table := newLimiterTable(perMinute)

	return func(ctx *gin.Context) {
		key := "ip:" + ctx.ClientIP()
		if uid, ok := ctx.Get(ContextUserIDKey); ok {
			key = fmt.Sprintf("user:%v", uid)
		}

		if !table.allow(key, time.Now()) {
			ctx.Header("Retry-After", "60")
			utils.Error(ctx, http.StatusTooManyRequests, 42901, "rate limit exceeded")
			ctx.Abort()
			return
		}

		ctx.Next()
	}
}

func (t *limiterTable) allow(key string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for k, l := range t.limiters {
		if now.After(l.expires) {
			delete(t.limiters, k)
		}
	}

	l, ok := t.limiters[key]
	if !ok {
		l = &rateLimiter{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.limiters[key] = l
	}
	l.expires = now.Add(t.idle)
	return l.limiter.AllowN(now, 1)
}
