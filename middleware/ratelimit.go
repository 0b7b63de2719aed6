package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const limiterIdle = 10 * time.Minute

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type ipLimiters struct {
	mu        sync.Mutex
	r         rate.Limit
	b         int
	byIP      map[string]*ipLimiter
	lastSweep time.Time
}

// get returns the limiter for ip. Idle entries are swept on access at most
// once per idle window so no background goroutine is needed.
func (l *ipLimiters) get(ip string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) > limiterIdle {
		cutoff := now.Add(-limiterIdle)
		for k, v := range l.byIP {
			if v.lastSeen.Before(cutoff) {
				delete(l.byIP, k)
			}
		}
		l.lastSweep = now
	}
	il, ok := l.byIP[ip]
	if !ok {
		il = &ipLimiter{limiter: rate.NewLimiter(l.r, l.b)}
		l.byIP[ip] = il
	}
	il.lastSeen = now
	return il.limiter
}

// RateLimit provides per-IP token-bucket rate limiting.
// r = requests per second, b = burst size.
func RateLimit(r rate.Limit, b int) gin.HandlerFunc {
	l := &ipLimiters{r: r, b: b, byIP: make(map[string]*ipLimiter), lastSweep: time.Now()}
	return func(c *gin.Context) {
		if !l.get(c.ClientIP(), time.Now()).Allow() {
			if r > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(1/float64(r)))))
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
