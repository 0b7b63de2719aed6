// Package logging holds logging helpers shared by the bot core.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Limiter throttles repeated log lines per key. Hot paths that can fault on
// every tick (world refresh, condition evaluation) log through it so a broken
// provider does not flood the output.
type Limiter struct {
	logger *zap.Logger
	limit  rate.Limit
	burst  int

	mu   sync.Mutex
	keys map[string]*keyState
}

type keyState struct {
	lim        *rate.Limiter
	suppressed int
}

// NewLimiter creates a Limiter allowing rps lines per second per key.
func NewLimiter(logger *zap.Logger, rps float64, burst int) *Limiter {
	if rps <= 0 {
		rps = 0.2
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		logger: logger,
		limit:  rate.Limit(rps),
		burst:  burst,
		keys:   make(map[string]*keyState),
	}
}

// Warn logs msg at warn level if key's budget allows.
func (l *Limiter) Warn(key, msg string, fields ...zap.Field) {
	if l == nil || l.logger == nil {
		return
	}
	if f, ok := l.allow(key); ok {
		l.logger.Warn(msg, append(fields, f...)...)
	}
}

// Debug logs msg at debug level if key's budget allows.
func (l *Limiter) Debug(key, msg string, fields ...zap.Field) {
	if l == nil || l.logger == nil {
		return
	}
	if f, ok := l.allow(key); ok {
		l.logger.Debug(msg, append(fields, f...)...)
	}
}

// Suppressed returns how many lines were dropped for key since it last logged.
func (l *Limiter) Suppressed(key string) int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if ks, ok := l.keys[key]; ok {
		return ks.suppressed
	}
	return 0
}

// Reset forgets all per-key state.
func (l *Limiter) Reset() {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.keys = make(map[string]*keyState)
	l.mu.Unlock()
}

func (l *Limiter) allow(key string) ([]zap.Field, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ks, ok := l.keys[key]
	if !ok {
		ks = &keyState{lim: rate.NewLimiter(l.limit, l.burst)}
		l.keys[key] = ks
	}
	if !ks.lim.Allow() {
		ks.suppressed++
		return nil, false
	}
	var extra []zap.Field
	if ks.suppressed > 0 {
		extra = append(extra, zap.Int("suppressed", ks.suppressed))
		ks.suppressed = 0
	}
	return extra, true
}
