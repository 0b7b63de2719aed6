package local

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when a key or field does not exist.
var ErrNotFound = errors.New("cache: key not found")

// Config holds LocalCache settings.
type Config struct {
	GCInterval time.Duration
}

type entry struct {
	data     string
	expireAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}

// LocalCache is the single-process Cache used when no Redis is configured.
// Hashes and lists carry an optional expiry like plain keys do.
type LocalCache struct {
	kv     sync.Map // key → *entry
	hashes sync.Map // key → *lockedHash
	lists  sync.Map // key → *lockedList

	expMu  sync.Mutex
	expiry map[string]time.Time // hash/list key → deadline

	gcInterval time.Duration
	stopGC     chan struct{}
	stopOnce   sync.Once
}

// NewCache creates a LocalCache and starts its expiry sweeper.
func NewCache(cfg Config) (*LocalCache, error) {
	interval := cfg.GCInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	c := &LocalCache{
		expiry:     make(map[string]time.Time),
		gcInterval: interval,
		stopGC:     make(chan struct{}),
	}
	go c.runGC()
	return c, nil
}

// Close stops the sweeper. Safe to call more than once.
func (c *LocalCache) Close() {
	c.stopOnce.Do(func() { close(c.stopGC) })
}

func (c *LocalCache) runGC() {
	ticker := time.NewTicker(c.gcInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			c.sweep(now)
		case <-c.stopGC:
			return
		}
	}
}

func (c *LocalCache) sweep(now time.Time) {
	c.kv.Range(func(k, v interface{}) bool {
		if e, ok := v.(*entry); ok && e.expired(now) {
			c.kv.Delete(k)
		}
		return true
	})
	c.expMu.Lock()
	defer c.expMu.Unlock()
	for key, at := range c.expiry {
		if now.After(at) {
			c.hashes.Delete(key)
			c.lists.Delete(key)
			delete(c.expiry, key)
		}
	}
}

// containerExpired drops an expired hash or list on access.
func (c *LocalCache) containerExpired(key string) bool {
	c.expMu.Lock()
	at, ok := c.expiry[key]
	if ok && time.Now().After(at) {
		delete(c.expiry, key)
		c.expMu.Unlock()
		c.hashes.Delete(key)
		c.lists.Delete(key)
		return true
	}
	c.expMu.Unlock()
	return false
}

// ---- KV ----

func (c *LocalCache) Get(_ context.Context, key string) (string, error) {
	v, ok := c.kv.Load(key)
	if !ok {
		return "", ErrNotFound
	}
	e := v.(*entry)
	if e.expired(time.Now()) {
		c.kv.Delete(key)
		return "", ErrNotFound
	}
	return e.data, nil
}

func (c *LocalCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	e := &entry{data: value}
	if ttl > 0 {
		e.expireAt = time.Now().Add(ttl)
	}
	c.kv.Store(key, e)
	return nil
}

// Del removes keys of any kind.
func (c *LocalCache) Del(_ context.Context, keys ...string) error {
	c.expMu.Lock()
	for _, k := range keys {
		c.kv.Delete(k)
		c.hashes.Delete(k)
		c.lists.Delete(k)
		delete(c.expiry, k)
	}
	c.expMu.Unlock()
	return nil
}

func (c *LocalCache) Exists(ctx context.Context, key string) (bool, error) {
	if _, err := c.Get(ctx, key); err == nil {
		return true, nil
	}
	if c.containerExpired(key) {
		return false, nil
	}
	_, h := c.hashes.Load(key)
	_, l := c.lists.Load(key)
	return h || l, nil
}

// Expire sets a deadline on an existing key.
func (c *LocalCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if v, ok := c.kv.Load(key); ok {
		e := v.(*entry)
		if e.expired(time.Now()) {
			c.kv.Delete(key)
			return ErrNotFound
		}
		c.kv.Store(key, &entry{data: e.data, expireAt: time.Now().Add(ttl)})
		return nil
	}
	_, h := c.hashes.Load(key)
	_, l := c.lists.Load(key)
	if !h && !l {
		return ErrNotFound
	}
	c.expMu.Lock()
	c.expiry[key] = time.Now().Add(ttl)
	c.expMu.Unlock()
	return nil
}

// ---- Hash ----

type lockedHash struct {
	mu     sync.RWMutex
	fields map[string]string
}

func (c *LocalCache) hash(key string, create bool) *lockedHash {
	if c.containerExpired(key) && !create {
		return nil
	}
	if !create {
		v, ok := c.hashes.Load(key)
		if !ok {
			return nil
		}
		return v.(*lockedHash)
	}
	v, _ := c.hashes.LoadOrStore(key, &lockedHash{fields: make(map[string]string)})
	return v.(*lockedHash)
}

func (c *LocalCache) HSet(_ context.Context, key, field, value string) error {
	h := c.hash(key, true)
	h.mu.Lock()
	h.fields[field] = value
	h.mu.Unlock()
	return nil
}

func (c *LocalCache) HGet(_ context.Context, key, field string) (string, error) {
	h := c.hash(key, false)
	if h == nil {
		return "", ErrNotFound
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.fields[field]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (c *LocalCache) HGetAll(_ context.Context, key string) (map[string]string, error) {
	result := make(map[string]string)
	h := c.hash(key, false)
	if h == nil {
		return result, nil
	}
	h.mu.RLock()
	for k, v := range h.fields {
		result[k] = v
	}
	h.mu.RUnlock()
	return result, nil
}

func (c *LocalCache) HDel(_ context.Context, key string, fields ...string) error {
	h := c.hash(key, false)
	if h == nil {
		return nil
	}
	h.mu.Lock()
	for _, f := range fields {
		delete(h.fields, f)
	}
	h.mu.Unlock()
	return nil
}

// ---- List ----

type lockedList struct {
	mu   sync.Mutex
	data []string
}

func (c *LocalCache) list(key string, create bool) *lockedList {
	if c.containerExpired(key) && !create {
		return nil
	}
	if !create {
		v, ok := c.lists.Load(key)
		if !ok {
			return nil
		}
		return v.(*lockedList)
	}
	v, _ := c.lists.LoadOrStore(key, &lockedList{})
	return v.(*lockedList)
}

// LPush prepends values one by one, so the last value ends up at index 0.
func (c *LocalCache) LPush(_ context.Context, key string, values ...string) error {
	l := c.list(key, true)
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(values)+len(l.data))
	for i := len(values) - 1; i >= 0; i-- {
		out = append(out, values[i])
	}
	l.data = append(out, l.data...)
	return nil
}

// normRange resolves Redis-style inclusive indexes, negatives counting from the end.
func normRange(start, stop, n int64) (int64, int64, bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop, true
}

func (c *LocalCache) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	l := c.list(key, false)
	if l == nil {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	s, e, ok := normRange(start, stop, int64(len(l.data)))
	if !ok {
		return nil, nil
	}
	result := make([]string, e-s+1)
	copy(result, l.data[s:e+1])
	return result, nil
}

func (c *LocalCache) LTrim(_ context.Context, key string, start, stop int64) error {
	l := c.list(key, false)
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	s, e, ok := normRange(start, stop, int64(len(l.data)))
	if !ok {
		l.data = nil
		return nil
	}
	l.data = append([]string(nil), l.data[s:e+1]...)
	return nil
}
