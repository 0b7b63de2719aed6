package cache

import (
	"context"
	"errors"
	"time"

	"github.com/kasuganosora/rotationbot/cache/local"
	cacheredis "github.com/kasuganosora/rotationbot/cache/redis"
)

// Cache defines the KV / Hash / List operations used for operator sessions
// and the cast ledger.
type Cache interface {
	// KV
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Hash
	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error

	// List
	LPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LTrim(ctx context.Context, key string, start, stop int64) error

	Close()
}

// IsNotFound reports a missing key or field from either backend.
func IsNotFound(err error) bool {
	return errors.Is(err, local.ErrNotFound) || errors.Is(err, cacheredis.ErrNotFound)
}

// Message is a received pub/sub message.
type Message struct {
	Channel string
	Payload string
}

// PubSub defines channel publish/subscribe operations.
type PubSub interface {
	Publish(ctx context.Context, channel, message string) error
	Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error)
}

// CacheConfig holds configuration for both Redis and LocalCache.
// KeyPrefix only applies to Redis; a local cache is private to the process.
type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	KeyPrefix       string        `mapstructure:"key_prefix"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

func (cfg CacheConfig) redis() cacheredis.Config {
	return cacheredis.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Prefix:   cfg.KeyPrefix,
	}
}

// NewCache returns a Cache backed by Redis if RedisAddr is set,
// otherwise an in-process LocalCache.
func NewCache(cfg CacheConfig) (Cache, error) {
	if cfg.RedisAddr != "" {
		return cacheredis.NewCache(cfg.redis())
	}
	return local.NewCache(local.Config{GCInterval: cfg.LocalGCInterval})
}

// NewPubSub returns a PubSub backed by Redis if RedisAddr is set,
// otherwise an in-process LocalPubSub.
func NewPubSub(cfg CacheConfig) (PubSub, error) {
	if cfg.RedisAddr != "" {
		rps, err := cacheredis.NewPubSub(cfg.redis())
		if err != nil {
			return nil, err
		}
		return pubsubFunc(rps.Publish, func(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
			ch, cancel, err := rps.Subscribe(ctx, channels...)
			if err != nil {
				return nil, nil, err
			}
			return bridge(ch, func(m *cacheredis.RedisMessage) *Message {
				return &Message{Channel: m.Channel, Payload: m.Payload}
			}), cancel, nil
		}), nil
	}

	bufSize := cfg.LocalPubSubBuf
	if bufSize <= 0 {
		bufSize = 256
	}
	lps := local.NewPubSub(bufSize)
	return pubsubFunc(lps.Publish, func(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
		ch, cancel, err := lps.Subscribe(ctx, channels...)
		if err != nil {
			return nil, nil, err
		}
		return bridge(ch, func(m *local.LocalMessage) *Message {
			return &Message{Channel: m.Channel, Payload: m.Payload}
		}), cancel, nil
	}), nil
}

// ---- backend message bridging ----

type funcPubSub struct {
	publish   func(ctx context.Context, channel, message string) error
	subscribe func(ctx context.Context, channels ...string) (<-chan *Message, func(), error)
}

func pubsubFunc(
	publish func(ctx context.Context, channel, message string) error,
	subscribe func(ctx context.Context, channels ...string) (<-chan *Message, func(), error),
) PubSub {
	return &funcPubSub{publish: publish, subscribe: subscribe}
}

func (p *funcPubSub) Publish(ctx context.Context, channel, message string) error {
	return p.publish(ctx, channel, message)
}

func (p *funcPubSub) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	return p.subscribe(ctx, channels...)
}

// bridge converts a backend channel into a channel of *Message. The output
// closes when the input does.
func bridge[T any](in <-chan T, conv func(T) *Message) <-chan *Message {
	out := make(chan *Message, cap(in))
	go func() {
		defer close(out)
		for m := range in {
			out <- conv(m)
		}
	}()
	return out
}
