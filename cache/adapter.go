package cache

import (
	"context"
	"time"

	"github.com/fateforge/server/cache/local"
	cacheredis "github.com/fateforge/server/cache/redis"
)

const defaultPubSubBuf = 256

// Cache is the KV store behind login tokens: "login:<token>" maps to
// the account id for the token's lifetime.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Message is a received pub/sub message. Channel distinguishes the
// session channel from the announce channel on multi-channel
// subscriptions.
type Message struct {
	Channel string
	Payload string
}

// PubSub carries broadcast events between the engine and its ws/sse
// relays. Subscribe returns a receive channel and a cancel func; the
// channel closes after cancel.
type PubSub interface {
	Publish(ctx context.Context, channel, message string) error
	Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error)
}

// CacheConfig selects the backend: a set RedisAddr means Redis, empty
// means the in-process implementations.
type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

func (cfg CacheConfig) redis() cacheredis.Config {
	return cacheredis.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// NewCache builds the login-token store for the configured backend.
func NewCache(cfg CacheConfig) (Cache, error) {
	if cfg.RedisAddr != "" {
		return cacheredis.NewCache(cfg.redis())
	}
	return local.NewCache(local.Config{GCInterval: cfg.LocalGCInterval})
}

// NewPubSub builds the broadcast backend. Local pub/sub is the default
// and the one tests run against; Redis lets several engine instances
// share one set of session channels.
func NewPubSub(cfg CacheConfig) (PubSub, error) {
	buf := cfg.LocalPubSubBuf
	if buf <= 0 {
		buf = defaultPubSubBuf
	}
	if cfg.RedisAddr != "" {
		rps, err := cacheredis.NewPubSub(cfg.redis())
		if err != nil {
			return nil, err
		}
		return pubSubFunc[*cacheredis.RedisMessage]{
			publish:   rps.Publish,
			subscribe: rps.Subscribe,
			convert: func(m *cacheredis.RedisMessage) *Message {
				return &Message{Channel: m.Channel, Payload: m.Payload}
			},
		}, nil
	}
	lps := local.NewPubSub(buf)
	return pubSubFunc[*local.LocalMessage]{
		publish:   lps.Publish,
		subscribe: lps.Subscribe,
		convert: func(m *local.LocalMessage) *Message {
			return &Message{Channel: m.Channel, Payload: m.Payload}
		},
	}, nil
}

// pubSubFunc bridges a backend's message type to cache.Message so both
// backends satisfy the one PubSub interface.
type pubSubFunc[M any] struct {
	publish   func(ctx context.Context, channel, message string) error
	subscribe func(ctx context.Context, channels ...string) (<-chan M, func(), error)
	convert   func(M) *Message
}

func (p pubSubFunc[M]) Publish(ctx context.Context, channel, message string) error {
	return p.publish(ctx, channel, message)
}

func (p pubSubFunc[M]) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	backendCh, cancel, err := p.subscribe(ctx, channels...)
	if err != nil {
		return nil, nil, err
	}
	out := make(chan *Message, defaultPubSubBuf)
	go func() {
		defer close(out)
		for m := range backendCh {
			out <- p.convert(m)
		}
	}()
	return out, cancel, nil
}
