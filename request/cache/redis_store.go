package cache

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/imtaco/reqflow/internal/errors"
	"github.com/imtaco/reqflow/internal/log"
)

// redisEntry is the stored form of a cached value. Data goes through JSON,
// so it reads back as json.RawMessage whatever type was written.
type redisEntry struct {
	At   int64           `json:"at"`
	Data json.RawMessage `json:"data"`
}

// RedisStore shares cached data between processes.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	clock  clockwork.Clock
	logger *log.Logger
}

// NewRedisStore stores entries under prefix+key. A positive ttl bounds how
// long redis keeps an entry regardless of StaleTime.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration, clock clockwork.Clock, logger *log.Logger) *RedisStore {
	if client == nil {
		panic("redis client is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		clock:  clock,
		logger: logger.Module("RedisStore"),
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) (any, time.Duration, bool) {
	bs, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, 0, false
	}
	if err != nil {
		s.logger.Warn("cache read failed", log.Key(key), log.Error(err))
		return nil, 0, false
	}

	var e redisEntry
	if err := json.Unmarshal(bs, &e); err != nil {
		s.logger.Warn("dropping corrupt cache entry", log.Key(key), log.Error(err))
		s.Delete(ctx, key)
		return nil, 0, false
	}
	return e.Data, s.clock.Since(time.Unix(0, e.At)), true
}

func (s *RedisStore) Set(ctx context.Context, key string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		s.logger.Warn("data not cacheable", log.Key(key), log.Error(err))
		return
	}
	bs, err := json.Marshal(redisEntry{At: s.clock.Now().UnixNano(), Data: raw})
	if err != nil {
		s.logger.Warn("encode cache entry", log.Key(key), log.Error(err))
		return
	}
	if err := s.client.Set(ctx, s.prefix+key, bs, s.ttl).Err(); err != nil {
		s.logger.Warn("cache write failed", log.Key(key), log.Error(err))
	}
}

func (s *RedisStore) Delete(ctx context.Context, key string) {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		s.logger.Warn("cache delete failed", log.Key(key), log.Error(err))
	}
}
