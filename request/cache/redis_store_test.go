package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/imtaco/reqflow/internal/log"
	"github.com/imtaco/reqflow/request"
)

type RedisStoreTestSuite struct {
	suite.Suite
	mr     *miniredis.Miniredis
	client *redis.Client
	clock  *clockwork.FakeClock
	store  *RedisStore
	ctx    context.Context
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreTestSuite))
}

func (s *RedisStoreTestSuite) SetupTest() {
	s.mr = miniredis.RunT(s.T())
	s.client = redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.clock = clockwork.NewFakeClock()
	s.store = NewRedisStore(s.client, "reqflow:", time.Hour, s.clock, log.NewNop())
	s.ctx = context.Background()
}

func (s *RedisStoreTestSuite) TearDownTest() {
	s.client.Close()
	s.mr.Close()
}

func (s *RedisStoreTestSuite) TestRoundTripAsRawJSON() {
	s.store.Set(s.ctx, "users", map[string]int{"n": 1})
	s.clock.Advance(3 * time.Second)

	data, age, ok := s.store.Get(s.ctx, "users")
	s.Require().True(ok)
	s.Equal(3*time.Second, age)
	s.JSONEq(`{"n":1}`, string(data.(json.RawMessage)))

	s.True(s.mr.Exists("reqflow:users"))
	s.Equal(time.Hour, s.mr.TTL("reqflow:users"))
}

func (s *RedisStoreTestSuite) TestMissAndDelete() {
	_, _, ok := s.store.Get(s.ctx, "absent")
	s.False(ok)

	s.store.Set(s.ctx, "users", "x")
	s.store.Delete(s.ctx, "users")
	_, _, ok = s.store.Get(s.ctx, "users")
	s.False(ok)
}

func (s *RedisStoreTestSuite) TestCorruptEntryDropped() {
	s.Require().NoError(s.mr.Set("reqflow:users", "not json"))

	_, _, ok := s.store.Get(s.ctx, "users")
	s.False(ok)
	s.False(s.mr.Exists("reqflow:users"))
}

func (s *RedisStoreTestSuite) TestUnreachableIsMiss() {
	s.store.Set(s.ctx, "users", "x")
	s.mr.Close()

	_, _, ok := s.store.Get(s.ctx, "users")
	s.False(ok)
}

func (s *RedisStoreTestSuite) TestUnencodableSkipped() {
	s.store.Set(s.ctx, "users", func() {})
	s.False(s.mr.Exists("reqflow:users"))
}

func (s *RedisStoreTestSuite) TestSharesDataBetweenEngines() {
	calls := 0
	fetch := func(context.Context, ...any) (any, error) {
		calls++
		return map[string]int{"n": calls}, nil
	}
	logger := log.NewNop()
	opts := Options{StaleTime: time.Minute}

	first := request.NewEngine(logger, New(logger, s.store, opts)).New("users", fetch, nil)
	first.Run(s.ctx)

	// a second process sees the entry through redis
	other := NewRedisStore(s.client, "reqflow:", time.Hour, s.clock, logger)
	second := request.NewEngine(logger, New(logger, other, opts)).New("users", fetch, nil)

	data := second.Run(s.ctx)
	s.Equal(1, calls)
	s.JSONEq(`{"n":1}`, string(data.(json.RawMessage)))
}
