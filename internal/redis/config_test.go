package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/suite"

	"github.com/imtaco/reqflow/internal/config"
)

type RedisConfigTestSuite struct {
	suite.Suite
}

func TestRedisConfigSuite(t *testing.T) {
	suite.Run(t, new(RedisConfigTestSuite))
}

func (s *RedisConfigTestSuite) TestDefaults() {
	cfg, err := config.Load(&struct {
		Redis Config `mapstructure:"redis"`
	}{}, func(v *viper.Viper) { Setup(v, "redis") })
	s.Require().NoError(err)

	s.Equal("127.0.0.1:6379", cfg.Redis.Addr)
	s.Equal(3*time.Second, cfg.Redis.PingTimeout)
	s.False(cfg.Redis.TLS)
}

func (s *RedisConfigTestSuite) TestConnect() {
	mr := miniredis.RunT(s.T())

	client, err := Connect(context.Background(), &Config{Addr: mr.Addr(), PingTimeout: time.Second})
	s.Require().NoError(err)
	defer client.Close()

	s.Require().NoError(client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	s.Require().NoError(err)
	s.Equal("v", got)
}

func (s *RedisConfigTestSuite) TestConnectUnavailable() {
	mr := miniredis.RunT(s.T())
	addr := mr.Addr()
	mr.Close()

	_, err := Connect(context.Background(), &Config{Addr: addr, PingTimeout: 200 * time.Millisecond})
	s.Require().Error(err)
	s.ErrorIs(err, ErrUnavailable)
}
