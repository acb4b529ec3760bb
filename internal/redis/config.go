package redis

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/imtaco/reqflow/internal/errors"
)

const ErrUnavailable errors.Code = "redis unavailable"

type Config struct {
	Addr        string        `mapstructure:"addr"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	TLS         bool          `mapstructure:"tls"`
	PingTimeout time.Duration `mapstructure:"ping_timeout"`
}

func Setup(v *viper.Viper, prefix string) {
	p := func(key string) string { return prefix + "." + key }

	v.SetDefault(p("addr"), "127.0.0.1:6379")
	v.SetDefault(p("username"), "")
	v.SetDefault(p("password"), "")
	v.SetDefault(p("db"), 0)
	v.SetDefault(p("tls"), false)
	v.SetDefault(p("ping_timeout"), "3s")
}

func NewClient(cfg *Config) *redis.Client {
	opt := &redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLS {
		opt.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(opt)
}

// Connect builds a client and checks the server answers within PingTimeout.
func Connect(ctx context.Context, cfg *Config) (*redis.Client, error) {
	client := NewClient(cfg)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(ErrUnavailable, err, "ping %s", cfg.Addr)
	}
	return client, nil
}
