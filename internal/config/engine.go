package config

import (
	"time"

	"github.com/spf13/viper"
)

// Engine holds defaults for the request middleware installed by a binary.
type Engine struct {
	Polling      Polling       `mapstructure:"polling"`
	Refresh      Refresh       `mapstructure:"refresh"`
	Cache        Cache         `mapstructure:"cache"`
	RateLimit    RateLimit     `mapstructure:"rate_limit"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

type Polling struct {
	Interval        time.Duration `mapstructure:"interval"`
	WhenHidden      bool          `mapstructure:"when_hidden"`
	ErrorRetryCount int           `mapstructure:"error_retry_count"`
}

type Refresh struct {
	SingleMode bool `mapstructure:"single_mode"`
}

type Cache struct {
	// Backend is "memory" or "redis".
	Backend   string        `mapstructure:"backend"`
	Size      int           `mapstructure:"size"`
	StaleTime time.Duration `mapstructure:"stale_time"`
	Prefix    string        `mapstructure:"prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type RateLimit struct {
	PerSecond float64 `mapstructure:"per_second"`
	Burst     int     `mapstructure:"burst"`
}

func SetupEngine(v *viper.Viper, prefix string) {
	p := func(key string) string { return prefix + "." + key }

	v.SetDefault(p("polling.interval"), "0s") // zero disables polling
	v.SetDefault(p("polling.when_hidden"), true)
	v.SetDefault(p("polling.error_retry_count"), -1)
	v.SetDefault(p("refresh.single_mode"), true)
	v.SetDefault(p("cache.size"), 128)
	v.SetDefault(p("cache.stale_time"), "0s")
	v.SetDefault(p("cache.backend"), "memory")
	v.SetDefault(p("cache.prefix"), "reqflow:cache:")
	v.SetDefault(p("cache.ttl"), "10m")
	v.SetDefault(p("rate_limit.per_second"), 10.0)
	v.SetDefault(p("rate_limit.burst"), 10)
	v.SetDefault(p("fetch_timeout"), "5s")
}
