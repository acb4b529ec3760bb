package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/viper"

	"github.com/imtaco/reqflow/internal/log"
)

// Retry runs an operation until it succeeds, fails permanently, the backoff
// budget is spent or ctx ends.
type Retry interface {
	Do(ctx context.Context, operation func() error) error
}

type Config struct {
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

func Setup(v *viper.Viper, prefix string) {
	p := func(key string) string { return prefix + "." + key }

	v.SetDefault(p("initial_interval"), "100ms")
	v.SetDefault(p("max_interval"), "2s")
	v.SetDefault(p("max_elapsed_time"), "10s")
}

func New(logger *log.Logger, initialInterval, maxInterval, maxElapsedTime time.Duration) Retry {
	return NewWithConfig(logger, Config{
		InitialInterval: initialInterval,
		MaxInterval:     maxInterval,
		MaxElapsedTime:  maxElapsedTime,
	})
}

func NewWithConfig(logger *log.Logger, cfg Config) Retry {
	if logger == nil {
		panic("logger is required")
	}
	return &exponential{cfg: cfg, logger: logger}
}

type exponential struct {
	cfg    Config
	logger *log.Logger
}

func (r *exponential) Do(ctx context.Context, operation func() error) error {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(r.cfg.InitialInterval),
		backoff.WithMaxInterval(r.cfg.MaxInterval),
		backoff.WithMaxElapsedTime(r.cfg.MaxElapsedTime),
	)

	attempt := 0
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("Retry attempt failed",
			log.Int("attempt", attempt),
			log.Duration("wait", wait),
			log.Error(err))
	}
	return backoff.RetryNotify(func() error {
		attempt++
		return operation()
	}, backoff.WithContext(b, ctx), notify)
}

// Permanent marks err as not worth retrying; Do returns it unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}
