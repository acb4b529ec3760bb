package ratelimit

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/imtaco/reqflow/internal/errors"
	"github.com/imtaco/reqflow/internal/log"
	isync "github.com/imtaco/reqflow/internal/sync"
	"github.com/imtaco/reqflow/request"
)

const (
	Name     = "rateLimit"
	Priority = 20000

	ErrRateLimited errors.Code = "rate limited"
)

// Options describe a token bucket per series key.
type Options struct {
	PerSecond float64
	Burst     int
	// Wait blocks until a token is available instead of failing.
	Wait bool
}

// Limiter holds one bucket per series key, shared by every series built
// with its middleware.
type Limiter struct {
	opts    Options
	buckets *isync.Map[string, *rate.Limiter]
	logger  *log.Logger
}

func NewLimiter(logger *log.Logger, opts Options) *Limiter {
	if logger == nil {
		panic("logger is required")
	}
	return &Limiter{
		opts:    opts,
		buckets: isync.NewMap[string, *rate.Limiter](),
		logger:  logger.Module("RateLimit"),
	}
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	b, _ := l.buckets.LoadOrCompute(key, func() *rate.Limiter {
		return rate.NewLimiter(rate.Limit(l.opts.PerSecond), l.opts.Burst)
	})
	return b
}

// Middleware rejects, or delays when Wait is set, invocations over budget
// before any later middleware runs.
func (l *Limiter) Middleware() request.Middleware {
	return request.Middleware{
		Name:     Name,
		Priority: Priority,
		Handler: func(ctx context.Context, rc *request.Context, next request.Next) (any, error) {
			b := l.bucket(rc.Key())
			if l.opts.Wait {
				if err := b.Wait(ctx); err != nil {
					return nil, errors.Wrapf(ErrRateLimited, err, "key %s", rc.Key())
				}
				return next(ctx)
			}
			if !b.Allow() {
				l.logger.Debug("invocation rejected", log.Key(rc.Key()))
				return nil, errors.Newf(ErrRateLimited, "key %s", rc.Key())
			}
			return next(ctx)
		},
	}
}
