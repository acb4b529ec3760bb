package timeout

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/imtaco/reqflow/internal/log"
	"github.com/imtaco/reqflow/request"
)

const (
	Name     = "timeout"
	Priority = 500
)

type result struct {
	data any
	err  error
}

// New returns a middleware racing the fetcher against d. When the timer wins
// the invocation is cancelled (non-silently) and resolves without error. The
// "timeout" config extension, a time.Duration, replaces d per series; zero
// or less disables it.
func New(logger *log.Logger, clock clockwork.Clock, d time.Duration) request.Middleware {
	if logger == nil {
		panic("logger is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger = logger.Module("Timeout")

	return request.Middleware{
		Name:     Name,
		Priority: Priority,
		Handler: func(ctx context.Context, rc *request.Context, next request.Next) (any, error) {
			limit := d
			if v, ok := request.Extension[time.Duration](rc.Config(), Name); ok {
				limit = v
			}
			if limit <= 0 {
				return next(ctx)
			}

			fetch := rc.Fetcher
			rc.Fetcher = func(ctx context.Context, params ...any) (any, error) {
				fctx, cancel := context.WithCancel(ctx)
				defer cancel()

				timer := clock.NewTimer(limit)
				defer timer.Stop()

				ch := make(chan result, 1)
				go func() {
					data, err := request.SafeCall(fctx, fetch, params)
					ch <- result{data: data, err: err}
				}()

				select {
				case res := <-ch:
					return res.data, res.err
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-timer.Chan():
					logger.Warn("fetch timed out", log.Key(rc.Key()), log.Duration("timeout", limit))
					rc.Cancel(false)
					return nil, nil
				}
			}
			return next(ctx)
		},
	}
}
