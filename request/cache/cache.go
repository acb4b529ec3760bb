package cache

import (
	"context"
	"time"

	"github.com/imtaco/reqflow/internal/errors"
	"github.com/imtaco/reqflow/internal/log"
	"github.com/imtaco/reqflow/request"
)

const (
	Name     = "cache"
	Priority = 5000

	ErrInvalidOptions errors.Code = "invalid cache options"
)

// Options control caching per series; the "cache" config extension
// replaces them for a single series.
type Options struct {
	// StaleTime is how long cached data is served without fetching; zero
	// always fetches but still seeds and writes through.
	StaleTime time.Duration
	Disabled  bool
}

// New returns a middleware that seeds series data from store, writes
// successful data through, and serves fresh entries without fetching.
func New(logger *log.Logger, store Store, opts Options) request.Middleware {
	if logger == nil {
		panic("logger is required")
	}
	if store == nil {
		panic("store is required")
	}
	logger = logger.Module("Cache")

	resolve := func(cfg request.Config) Options {
		if o, ok := request.Extension[Options](cfg, Name); ok {
			return o
		}
		return opts
	}

	return request.Middleware{
		Name:     Name,
		Priority: Priority,
		Setup: func(bc *request.BasicContext) {
			if resolve(bc.Config()).Disabled {
				return
			}
			if data, _, ok := store.Get(context.Background(), bc.Key()); ok {
				bc.MutateState(context.Background(), request.FieldData, request.State{Data: data})
			}
			bc.Hooks().OnSuccess(func(ctx context.Context, rc *request.Context, data any) {
				if !resolve(rc.Config()).Disabled {
					store.Set(ctx, rc.Key(), data)
				}
			})
		},
		Handler: func(ctx context.Context, rc *request.Context, next request.Next) (any, error) {
			o := resolve(rc.Config())
			if o.Disabled || o.StaleTime <= 0 {
				return next(ctx)
			}
			data, age, ok := store.Get(ctx, rc.Key())
			if !ok || age >= o.StaleTime {
				return next(ctx)
			}

			logger.Debug("serving cached data", log.Key(rc.Key()), log.Duration("age", age))
			rc.MutateState(ctx, request.FieldData, request.State{Data: data})
			rc.Cancel(true)
			return data, nil
		},
	}
}
