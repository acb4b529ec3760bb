package refresh

import (
	"context"

	"github.com/imtaco/reqflow/internal/errors"
	"github.com/imtaco/reqflow/internal/log"
	"github.com/imtaco/reqflow/internal/utils"
	"github.com/imtaco/reqflow/internal/validation"
	"github.com/imtaco/reqflow/request"
)

const (
	Name     = "refreshToken"
	Priority = 1000
)

// Options configure credential refresh on expiry.
type Options struct {
	// SingleMode shares one scope across every series (default true);
	// false gives each series its own scope.
	SingleMode *bool
	// Allow decides per invocation whether refresh applies (default true).
	Allow func(key string, rc *request.Context) bool
	// Expired classifies a failure as an expired credential.
	Expired func(ctx context.Context, err error) bool `validate:"required"`
	// Handler remediates an expired credential.
	Handler func(ctx context.Context, rc *request.Context) error `validate:"required"`
}

// Override is read from the "refreshToken" config extension.
type Override struct {
	SingleMode *bool
	Allow      func(key string, rc *request.Context) bool
}

type middleware struct {
	opts     Options
	registry *Registry
	logger   *log.Logger
}

// New returns the refresh middleware. Invalid options disable it and are
// logged; construction of series never fails because of them.
func New(logger *log.Logger, registry *Registry, opts Options) request.Middleware {
	if logger == nil {
		panic("logger is required")
	}
	if registry == nil {
		panic("registry is required")
	}
	logger = logger.Module("RefreshToken")

	mw := request.Middleware{Name: Name, Priority: Priority}
	if err := validation.Struct(opts); err != nil {
		logger.Error("refresh disabled", log.Error(errors.Wrap(ErrInvalidOptions, err, "validate options")))
		return mw
	}

	m := &middleware{
		opts:     opts,
		registry: registry,
		logger:   logger,
	}
	mw.Handler = m.handle
	return mw
}

type resolved struct {
	scope string
	allow func(key string, rc *request.Context) bool
}

func (m *middleware) resolve(rc *request.Context) resolved {
	single := m.opts.SingleMode
	allow := m.opts.Allow
	if o, ok := request.Extension[Override](rc.Config(), Name); ok {
		if o.SingleMode != nil {
			single = o.SingleMode
		}
		if o.Allow != nil {
			allow = o.Allow
		}
	}

	res := resolved{scope: GlobalScope, allow: allow}
	if !utils.GetOr(single, true) {
		res.scope = rc.ID()
	}
	return res
}

func (m *middleware) handle(ctx context.Context, rc *request.Context, next request.Next) (any, error) {
	res := m.resolve(rc)
	if res.allow == nil || res.allow(rc.Key(), rc) {
		rc.Fetcher = m.wrap(rc, res.scope, rc.Fetcher)
	}
	return next(ctx)
}

func (m *middleware) wrap(rc *request.Context, scope string, orig request.Fetcher) request.Fetcher {
	return func(ctx context.Context, params ...any) (any, error) {
		// a remediation is in flight: skip the attempt and retry after it
		if slot, ok := m.registry.Pending(scope); ok {
			if err := slot.Wait(ctx); err != nil && ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if rc.IsCanceled() {
				return nil, nil
			}
			return request.SafeCall(ctx, orig, params)
		}

		data, err := request.SafeCall(ctx, orig, params)
		if err == nil {
			if parse := rc.Config().DataParser; parse != nil {
				err = parse(ctx, data)
			}
		}
		if err == nil {
			return data, nil
		}
		if !m.opts.Expired(ctx, err) {
			return nil, err
		}
		expiredTotal.Add(ctx, 1)

		slot, started := m.registry.Acquire(ctx, scope, func(ctx context.Context) error {
			return m.opts.Handler(ctx, rc)
		})
		if started {
			remediationTotal.Add(ctx, 1)
			m.logger.Info("remediation started", log.Key(rc.Key()), log.Scope(scope))
		}

		if werr := slot.Wait(ctx); werr != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			if started {
				remediationFail.Add(ctx, 1)
			}
			// remediation failure is not fatal; the retry decides
		}
		if rc.IsCanceled() {
			return nil, nil
		}

		data, rerr := request.SafeCall(ctx, orig, params)
		if rerr != nil {
			retryFailed.Add(ctx, 1)
			m.logger.Debug("retry after remediation failed",
				log.Key(rc.Key()),
				log.Error(rerr))
			// the original failure is surfaced, not the retry's
			return nil, err
		}
		return data, nil
	}
}
