package request

import (
	"context"
	"slices"

	"github.com/imtaco/reqflow/internal/errors"
	"github.com/imtaco/reqflow/internal/log"
)

// Next continues the middleware chain.
type Next func(ctx context.Context) (any, error)

// Middleware is a prioritized unit of behavior. Setup runs once when a series
// is built; Handler runs once per invocation and calls next to continue, or
// returns without calling it to short-circuit. Either may be nil.
type Middleware struct {
	Name     string
	Priority int
	Setup    func(bc *BasicContext)
	Handler  func(ctx context.Context, rc *Context, next Next) (any, error)
}

// Chain keeps middleware sorted by priority, highest first. Equal priorities
// keep registration order.
type Chain struct {
	mws []Middleware
}

func NewChain(mws ...Middleware) *Chain {
	c := &Chain{}
	for _, mw := range mws {
		c.Register(mw)
	}
	return c
}

func (c *Chain) Register(mw Middleware) {
	idx, _ := slices.BinarySearchFunc(c.mws, mw.Priority, func(m Middleware, p int) int {
		// descending, and equal priorities sort before the new one
		if m.Priority >= p {
			return -1
		}
		return 1
	})
	c.mws = slices.Insert(c.mws, idx, mw)
}

func (c *Chain) Middleware() []Middleware {
	return slices.Clone(c.mws)
}

// Setup runs every Setup in priority order. A panicking setup disables only
// that middleware's setup; construction of the series continues.
func (c *Chain) Setup(bc *BasicContext) {
	for _, mw := range c.mws {
		if mw.Setup == nil {
			continue
		}
		runSetup(bc, mw)
	}
}

func runSetup(bc *BasicContext, mw Middleware) {
	defer func() {
		if r := recover(); r != nil {
			bc.Logger().Error("middleware setup panicked",
				log.Middleware(mw.Name),
				log.Key(bc.Key()),
				log.Any("panic", r))
		}
	}()
	mw.Setup(bc)
}

// Build composes the handlers around terminal, highest priority outermost.
func (c *Chain) Build(rc *Context, terminal Next) Next {
	next := terminal
	for i := len(c.mws) - 1; i >= 0; i-- {
		mw := c.mws[i]
		if mw.Handler == nil {
			continue
		}
		inner := next
		next = func(ctx context.Context) (any, error) {
			return callHandler(ctx, mw, rc, inner)
		}
	}
	return next
}

func callHandler(ctx context.Context, mw Middleware, rc *Context, next Next) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(ErrHandlerPanic, errors.Normalize(r), "middleware %q", mw.Name)
		}
	}()
	return mw.Handler(ctx, rc, next)
}

// SafeCall invokes f, turning a panic into an error carrying the raised value.
func SafeCall(ctx context.Context, f Fetcher, params []any) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Normalize(r)
		}
	}()
	return f(ctx, params...)
}
