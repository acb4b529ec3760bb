package request

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/imtaco/reqflow/internal/errors"
	"github.com/imtaco/reqflow/internal/log"
)

type ChainTestSuite struct {
	suite.Suite
	engine *Engine
	ctx    context.Context

	mu    sync.Mutex
	trace []string
}

func TestChainSuite(t *testing.T) {
	suite.Run(t, new(ChainTestSuite))
}

func (s *ChainTestSuite) SetupTest() {
	s.engine = NewEngine(log.NewNop())
	s.ctx = context.Background()
	s.trace = nil
}

func (s *ChainTestSuite) add(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trace = append(s.trace, v)
}

func (s *ChainTestSuite) names(c *Chain) []string {
	var out []string
	for _, mw := range c.Middleware() {
		out = append(out, mw.Name)
	}
	return out
}

func (s *ChainTestSuite) TestRegisterOrdersByPriorityThenRegistration() {
	c := NewChain(
		Middleware{Name: "low", Priority: -999},
		Middleware{Name: "high-1", Priority: 1000},
		Middleware{Name: "mid", Priority: 0},
		Middleware{Name: "high-2", Priority: 1000},
		Middleware{Name: "top", Priority: 100000},
	)

	s.Equal([]string{"top", "high-1", "high-2", "mid", "low"}, s.names(c))
}

func (s *ChainTestSuite) TestSetupRunsOnceInPriorityOrder() {
	mk := func(name string, prio int) Middleware {
		return Middleware{
			Name:     name,
			Priority: prio,
			Setup:    func(*BasicContext) { s.add("setup:" + name) },
		}
	}

	r := s.engine.New("k", func(context.Context, ...any) (any, error) { return 1, nil }, nil,
		mk("polling", -999), mk("refresh", 1000))
	s.Equal([]string{"setup:refresh", "setup:polling"}, s.trace)

	r.Run(s.ctx)
	r.Run(s.ctx)
	s.Len(s.trace, 2)
}

func (s *ChainTestSuite) TestFetcherWrappersNest() {
	wrap := func(name string, prio int) Middleware {
		return Middleware{
			Name:     name,
			Priority: prio,
			Handler: func(ctx context.Context, rc *Context, next Next) (any, error) {
				s.add("handler:" + name)
				inner := rc.Fetcher
				rc.Fetcher = func(ctx context.Context, params ...any) (any, error) {
					s.add("enter:" + name)
					return inner(ctx, params...)
				}
				return next(ctx)
			},
		}
	}

	fetch := func(context.Context, ...any) (any, error) {
		s.add("fetch")
		return "ok", nil
	}
	r := s.engine.New("k", fetch, nil, wrap("polling", -999), wrap("refresh", 1000))

	data, err := r.UnsafeRun(s.ctx)
	s.Require().NoError(err)
	s.Equal("ok", data)

	// the -999 wrapper sees the 1000 wrapper as the fetcher it wraps
	s.Equal([]string{
		"handler:refresh", "handler:polling",
		"enter:polling", "enter:refresh", "fetch",
	}, s.trace)
}

func (s *ChainTestSuite) TestHandlerErrorBeforeNextPropagates() {
	boom := errors.PureNew("denied")
	fetched := false
	var events []HookName

	r := s.engine.New("k", func(context.Context, ...any) (any, error) {
		fetched = true
		return nil, nil
	}, nil, Middleware{
		Name: "guard",
		Handler: func(context.Context, *Context, Next) (any, error) {
			return nil, boom
		},
	})
	for _, name := range []HookName{HookBefore, HookSuccess, HookError, HookAfter} {
		r.Context().Hooks().Hook(name, func(context.Context, *HookPayload) error {
			events = append(events, name)
			return nil
		})
	}

	_, err := r.UnsafeRun(s.ctx)
	s.Require().ErrorIs(err, boom)
	s.False(fetched)
	s.Equal([]HookName{HookError, HookAfter}, events)
	s.Require().ErrorIs(r.State().Err, boom)
}

func (s *ChainTestSuite) TestHandlerPanicIsNormalized() {
	r := s.engine.New("k", func(context.Context, ...any) (any, error) { return nil, nil }, nil,
		Middleware{
			Name: "broken",
			Handler: func(context.Context, *Context, Next) (any, error) {
				panic(42)
			},
		})

	_, err := r.UnsafeRun(s.ctx)
	s.Require().ErrorIs(err, ErrHandlerPanic)
	v, ok := errors.ValueOf(err)
	s.True(ok)
	s.Equal(42, v)
}

func (s *ChainTestSuite) TestSetupPanicDoesNotBreakConstruction() {
	r := s.engine.New("k", func(context.Context, ...any) (any, error) { return "ok", nil }, nil,
		Middleware{Name: "bad", Setup: func(*BasicContext) { panic("bad config") }},
		Middleware{Name: "good", Priority: -1, Setup: func(*BasicContext) { s.add("good") }},
	)

	s.Equal([]string{"good"}, s.trace)
	s.Equal("ok", r.Run(s.ctx))
}

func (s *ChainTestSuite) TestShortCircuitWithoutNext() {
	fetched := false
	r := s.engine.New("k", func(context.Context, ...any) (any, error) {
		fetched = true
		return nil, nil
	}, nil, Middleware{
		Name: "short",
		Handler: func(_ context.Context, rc *Context, _ Next) (any, error) {
			rc.Cancel(true)
			return "cached", nil
		},
	})

	data, err := r.UnsafeRun(s.ctx)
	s.Require().NoError(err)
	s.Nil(data)
	s.False(fetched)
}
