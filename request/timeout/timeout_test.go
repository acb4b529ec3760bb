package timeout

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/suite"

	"github.com/imtaco/reqflow/internal/log"
	"github.com/imtaco/reqflow/request"
)

type TimeoutTestSuite struct {
	suite.Suite
	logger *log.Logger
	clock  *clockwork.FakeClock
	ctx    context.Context
}

func TestTimeoutSuite(t *testing.T) {
	suite.Run(t, new(TimeoutTestSuite))
}

func (s *TimeoutTestSuite) SetupTest() {
	s.logger = log.NewNop()
	s.clock = clockwork.NewFakeClock()
	s.ctx = context.Background()
}

type outcome struct {
	data any
	err  error
}

// blocking returns a fetcher that reports its start and waits for its
// context to end.
func blocking(started chan<- struct{}, aborted *atomic.Bool) request.Fetcher {
	return func(ctx context.Context, _ ...any) (any, error) {
		close(started)
		<-ctx.Done()
		aborted.Store(true)
		return nil, ctx.Err()
	}
}

func (s *TimeoutTestSuite) TestExpiryCancelsInvocation() {
	started := make(chan struct{})
	var aborted atomic.Bool
	r := request.NewEngine(s.logger, New(s.logger, s.clock, time.Second)).
		New("k", blocking(started, &aborted), nil)

	var canceled, failed atomic.Int32
	r.Context().Hooks().OnCancel(func(context.Context, *request.Context, request.State) { canceled.Add(1) })
	r.Context().Hooks().OnError(func(context.Context, *request.Context, error) { failed.Add(1) })

	done := make(chan outcome, 1)
	go func() {
		data, err := r.UnsafeRun(s.ctx)
		done <- outcome{data, err}
	}()

	<-started
	s.clock.Advance(time.Second)

	res := <-done
	s.Require().NoError(res.err)
	s.Nil(res.data)
	s.Equal(int32(1), canceled.Load())
	s.Equal(int32(0), failed.Load())
	s.Eventually(aborted.Load, time.Second, 5*time.Millisecond)
}

func (s *TimeoutTestSuite) TestFastFetchUnaffected() {
	r := request.NewEngine(s.logger, New(s.logger, s.clock, time.Second)).
		New("k", func(context.Context, ...any) (any, error) { return "ok", nil }, nil)

	data, err := r.UnsafeRun(s.ctx)
	s.Require().NoError(err)
	s.Equal("ok", data)
}

func (s *TimeoutTestSuite) TestFetchErrorPassesThrough() {
	const errBoom = "boom"
	r := request.NewEngine(s.logger, New(s.logger, s.clock, time.Second)).
		New("k", func(context.Context, ...any) (any, error) { panic(errBoom) }, nil)

	_, err := r.UnsafeRun(s.ctx)
	s.Require().Error(err)
	s.Contains(err.Error(), errBoom)
}

func (s *TimeoutTestSuite) TestParentContextWins() {
	started := make(chan struct{})
	var aborted atomic.Bool
	r := request.NewEngine(s.logger, New(s.logger, s.clock, time.Hour)).
		New("k", blocking(started, &aborted), nil)

	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan outcome, 1)
	go func() {
		data, err := r.UnsafeRun(ctx)
		done <- outcome{data, err}
	}()

	<-started
	cancel()

	res := <-done
	s.Require().ErrorIs(res.err, context.Canceled)
}

func (s *TimeoutTestSuite) TestExtensionDisables() {
	started := make(chan struct{})
	release := make(chan struct{})
	cfg := request.Config{}.With(Name, time.Duration(0))
	r := request.NewEngine(s.logger, New(s.logger, s.clock, time.Millisecond)).
		New("k", func(context.Context, ...any) (any, error) {
			close(started)
			<-release
			return "late", nil
		}, request.StaticConfig(cfg))

	done := make(chan outcome, 1)
	go func() {
		data, err := r.UnsafeRun(s.ctx)
		done <- outcome{data, err}
	}()

	<-started
	s.clock.Advance(time.Minute)
	close(release)

	res := <-done
	s.Require().NoError(res.err)
	s.Equal("late", res.data)
}
