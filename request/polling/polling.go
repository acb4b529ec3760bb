package polling

import (
	"context"
	"sync"
	"time"

	"github.com/imtaco/reqflow/internal/log"
	"github.com/imtaco/reqflow/internal/scheduler"
	"github.com/imtaco/reqflow/internal/utils"
	"github.com/imtaco/reqflow/internal/validation"
	"github.com/imtaco/reqflow/request"
	"github.com/imtaco/reqflow/request/visibility"
)

const (
	Name     = "polling"
	Priority = -999

	ExtraIsPolling = "isPolling"
	ExtraFailures  = "pollingFailures"
)

// Options configure interval polling. Zero fields fall back to the
// middleware defaults; the "polling" config extension overrides them.
type Options struct {
	// Interval between settled invocations; zero disables polling.
	Interval time.Duration `validate:"gte=0"`
	// WhenHidden keeps polling while the host is hidden (default true).
	WhenHidden *bool
	// ErrorRetryCount bounds consecutive failures; -1 is unlimited (default).
	ErrorRetryCount *int `validate:"omitempty,gte=-1"`
}

func (o Options) merge(over Options) Options {
	if over.Interval != 0 {
		o.Interval = over.Interval
	}
	if over.WhenHidden != nil {
		o.WhenHidden = over.WhenHidden
	}
	if over.ErrorRetryCount != nil {
		o.ErrorRetryCount = over.ErrorRetryCount
	}
	return o
}

// New returns the polling middleware. Timers come from timers; visibility
// changes come from vis.
func New(logger *log.Logger, timers scheduler.TimerFactory, vis visibility.Source, opts Options) request.Middleware {
	if logger == nil {
		panic("logger is required")
	}
	if timers == nil {
		panic("timer factory is required")
	}
	if vis == nil {
		vis = visibility.AlwaysVisible
	}
	logger = logger.Module("Polling")

	return request.Middleware{
		Name:     Name,
		Priority: Priority,
		Setup: func(bc *request.BasicContext) {
			p := &poller{
				bc:     bc,
				vis:    vis,
				logger: logger,
			}
			p.setup(timers, opts)
		},
	}
}

// IsPolling reports whether r is currently polling.
func IsPolling(r *request.Request) bool {
	v, _ := r.Extra(ExtraIsPolling)
	polling, _ := v.(bool)
	return polling
}

// FailureCount returns the consecutive failures counted against the budget.
func FailureCount(r *request.Request) int {
	v, _ := r.Extra(ExtraFailures)
	n, _ := v.(int)
	return n
}

type poller struct {
	bc     *request.BasicContext
	vis    visibility.Source
	logger *log.Logger
	timer  scheduler.Timer

	whenHidden bool
	retryCount int

	mu        sync.Mutex
	polling   bool
	failures  int
	exhausted bool
	unlisten  func()
	// outcomes counts success, error and cancel events so a tick can tell
	// whether its refresh settled with a lifecycle outcome.
	outcomes uint64
}

func (p *poller) setup(timers scheduler.TimerFactory, defaults Options) {
	p.bc.MutateResult(ExtraIsPolling, func() any {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.polling
	})
	p.bc.MutateResult(ExtraFailures, func() any {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.failures
	})

	opts := defaults
	if over, ok := request.Extension[Options](p.bc.Config(), Name); ok {
		opts = opts.merge(over)
	}
	if err := validation.Struct(opts); err != nil {
		p.logger.Error("polling disabled, invalid options", log.Key(p.bc.Key()), log.Error(err))
		return
	}
	if opts.Interval <= 0 {
		return
	}

	p.whenHidden = utils.GetOr(opts.WhenHidden, true)
	p.retryCount = utils.GetOr(opts.ErrorRetryCount, -1)

	interval := opts.Interval
	p.timer = timers.NewTimer(p.tick, func() time.Duration { return interval }, false)

	hooks := p.bc.Hooks()
	hooks.Hook(request.HookBefore, func(context.Context, *request.HookPayload) error {
		p.listen()
		return nil
	})
	hooks.OnCancel(func(context.Context, *request.Context, request.State) {
		p.onCancel()
	})
	hooks.OnSuccess(func(context.Context, *request.Context, any) {
		p.onSuccess()
	})
	hooks.OnError(func(context.Context, *request.Context, error) {
		p.onError()
	})
	p.bc.OnDestroy(p.stop)

	p.logger.Debug("polling enabled",
		log.Key(p.bc.Key()),
		log.Duration("interval", interval),
		log.Int("error_retry_count", p.retryCount))
}

func (p *poller) tick() {
	ctx := context.Background()
	ticksTotal.Add(ctx, 1)

	p.mu.Lock()
	seen := p.outcomes
	p.mu.Unlock()

	p.bc.Result().Refresh(ctx)

	// a refresh cancelled silently (served from cache, not ready) fires no
	// outcome hook, so re-arm here to keep the cadence
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.outcomes == seen && p.polling && !p.exhausted {
		p.handleResume()
	}
}

// listen installs the visibility listener once; a no-op after exhaustion.
func (p *poller) listen() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exhausted || p.unlisten != nil {
		return
	}
	p.unlisten = p.vis.Subscribe(p.onVisibility)
}

func (p *poller) onVisibility(hidden bool) {
	if p.whenHidden {
		return
	}

	p.mu.Lock()
	if hidden {
		p.pause()
		p.mu.Unlock()
		return
	}
	p.polling = true
	p.mu.Unlock()

	// visible again: run now rather than wait for the next tick
	go p.tick()
}

func (p *poller) onCancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomes++
	p.detach()
	p.pause()
}

func (p *poller) onSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomes++
	if p.exhausted {
		return
	}
	p.failures = 0
	p.handleResume()
}

func (p *poller) onError() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomes++
	if p.exhausted {
		return
	}

	switch {
	case p.retryCount == -1:
		p.failures = 0
		p.handleResume()
	case p.failures < p.retryCount:
		p.failures++
		p.handleResume()
	default:
		p.exhausted = true
		exhaustedTotal.Add(context.Background(), 1)
		p.detach()
		p.pause()
		p.logger.Info("polling stopped, error retries exhausted",
			log.Key(p.bc.Key()),
			log.Int("failures", p.failures))
	}
}

func (p *poller) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detach()
	p.pause()
	p.timer.Stop()
}

// handleResume, resume, pause and detach expect p.mu held.
func (p *poller) handleResume() {
	if !p.whenHidden && p.vis.Hidden() {
		p.pause()
		return
	}
	p.resume()
}

func (p *poller) resume() {
	p.polling = true
	p.timer.Resume()
}

func (p *poller) pause() {
	p.polling = false
	p.timer.Pause()
}

func (p *poller) detach() {
	if p.unlisten == nil {
		return
	}
	p.unlisten()
	p.unlisten = nil
}
