package request

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/imtaco/reqflow/internal/errors"
	"github.com/imtaco/reqflow/internal/log"
)

// Request is one logical request series: a fetcher plus the middleware and
// hooks wrapped around it. It may be run many times, concurrently.
type Request struct {
	bc      *BasicContext
	chain   *Chain
	fetcher Fetcher
	logger  *log.Logger

	mu       sync.Mutex
	inflight map[*Context]struct{}

	// loadingMu orders loadingChange events; running counts invocations past
	// the middleware chain.
	loadingMu sync.Mutex
	running   int

	destroyed atomic.Bool
}

func (r *Request) ID() string  { return r.bc.ID() }
func (r *Request) Key() string { return r.bc.Key() }

func (r *Request) State() State { return r.bc.State() }

// Context returns the series-level context.
func (r *Request) Context() *BasicContext { return r.bc }

// Extra returns a value registered by middleware through MutateResult.
func (r *Request) Extra(name string) (any, bool) {
	return r.bc.extra(name)
}

// Run executes one invocation and always returns the current data; the
// failure, if any, is recorded in State().Err.
func (r *Request) Run(ctx context.Context, params ...any) any {
	_, _ = r.UnsafeRun(ctx, params...)
	return r.State().Data
}

// UnsafeRun executes one invocation and returns its error. A cancelled
// invocation returns the current data and no error.
func (r *Request) UnsafeRun(ctx context.Context, params ...any) (any, error) {
	if r.destroyed.Load() {
		return nil, errors.Newf(ErrDestroyed, "request %s", r.Key())
	}
	return r.invoke(ctx, params)
}

// Refresh reruns with the params of the latest invocation.
func (r *Request) Refresh(ctx context.Context) any {
	return r.Run(ctx, r.State().Params...)
}

func (r *Request) UnsafeRefresh(ctx context.Context) (any, error) {
	return r.UnsafeRun(ctx, r.State().Params...)
}

// Cancel cancels every in-flight invocation and fires the cancel hook once.
func (r *Request) Cancel() {
	r.mu.Lock()
	pending := make([]*Context, 0, len(r.inflight))
	for rc := range r.inflight {
		pending = append(pending, rc)
	}
	r.mu.Unlock()

	for _, rc := range pending {
		rc.Cancel(true)
	}
	r.bc.hooks.CallSync(context.Background(), HookCancel, &HookPayload{
		Series: r.bc,
		State:  r.bc.State(),
	})
}

// Destroy cancels the series, runs teardown and drops every hook. Later
// runs fail with ErrDestroyed.
func (r *Request) Destroy() {
	if !r.destroyed.CompareAndSwap(false, true) {
		return
	}
	r.Cancel()
	r.bc.runDestroy()
	r.bc.hooks.Clear()
	r.logger.Debug("request destroyed", log.Key(r.Key()))
}

func (r *Request) track(rc *Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inflight[rc] = struct{}{}
}

func (r *Request) untrack(rc *Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, rc)
}

func (r *Request) invoke(ctx context.Context, params []any) (any, error) {
	params = slices.Clone(params)
	rc := r.bc.newContext(ctx, r.fetcher, params)
	r.track(rc)
	defer r.untrack(rc)

	r.bc.MutateState(ctx, FieldParams, State{Params: params})

	err := r.bc.hooks.CallAsync(ctx, HookPreface, &HookPayload{
		Context: rc,
		Series:  r.bc,
		Params:  params,
	})
	if err == nil && rc.IsCanceled() {
		return r.State().Data, nil
	}

	var data any
	if err == nil {
		data, err = r.chain.Build(rc, func(ctx context.Context) (any, error) {
			return r.execute(ctx, rc)
		})(ctx)
	}

	if rc.IsCanceled() {
		return r.State().Data, nil
	}
	if err != nil && rc.commit() {
		// failed before the fetcher settled
		r.fail(ctx, rc, err)
		r.after(ctx, rc)
	}
	return data, err
}

// execute is the terminal of the chain: before, fetcher, parser, outcome.
func (r *Request) execute(ctx context.Context, rc *Context) (any, error) {
	r.beginLoading(ctx)
	defer r.endLoading(ctx)

	err := r.bc.hooks.CallAsync(ctx, HookBefore, &HookPayload{
		Context: rc,
		Series:  r.bc,
		Params:  rc.params,
	})
	if err != nil {
		return nil, err
	}
	if rc.IsCanceled() {
		return r.State().Data, nil
	}

	data, err := SafeCall(ctx, rc.Fetcher, rc.params)
	if err == nil {
		if parse := rc.Config().DataParser; parse != nil {
			err = parse(ctx, data)
		}
	}
	// a cancel that lands before the commit wins, even after the fetcher returned
	if !rc.commit() {
		return r.State().Data, nil
	}
	if err != nil {
		r.fail(ctx, rc, err)
		r.after(ctx, rc)
		return nil, err
	}

	r.bc.MutateState(ctx, FieldData|FieldError, State{Data: data})
	r.bc.hooks.CallSync(ctx, HookSuccess, &HookPayload{
		Context: rc,
		Series:  r.bc,
		Params:  rc.params,
		Data:    data,
	})
	r.after(ctx, rc)
	return data, nil
}

func (r *Request) fail(ctx context.Context, rc *Context, err error) {
	r.logger.Debug("invocation failed", log.Key(r.Key()), log.Error(err))
	r.bc.MutateState(ctx, FieldError, State{Err: err})
	r.bc.hooks.CallSync(ctx, HookError, &HookPayload{
		Context: rc,
		Series:  r.bc,
		Params:  rc.params,
		Err:     err,
	})
}

func (r *Request) after(ctx context.Context, rc *Context) {
	r.bc.hooks.CallSync(ctx, HookAfter, &HookPayload{
		Context: rc,
		Series:  r.bc,
		Params:  rc.params,
		State:   r.bc.State(),
	})
}

// beginLoading and endLoading collapse overlapping invocations into one
// loadingChange pair. Listeners run under loadingMu and must not start
// invocations synchronously.
func (r *Request) beginLoading(ctx context.Context) {
	r.loadingMu.Lock()
	defer r.loadingMu.Unlock()
	r.running++
	if r.running == 1 {
		r.setLoading(ctx, true)
	}
}

func (r *Request) endLoading(ctx context.Context) {
	r.loadingMu.Lock()
	defer r.loadingMu.Unlock()
	r.running--
	if r.running == 0 {
		r.setLoading(ctx, false)
	}
}

func (r *Request) setLoading(ctx context.Context, loading bool) {
	r.bc.MutateState(ctx, FieldLoading, State{Loading: loading})
	r.bc.hooks.CallSync(ctx, HookLoadingChange, &HookPayload{
		Series:  r.bc,
		Loading: loading,
	})
}
