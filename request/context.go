package request

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/imtaco/reqflow/internal/log"
)

// BasicContext is the state shared by every invocation of one series.
type BasicContext struct {
	id     string
	key    string
	hooks  *Hooks
	config ConfigSource
	logger *log.Logger
	result *Request

	mu        sync.RWMutex
	state     State
	extras    map[string]func() any
	destroyFn []func()
}

func (bc *BasicContext) ID() string  { return bc.id }
func (bc *BasicContext) Key() string { return bc.key }

func (bc *BasicContext) Hooks() *Hooks { return bc.hooks }

// Config reads the configuration source afresh.
func (bc *BasicContext) Config() Config { return bc.config.Config() }

func (bc *BasicContext) Logger() *log.Logger { return bc.logger }

// Result returns the series handle this context belongs to.
func (bc *BasicContext) Result() *Request { return bc.result }

func (bc *BasicContext) State() State {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	st := bc.state
	st.Params = slices.Clone(st.Params)
	return st
}

// MutateState applies the selected fields of st and fires stateChange with
// only those fields set.
func (bc *BasicContext) MutateState(ctx context.Context, fields StateField, st State) {
	if fields == 0 {
		return
	}
	var partial State
	partial.apply(fields, st)

	bc.mu.Lock()
	bc.state.apply(fields, partial)
	bc.mu.Unlock()

	bc.hooks.CallSync(ctx, HookStateChange, &HookPayload{
		Series:  bc,
		State:   partial,
		Changed: fields,
	})
}

// MutateResult exposes a derived value on the series handle under name.
func (bc *BasicContext) MutateResult(name string, getter func() any) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.extras[name] = getter
}

func (bc *BasicContext) extra(name string) (any, bool) {
	bc.mu.RLock()
	getter, ok := bc.extras[name]
	bc.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return getter(), true
}

// OnDestroy registers teardown run when the series is destroyed, in reverse
// registration order.
func (bc *BasicContext) OnDestroy(fn func()) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.destroyFn = append(bc.destroyFn, fn)
}

func (bc *BasicContext) runDestroy() {
	bc.mu.Lock()
	fns := bc.destroyFn
	bc.destroyFn = nil
	bc.mu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

// Context is the mutable state of one invocation. Middleware may replace
// Fetcher with a wrapper calling the previous value.
type Context struct {
	*BasicContext
	Fetcher Fetcher

	// ctx is the invocation context, kept for cancel hook dispatch.
	ctx    context.Context
	params []any
	phase  atomic.Int32
}

// Invocation phases. Both terminal phases are reached by CAS from running,
// so exactly one of cancel and commit wins.
const (
	phaseRunning int32 = iota
	phaseCanceled
	phaseCommitted
)

func (bc *BasicContext) newContext(ctx context.Context, fetcher Fetcher, params []any) *Context {
	return &Context{
		BasicContext: bc,
		Fetcher:      fetcher,
		ctx:          context.WithoutCancel(ctx),
		params:       params,
	}
}

// Params returns the call arguments of this invocation.
func (c *Context) Params() []any {
	return slices.Clone(c.params)
}

// Cancel marks the invocation cancelled. Only the first call has an effect,
// and none once the outcome is committed. Unless silent it fires the cancel
// hook with the last known state.
func (c *Context) Cancel(silent bool) {
	if !c.phase.CompareAndSwap(phaseRunning, phaseCanceled) {
		return
	}
	c.logger.Debug("invocation canceled", log.Key(c.key), log.Bool("silent", silent))
	if silent {
		return
	}
	c.hooks.CallSync(c.ctx, HookCancel, &HookPayload{
		Context: c,
		Series:  c.BasicContext,
		Params:  c.params,
		State:   c.State(),
	})
}

func (c *Context) IsCanceled() bool {
	return c.phase.Load() == phaseCanceled
}

// commit claims the outcome of the invocation. It fails when the invocation
// was cancelled or already committed.
func (c *Context) commit() bool {
	return c.phase.CompareAndSwap(phaseRunning, phaseCommitted)
}
