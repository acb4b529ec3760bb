package request

import (
	"context"
	"slices"
	"sync"

	"github.com/imtaco/reqflow/internal/errors"
	"github.com/imtaco/reqflow/internal/log"
)

type HookName string

const (
	// HookPreface runs before the middleware chain; a listener may cancel.
	HookPreface HookName = "preface"
	// HookBefore runs right before the fetcher; a listener may cancel.
	HookBefore        HookName = "before"
	HookSuccess       HookName = "success"
	HookError         HookName = "error"
	HookAfter         HookName = "after"
	HookCancel        HookName = "cancel"
	HookLoadingChange HookName = "loadingChange"
	HookStateChange   HookName = "stateChange"
)

// HookPayload carries the arguments of a hook event. Context is nil for
// events raised at series level (Request.Cancel, stateChange from setup).
type HookPayload struct {
	Context *Context
	Series  *BasicContext
	Params  []any
	Data    any
	Err     error
	State   State
	Loading bool
	Changed StateField
}

type HookFunc func(ctx context.Context, p *HookPayload) error

type listener struct {
	id uint64
	fn HookFunc
}

// Hooks is the event bus of one series. Listeners of an event run in
// registration order; dispatch works on a snapshot, so (un)registering from
// a listener only affects later dispatches.
type Hooks struct {
	mu        sync.RWMutex
	seq       uint64
	listeners map[HookName][]listener
	logger    *log.Logger
}

func NewHooks(logger *log.Logger) *Hooks {
	if logger == nil {
		panic("logger is required")
	}
	return &Hooks{
		listeners: make(map[HookName][]listener),
		logger:    logger,
	}
}

// Hook registers fn for name and returns its unregister func.
func (h *Hooks) Hook(name HookName, fn HookFunc) func() {
	h.mu.Lock()
	h.seq++
	id := h.seq
	h.listeners[name] = append(h.listeners[name], listener{id: id, fn: fn})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.listeners[name] = slices.DeleteFunc(h.listeners[name], func(l listener) bool {
				return l.id == id
			})
		})
	}
}

// CallAsync runs listeners one after another and stops at the first error.
func (h *Hooks) CallAsync(ctx context.Context, name HookName, p *HookPayload) error {
	for _, l := range h.snapshot(name) {
		if err := h.call(ctx, name, l, p); err != nil {
			return err
		}
	}
	return nil
}

// CallSync runs every listener; errors are logged and do not stop dispatch.
func (h *Hooks) CallSync(ctx context.Context, name HookName, p *HookPayload) {
	for _, l := range h.snapshot(name) {
		if err := h.call(ctx, name, l, p); err != nil {
			h.logger.Warn("hook listener failed",
				log.String("hook", string(name)),
				log.Error(err))
		}
	}
}

// Clear drops every listener.
func (h *Hooks) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = make(map[HookName][]listener)
}

// Len returns the number of listeners registered for name.
func (h *Hooks) Len(name HookName) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners[name])
}

func (h *Hooks) snapshot(name HookName) []listener {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.listeners[name])
}

func (h *Hooks) call(ctx context.Context, name HookName, l listener, p *HookPayload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(ErrHookFailed, errors.Normalize(r), "%s listener panicked", name)
		}
	}()
	return l.fn(ctx, p)
}

func (h *Hooks) OnBefore(fn func(ctx context.Context, rc *Context, params []any) error) func() {
	return h.Hook(HookBefore, func(ctx context.Context, p *HookPayload) error {
		return fn(ctx, p.Context, p.Params)
	})
}

func (h *Hooks) OnSuccess(fn func(ctx context.Context, rc *Context, data any)) func() {
	return h.Hook(HookSuccess, func(ctx context.Context, p *HookPayload) error {
		fn(ctx, p.Context, p.Data)
		return nil
	})
}

func (h *Hooks) OnError(fn func(ctx context.Context, rc *Context, err error)) func() {
	return h.Hook(HookError, func(ctx context.Context, p *HookPayload) error {
		fn(ctx, p.Context, p.Err)
		return nil
	})
}

func (h *Hooks) OnAfter(fn func(ctx context.Context, rc *Context, st State)) func() {
	return h.Hook(HookAfter, func(ctx context.Context, p *HookPayload) error {
		fn(ctx, p.Context, p.State)
		return nil
	})
}

// OnCancel listeners receive a nil rc when the whole series was cancelled.
func (h *Hooks) OnCancel(fn func(ctx context.Context, rc *Context, st State)) func() {
	return h.Hook(HookCancel, func(ctx context.Context, p *HookPayload) error {
		fn(ctx, p.Context, p.State)
		return nil
	})
}

func (h *Hooks) OnLoadingChange(fn func(ctx context.Context, loading bool)) func() {
	return h.Hook(HookLoadingChange, func(ctx context.Context, p *HookPayload) error {
		fn(ctx, p.Loading)
		return nil
	})
}

// OnStateChange listeners receive only the changed fields of the state.
func (h *Hooks) OnStateChange(fn func(ctx context.Context, changed StateField, partial State)) func() {
	return h.Hook(HookStateChange, func(ctx context.Context, p *HookPayload) error {
		fn(ctx, p.Changed, p.State)
		return nil
	})
}
