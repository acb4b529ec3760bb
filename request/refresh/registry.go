package refresh

import (
	"context"
	"sync/atomic"

	"github.com/imtaco/reqflow/internal/errors"
	"github.com/imtaco/reqflow/internal/log"
	isync "github.com/imtaco/reqflow/internal/sync"
)

// GlobalScope is shared by every series using single mode.
const GlobalScope = "global"

// Slot is one in-flight remediation. It is removed from its registry before
// waiters are released, so a settled slot is never joined again.
type Slot struct {
	done    chan struct{}
	err     error
	waiters atomic.Int32
}

func newSlot() *Slot {
	return &Slot{done: make(chan struct{})}
}

// Wait blocks until the remediation settles and returns its error, or until
// ctx is done.
func (s *Slot) Wait(ctx context.Context) error {
	s.waiters.Add(1)
	defer s.waiters.Add(-1)

	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the remediation settles.
func (s *Slot) Done() <-chan struct{} {
	return s.done
}

// Waiters returns the number of callers blocked in Wait.
func (s *Slot) Waiters() int {
	return int(s.waiters.Load())
}

// Registry holds at most one Slot per scope.
type Registry struct {
	slots  *isync.Map[string, *Slot]
	logger *log.Logger
}

func NewRegistry(logger *log.Logger) *Registry {
	if logger == nil {
		panic("logger is required")
	}
	return &Registry{
		slots:  isync.NewMap[string, *Slot](),
		logger: logger,
	}
}

// Pending returns the in-flight slot of scope, if any.
func (r *Registry) Pending(scope string) (*Slot, bool) {
	return r.slots.Load(scope)
}

// Acquire joins the in-flight slot of scope or, when there is none, creates
// one running fn. started reports whether this call created the slot. fn runs
// detached from ctx cancellation since other callers may be waiting on it.
func (r *Registry) Acquire(ctx context.Context, scope string, fn func(ctx context.Context) error) (slot *Slot, started bool) {
	r.slots.WithLock(func(v isync.View[string, *Slot]) {
		if s, ok := v.Get(scope); ok {
			slot = s
			return
		}
		slot = newSlot()
		v.Set(scope, slot)
		started = true
	})

	if started {
		go r.settle(context.WithoutCancel(ctx), scope, slot, fn)
	}
	return slot, started
}

// Len returns the number of in-flight slots.
func (r *Registry) Len() int {
	return r.slots.Len()
}

func (r *Registry) settle(ctx context.Context, scope string, slot *Slot, fn func(ctx context.Context) error) {
	err := run(ctx, fn)
	if err != nil {
		r.logger.Warn("remediation failed", log.Scope(scope), log.Error(err))
	}

	r.slots.CompareAndDelete(scope, slot)
	slot.err = err
	close(slot.done)
}

func run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Normalize(r)
		}
	}()
	return fn(ctx)
}
