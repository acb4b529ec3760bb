//nolint:forcetypeassert
package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/imtaco/reqflow/internal/log"
)

// KeyedScheduler fires string keys at their due time on Chan(). Each key
// has at most one pending due time and enqueueing it again replaces that
// time, like restarting a timeout. One clock timer is armed for the head of
// a min-heap at any moment.
type KeyedScheduler struct {
	mu    sync.Mutex
	items map[string]*item
	heap  priorityQueue

	wake   chan struct{}
	fired  chan string
	ctx    context.Context
	cancel context.CancelFunc
	clock  clockwork.Clock
	logger *log.Logger
}

func newKeyedSchedulerWithClock(logger *log.Logger, clock clockwork.Clock) *KeyedScheduler {
	if logger == nil {
		panic("logger is required")
	}
	if clock == nil {
		panic("clock is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	ks := &KeyedScheduler{
		items:  make(map[string]*item),
		heap:   make(priorityQueue, 0),
		wake:   make(chan struct{}, 1),
		fired:  make(chan string),
		ctx:    ctx,
		cancel: cancel,
		clock:  clock,
		logger: logger,
	}
	heap.Init(&ks.heap)

	go ks.loop()
	return ks
}

// Chan delivers due keys; it is closed after Shutdown.
func (ks *KeyedScheduler) Chan() <-chan string {
	return ks.fired
}

// Enqueue schedules key to fire after delay, measured from now.
func (ks *KeyedScheduler) Enqueue(key string, delay time.Duration) {
	due := ks.clock.Now().Add(delay)

	ks.mu.Lock()
	if it, ok := ks.items[key]; ok {
		it.ts = due
		heap.Fix(&ks.heap, it.index)
	} else {
		it := &item{key: key, ts: due}
		ks.items[key] = it
		heap.Push(&ks.heap, it)
	}
	ks.mu.Unlock()

	ks.notify()
}

func (ks *KeyedScheduler) Cancel(key string) {
	ks.mu.Lock()
	it, ok := ks.items[key]
	if ok {
		delete(ks.items, key)
		heap.Remove(&ks.heap, it.index)
	}
	ks.mu.Unlock()

	if ok {
		ks.notify()
	}
}

func (ks *KeyedScheduler) Clear() {
	ks.mu.Lock()
	ks.items = make(map[string]*item)
	ks.heap = ks.heap[:0]
	ks.mu.Unlock()

	ks.notify()
}

// Pending returns the number of keys waiting to fire.
func (ks *KeyedScheduler) Pending() int {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return len(ks.items)
}

func (ks *KeyedScheduler) Shutdown() {
	ks.cancel()
}

func (ks *KeyedScheduler) notify() {
	select {
	case ks.wake <- struct{}{}:
	default:
	}
}

func (ks *KeyedScheduler) head() (time.Time, bool) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if len(ks.heap) == 0 {
		return time.Time{}, false
	}
	return ks.heap[0].ts, true
}

func (ks *KeyedScheduler) loop() {
	defer close(ks.fired)

	for {
		var expired <-chan time.Time
		var timer clockwork.Timer

		if due, ok := ks.head(); ok {
			delay := due.Sub(ks.clock.Now())
			if delay > 0 {
				timer = ks.clock.NewTimer(delay)
				expired = timer.Chan()
			}
			// due already, or the clock moved while the timer was armed
			if delay <= 0 || !ks.clock.Now().Before(due) {
				if timer != nil {
					timer.Stop()
				}
				if !ks.fireDue() {
					return
				}
				continue
			}
		}

		select {
		case <-ks.ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-ks.wake:
			if timer != nil {
				timer.Stop()
			}
		case <-expired:
			if !ks.fireDue() {
				return
			}
		}
	}
}

// fireDue delivers every key due by now. It returns false once shut down.
func (ks *KeyedScheduler) fireDue() bool {
	now := ks.clock.Now()

	ks.mu.Lock()
	var due []string
	for len(ks.heap) > 0 && !ks.heap[0].ts.After(now) {
		it := heap.Pop(&ks.heap).(*item)
		delete(ks.items, it.key)
		due = append(due, it.key)
	}
	ks.mu.Unlock()

	for _, key := range due {
		select {
		case ks.fired <- key:
		case <-ks.ctx.Done():
			ks.logger.Debug("scheduler stopped with due keys", log.Int("dropped", len(due)))
			return false
		}
	}
	return true
}
