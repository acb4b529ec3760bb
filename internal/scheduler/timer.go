package scheduler

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/imtaco/reqflow/internal/log"
	isync "github.com/imtaco/reqflow/internal/sync"
)

// Timer is a pauseable one-shot timer. Resume arms it for one interval,
// Pause disarms it, Stop releases it for good.
type Timer interface {
	Resume()
	Pause()
	Stop()
	IsActive() bool
}

// TimerFactory creates timers that run fn once per Resume after interval().
// When immediate is set the first Resume fires without waiting.
type TimerFactory interface {
	NewTimer(fn func(), interval func() time.Duration, immediate bool) Timer
}

// Dispatcher multiplexes many timers over one KeyedScheduler.
type Dispatcher struct {
	ks     *KeyedScheduler
	timers *isync.Map[string, *keyedTimer]
	seq    atomic.Uint64
	done   chan struct{}
	logger *log.Logger
}

func NewDispatcher(logger *log.Logger, clock clockwork.Clock) *Dispatcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	d := &Dispatcher{
		ks:     newKeyedSchedulerWithClock(logger, clock),
		timers: isync.NewMap[string, *keyedTimer](),
		done:   make(chan struct{}),
		logger: logger,
	}
	go d.loop()
	return d
}

func (d *Dispatcher) NewTimer(fn func(), interval func() time.Duration, immediate bool) Timer {
	return &keyedTimer{
		base:      "t" + strconv.FormatUint(d.seq.Add(1), 10),
		d:         d,
		fn:        fn,
		interval:  interval,
		immediate: immediate,
	}
}

// Shutdown stops every timer and waits for the dispatch loop to exit.
func (d *Dispatcher) Shutdown() {
	d.ks.Shutdown()
	<-d.done
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for key := range d.ks.Chan() {
		t, ok := d.timers.Load(key)
		if !ok || !t.fire(key) {
			continue
		}
		go d.run(t)
	}
}

func (d *Dispatcher) run(t *keyedTimer) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("timer callback panicked", log.Any("panic", r), log.String("timer", t.base))
		}
	}()
	t.fn()
}

// keyedTimer schedules a fresh key per Resume, so a fire of a superseded
// schedule never reaches fn.
type keyedTimer struct {
	base     string
	d        *Dispatcher
	fn       func()
	interval func() time.Duration

	mu        sync.Mutex
	gen       uint64
	cur       string
	stopped   bool
	immediate bool
}

// Scheduler calls happen outside mu; a stale queued key is skipped by fire.
func (t *keyedTimer) Resume() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	delay := t.interval()
	if t.immediate {
		t.immediate = false
		delay = 0
	} else if delay <= 0 {
		t.mu.Unlock()
		return
	}
	old := t.disarm()
	t.gen++
	t.cur = t.base + "/" + strconv.FormatUint(t.gen, 10)
	key := t.cur
	t.d.timers.Store(key, t)
	t.mu.Unlock()

	if old != "" {
		t.d.ks.Cancel(old)
	}
	t.d.ks.Enqueue(key, delay)
}

func (t *keyedTimer) Pause() {
	t.mu.Lock()
	old := t.disarm()
	t.mu.Unlock()
	if old != "" {
		t.d.ks.Cancel(old)
	}
}

func (t *keyedTimer) Stop() {
	t.mu.Lock()
	t.stopped = true
	old := t.disarm()
	t.mu.Unlock()
	if old != "" {
		t.d.ks.Cancel(old)
	}
}

func (t *keyedTimer) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur != ""
}

// fire reports whether key is the live schedule and consumes it.
func (t *keyedTimer) fire(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if key != t.cur {
		return false
	}
	t.d.timers.Delete(key)
	t.cur = ""
	return true
}

func (t *keyedTimer) disarm() string {
	old := t.cur
	if old != "" {
		t.d.timers.Delete(old)
		t.cur = ""
	}
	return old
}
