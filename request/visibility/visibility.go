//go:generate mockgen -source=visibility.go -destination=mocks/mock_source.go -package=mocks

package visibility

import (
	"sync"
)

// Source reports whether the host is hidden and notifies on changes.
type Source interface {
	Hidden() bool
	// Subscribe registers fn for visibility changes and returns an unsubscribe.
	Subscribe(fn func(hidden bool)) func()
}

// Manual is a settable Source for headless hosts and tests.
type Manual struct {
	mu     sync.Mutex
	hidden bool
	seq    uint64
	subs   map[uint64]func(bool)
}

func NewManual() *Manual {
	return &Manual{subs: make(map[uint64]func(bool))}
}

func (m *Manual) Hidden() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hidden
}

// SetHidden updates the flag and notifies subscribers when it changed.
// Subscribers run outside the lock, in no particular order.
func (m *Manual) SetHidden(hidden bool) {
	m.mu.Lock()
	if m.hidden == hidden {
		m.mu.Unlock()
		return
	}
	m.hidden = hidden
	subs := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(hidden)
	}
}

func (m *Manual) Subscribe(fn func(hidden bool)) func() {
	m.mu.Lock()
	m.seq++
	id := m.seq
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// Subscribers returns the number of live subscriptions.
func (m *Manual) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

type alwaysVisible struct{}

// AlwaysVisible never hides.
var AlwaysVisible Source = alwaysVisible{}

func (alwaysVisible) Hidden() bool { return false }

func (alwaysVisible) Subscribe(func(bool)) func() { return func() {} }
