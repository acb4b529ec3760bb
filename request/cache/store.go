package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"

	"github.com/imtaco/reqflow/internal/errors"
)

// Store holds series data keyed by series key. Backend failures are treated
// as misses; a cache never fails an invocation.
type Store interface {
	// Get returns the cached data of key and its age.
	Get(ctx context.Context, key string) (data any, age time.Duration, ok bool)
	Set(ctx context.Context, key string, data any)
	Delete(ctx context.Context, key string)
}

type entry struct {
	data any
	at   time.Time
}

// MemoryStore is a size-bounded in-process LRU.
type MemoryStore struct {
	entries *lru.Cache[string, entry]
	clock   clockwork.Clock
}

func NewMemoryStore(size int, clock clockwork.Clock) (*MemoryStore, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	entries, err := lru.New[string, entry](size)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidOptions, err, "create lru")
	}
	return &MemoryStore{entries: entries, clock: clock}, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (any, time.Duration, bool) {
	e, ok := s.entries.Get(key)
	if !ok {
		return nil, 0, false
	}
	return e.data, s.clock.Since(e.at), true
}

func (s *MemoryStore) Set(_ context.Context, key string, data any) {
	s.entries.Add(key, entry{data: data, at: s.clock.Now()})
}

func (s *MemoryStore) Delete(_ context.Context, key string) {
	s.entries.Remove(key)
}

func (s *MemoryStore) Len() int {
	return s.entries.Len()
}
