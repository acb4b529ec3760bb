package request

import (
	"sync"

	"github.com/google/uuid"

	"github.com/imtaco/reqflow/internal/log"
)

// Engine holds the middleware shared by every series it builds. The builtin
// Ready middleware is always installed.
type Engine struct {
	logger *log.Logger

	mu  sync.RWMutex
	mws []Middleware
}

func NewEngine(logger *log.Logger, mws ...Middleware) *Engine {
	if logger == nil {
		panic("logger is required")
	}
	e := &Engine{
		logger: logger.Module("Engine"),
		mws:    []Middleware{Ready()},
	}
	e.Use(mws...)
	return e
}

// Use adds shared middleware; series built afterwards pick it up.
func (e *Engine) Use(mws ...Middleware) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mws = append(e.mws, mws...)
}

// New builds a series for fetcher. An empty key defaults to the series ID.
// Extra middleware applies to this series only.
func (e *Engine) New(key string, fetcher Fetcher, config ConfigSource, extra ...Middleware) *Request {
	if fetcher == nil {
		panic("fetcher is required")
	}
	if config == nil {
		config = StaticConfig(Config{})
	}

	id := uuid.NewString()
	if key == "" {
		key = id
	}

	e.mu.RLock()
	chain := NewChain(e.mws...)
	e.mu.RUnlock()
	for _, mw := range extra {
		chain.Register(mw)
	}

	bc := &BasicContext{
		id:     id,
		key:    key,
		hooks:  NewHooks(e.logger),
		config: config,
		logger: e.logger,
		extras: make(map[string]func() any),
	}
	r := &Request{
		bc:       bc,
		chain:    chain,
		fetcher:  fetcher,
		logger:   e.logger,
		inflight: make(map[*Context]struct{}),
	}
	bc.result = r

	chain.Setup(bc)
	e.logger.Debug("request created", log.Key(key), log.String("id", id))
	return r
}
