package request

import (
	"context"
	"maps"
	"sync/atomic"
)

// Fetcher performs the underlying operation of a request series.
type Fetcher func(ctx context.Context, params ...any) (any, error)

// DataParser rejects a resolved response that indicates failure.
type DataParser func(ctx context.Context, data any) error

// ReadyFunc reports whether an invocation may proceed.
type ReadyFunc func(ctx context.Context, params []any) (bool, error)

// Config is the per-invocation configuration of a series. Extensions carry
// each middleware's own option struct under the middleware's name.
type Config struct {
	Ready      ReadyFunc
	DataParser DataParser
	Extensions map[string]any
}

// With returns a copy of c with v registered under name.
func (c Config) With(name string, v any) Config {
	ext := make(map[string]any, len(c.Extensions)+1)
	maps.Copy(ext, c.Extensions)
	ext[name] = v
	c.Extensions = ext
	return c
}

// Extension reads the extension registered under name as T.
func Extension[T any](cfg Config, name string) (T, bool) {
	v, ok := cfg.Extensions[name]
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// ConfigSource is read on every access, so changes apply to the next invocation.
type ConfigSource interface {
	Config() Config
}

type ConfigFunc func() Config

func (f ConfigFunc) Config() Config { return f() }

// StaticConfig wraps a fixed configuration.
func StaticConfig(cfg Config) ConfigSource {
	return ConfigFunc(func() Config { return cfg })
}

// ConfigHolder is a ConfigSource whose value can be swapped at runtime.
type ConfigHolder struct {
	v atomic.Pointer[Config]
}

func NewConfigHolder(cfg Config) *ConfigHolder {
	h := &ConfigHolder{}
	h.Set(cfg)
	return h
}

func (h *ConfigHolder) Set(cfg Config) {
	h.v.Store(&cfg)
}

func (h *ConfigHolder) Config() Config {
	return *h.v.Load()
}
