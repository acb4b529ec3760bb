package httputil

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/viper"

	"github.com/imtaco/reqflow/internal/errors"
)

const (
	ErrTLSConfig errors.Code = "invalid tls config"
	ErrShutdown  errors.Code = "http shutdown failed"
)

type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

type Config struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	TLS               TLSConfig     `mapstructure:"tls"`
}

type Server struct {
	*http.Server
	cfg *Config
}

func Setup(v *viper.Viper, prefix string) {
	p := func(key string) string { return prefix + "." + key }

	v.SetDefault(p("addr"), ":8090")
	v.SetDefault(p("read_header_timeout"), "5s")
	v.SetDefault(p("idle_timeout"), "60s")
	v.SetDefault(p("tls.enabled"), false)
	v.SetDefault(p("tls.cert_file"), "")
	v.SetDefault(p("tls.key_file"), "")
}

func NewServer(cfg *Config, handler http.Handler) *Server {
	return &Server{
		Server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
		cfg: cfg,
	}
}

// Listen serves until the server is shut down, over TLS when enabled.
func (s *Server) Listen() error {
	tls := s.cfg.TLS
	if !tls.Enabled {
		return s.ListenAndServe()
	}
	if tls.CertFile == "" || tls.KeyFile == "" {
		return errors.New(ErrTLSConfig, "tls is enabled but cert_file or key_file is not set")
	}
	return s.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
}

// ListenContext serves until ctx is done, then shuts down within grace.
// A clean shutdown returns nil.
func (s *Server) ListenContext(ctx context.Context, grace time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Listen()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(ErrShutdown, err, s.Addr)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
