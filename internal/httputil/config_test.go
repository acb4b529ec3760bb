package httputil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/suite"
)

func TestNewServerAppliesTimeouts(t *testing.T) {
	srv := NewServer(&Config{Addr: ":1", ReadHeaderTimeout: time.Second, IdleTimeout: time.Minute}, http.NotFoundHandler())
	if srv.ReadHeaderTimeout != time.Second || srv.IdleTimeout != time.Minute {
		t.Fatalf("timeouts not applied: %v %v", srv.ReadHeaderTimeout, srv.IdleTimeout)
	}
}

type ServerTestSuite struct {
	suite.Suite
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func (s *ServerTestSuite) TestSetupDefaults() {
	v := viper.New()
	Setup(v, "http")

	var cfg struct {
		HTTP Config `mapstructure:"http"`
	}
	s.Require().NoError(v.Unmarshal(&cfg))
	s.Equal(":8090", cfg.HTTP.Addr)
	s.Equal(5*time.Second, cfg.HTTP.ReadHeaderTimeout)
	s.Equal(time.Minute, cfg.HTTP.IdleTimeout)
	s.False(cfg.HTTP.TLS.Enabled)
}

func (s *ServerTestSuite) TestListenContextStopsCleanly() {
	srv := NewServer(&Config{Addr: "127.0.0.1:0"}, http.NotFoundHandler())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.ListenContext(ctx, time.Second)
	}()

	cancel()
	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(2 * time.Second):
		s.Fail("server did not stop")
	}
}

func (s *ServerTestSuite) TestTLSWithoutFiles() {
	srv := NewServer(&Config{Addr: "127.0.0.1:0", TLS: TLSConfig{Enabled: true}}, http.NotFoundHandler())
	s.ErrorIs(srv.Listen(), ErrTLSConfig)
}
