package workflow

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/imtaco/reqflow/internal/log"
)

type GracefulShutdownAction func(ctx context.Context)

var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// WaitGracefulShutdown blocks until ctx is done or SIGINT/SIGTERM arrives,
// then runs action with a context bounded by timeout. It reports whether
// action completed in time without panicking.
func WaitGracefulShutdown(
	ctx context.Context,
	logger *log.Logger,
	action GracefulShutdownAction,
	timeout time.Duration,
) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, shutdownSignals...)
	defer stop()

	logger.Info("Graceful shutdown handler registered")
	<-ctx.Done()

	ctxClean, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan bool, 1)
	go func() {
		ok := false
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic during graceful shutdown", log.Any("error", r))
			}
			done <- ok
		}()
		logger.Info("Starting graceful shutdown")
		action(ctxClean)
		ok = true
	}()

	select {
	case <-ctxClean.Done():
		logger.Warn("Shutdown timeout exceeded, forcing exit")
		return false
	case ok := <-done:
		if ok {
			logger.Info("Graceful shutdown completed")
		}
		return ok
	}
}
