package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/imtaco/reqflow/internal/config"
	"github.com/imtaco/reqflow/internal/httputil"
	"github.com/imtaco/reqflow/internal/jwt"
	"github.com/imtaco/reqflow/internal/log"
	"github.com/imtaco/reqflow/internal/network"
	"github.com/imtaco/reqflow/internal/otel"
	"github.com/imtaco/reqflow/internal/redis"
	"github.com/imtaco/reqflow/internal/retry"
	"github.com/imtaco/reqflow/internal/scheduler"
	"github.com/imtaco/reqflow/internal/utils"
	"github.com/imtaco/reqflow/internal/workflow"
	"github.com/imtaco/reqflow/request"
	"github.com/imtaco/reqflow/request/cache"
	"github.com/imtaco/reqflow/request/parser"
	"github.com/imtaco/reqflow/request/polling"
	"github.com/imtaco/reqflow/request/ratelimit"
	"github.com/imtaco/reqflow/request/refresh"
	"github.com/imtaco/reqflow/request/telemetry"
	"github.com/imtaco/reqflow/request/timeout"
	"github.com/imtaco/reqflow/request/transport"
	"github.com/imtaco/reqflow/request/visibility"
	"github.com/imtaco/reqflow/upstream"
)

type Config struct {
	App       config.App      `mapstructure:"app"`
	Http      httputil.Config `mapstructure:"http"`
	Otel      otel.Config     `mapstructure:"otel"`
	Engine    config.Engine   `mapstructure:"engine"`
	Retry     retry.Config    `mapstructure:"retry"`
	Redis     redis.Config    `mapstructure:"redis"`
	JWTSecret string          `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration   `mapstructure:"token_ttl"`
	Subject   string          `mapstructure:"subject"`
	Scope     string          `mapstructure:"scope"`
	Series    int             `mapstructure:"series"`
	DataExpr  string          `mapstructure:"data_expr"`

	// ExpiredExpr additionally treats rejected payloads matching it as expired.
	ExpiredExpr string `mapstructure:"expired_expr"`
}

func loadConfig() (*Config, error) {
	return config.LoadWithEnvFile(&Config{}, func(v *viper.Viper) {
		v.SetDefault("jwt_secret", "MY-secret-key-change-in-production")
		v.SetDefault("token_ttl", "15s")
		v.SetDefault("subject", "reqdemo")
		v.SetDefault("scope", "read")
		v.SetDefault("series", 3)
		v.SetDefault("data_expr", "code == `0`")
		v.SetDefault("expired_expr", "")

		config.Setup(v, "app")
		config.SetupEngine(v, "engine")
		otel.Setup(v, "otel")
		retry.Setup(v, "retry")
		redis.Setup(v, "redis")
		httputil.Setup(v, "http")

		// poll by default so token expiry is exercised
		v.SetDefault("engine.polling.interval", "5s")
		v.SetDefault("http.addr", "127.0.0.1:8090")
	}, func(c *Config) string { return c.App.EnvFile })
}

// newCacheStore picks the cache backend; redis lets several demo processes
// share fetched data.
func newCacheStore(ctx context.Context, cfg *Config, logger *log.Logger) (cache.Store, func(), error) {
	if cfg.Engine.Cache.Backend != "redis" {
		store, err := cache.NewMemoryStore(cfg.Engine.Cache.Size, nil)
		return store, func() {}, err
	}

	client, err := redis.Connect(ctx, &cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Using redis cache", log.String("addr", cfg.Redis.Addr))
	store := cache.NewRedisStore(client, cfg.Engine.Cache.Prefix, cfg.Engine.Cache.TTL, nil, logger)
	return store, func() { client.Close() }, nil
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration", err)
	}

	logger, err := log.NewLogger(cfg.App.LogConfigFile)
	if err != nil {
		log.Fatal("Failed to create logger", err)
	}
	defer logger.Sync()

	// global background context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry
	otelShutdown, err := otel.Init(ctx, &cfg.Otel, logger)
	if err != nil {
		logger.Fatal("Failed to initialize OTEL provider", log.Error(err))
	}

	logger.Info("Starting request demo...")

	// In-process upstream protected by short-lived tokens
	router := upstream.NewRouter(jwt.NewAuth(cfg.JWTSecret), cfg.TokenTTL, nil, logger)
	server := httputil.NewServer(&cfg.Http, router.Handler())

	serverCtx, serverFailed := context.WithCancel(context.Background())
	defer serverFailed()
	go func() {
		logger.Info("Starting upstream server", log.String("addr", cfg.Http.Addr))
		if err := server.ListenContext(ctx, cfg.App.ShutdownTimeout); err != nil {
			logger.Error("Upstream server stopped", log.Error(err))
			serverFailed()
		}
	}()

	baseURL := "http://" + network.DialAddr(cfg.Http.Addr)
	creds := transport.NewCredentials(logger, baseURL, cfg.Subject, cfg.Scope,
		retry.NewWithConfig(logger.Module("Retry"), cfg.Retry))
	client := transport.NewClient(logger, baseURL, cfg.Engine.FetchTimeout, creds)

	dataParser, err := parser.JMESPath(cfg.DataExpr)
	if err != nil {
		logger.Fatal("Invalid data expression", log.Error(err))
	}

	expired := transport.IsUnauthorized
	if cfg.ExpiredExpr != "" {
		rejectedExpired, err := parser.ExpiredWhen(cfg.ExpiredExpr)
		if err != nil {
			logger.Fatal("Invalid expired expression", log.Error(err))
		}
		expired = func(ctx context.Context, err error) bool {
			return transport.IsUnauthorized(ctx, err) || rejectedExpired(ctx, err)
		}
	}

	store, closeStore, err := newCacheStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create cache store", log.Error(err))
	}
	defer closeStore()
	dispatcher := scheduler.NewDispatcher(logger, nil)
	vis := visibility.NewManual()
	limiter := ratelimit.NewLimiter(logger, ratelimit.Options{
		PerSecond: cfg.Engine.RateLimit.PerSecond,
		Burst:     cfg.Engine.RateLimit.Burst,
	})

	engine := request.NewEngine(logger,
		telemetry.New(logger, nil, nil, nil).Middleware(),
		limiter.Middleware(),
		cache.New(logger, store, cache.Options{StaleTime: cfg.Engine.Cache.StaleTime}),
		refresh.New(logger, refresh.NewRegistry(logger), refresh.Options{
			SingleMode: utils.Ptr(cfg.Engine.Refresh.SingleMode),
			Expired:    expired,
			Handler:    creds.Renew,
		}),
		timeout.New(logger, nil, cfg.Engine.FetchTimeout),
		polling.New(logger, dispatcher, vis, polling.Options{
			Interval:        cfg.Engine.Polling.Interval,
			WhenHidden:      utils.Ptr(cfg.Engine.Polling.WhenHidden),
			ErrorRetryCount: utils.Ptr(cfg.Engine.Polling.ErrorRetryCount),
		}),
	)

	series := make([]*request.Request, cfg.Series)
	for i := range series {
		r := engine.New(fmt.Sprintf("series-%d", i),
			client.Fetcher(http.MethodGet, "/api/data"),
			request.StaticConfig(request.Config{DataParser: dataParser}),
		)
		r.Context().Hooks().OnSuccess(func(_ context.Context, rc *request.Context, data any) {
			doc, _ := parser.Decode(data)
			logger.Info("Data received", log.Key(rc.Key()), log.Any("payload", doc))
		})
		series[i] = r
	}

	// runs stop when shutting down or when the upstream dies
	runCtx, stopRuns := workflow.WithEitherDone(ctx, serverCtx)
	defer stopRuns()

	g, gctx := errgroup.WithContext(runCtx)
	for _, r := range series {
		g.Go(func() error {
			_, err := r.UnsafeRun(gctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("Initial run failed", log.Error(err))
	}

	// SIGUSR1 toggles host visibility to exercise polling pause/resume
	toggle := make(chan os.Signal, 1)
	signal.Notify(toggle, syscall.SIGUSR1)
	go func() {
		for range toggle {
			hidden := !vis.Hidden()
			logger.Info("Visibility toggled", log.Bool("hidden", hidden))
			vis.SetHidden(hidden)
		}
	}()

	// Graceful shutdown
	cleanup := func(shutdownCtx context.Context) {
		signal.Stop(toggle)
		for _, r := range series {
			r.Destroy()
		}
		dispatcher.Shutdown()
		cancel()

		if err := otelShutdown(shutdownCtx); err != nil {
			logger.Error("Failed to shutdown OTEL", log.Error(err))
		}
	}
	workflow.WaitGracefulShutdown(ctx, logger.Module("CleanUp"), cleanup, cfg.App.ShutdownTimeout)
}
