package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	apiv1 "github.com/volunteermatching/volops/pkg/api/v1"
	"github.com/volunteermatching/volops/pkg/auth"
	"github.com/volunteermatching/volops/pkg/common"
	"github.com/volunteermatching/volops/pkg/index"
	"github.com/volunteermatching/volops/pkg/indexsync"
	"github.com/volunteermatching/volops/pkg/repository"
	"github.com/volunteermatching/volops/pkg/types"
)

const (
	initLockTtlS    = 60
	initLockRetries = 300
)

type Gateway struct {
	Config      types.AppConfig
	RedisClient *common.RedisClient
	BackendRepo repository.BackendRepository
	IndexStore  index.IndexStore
	Contract    *indexsync.Contract
	Outbox      *indexsync.RedisOutbox
	httpServer  *http.Server
	echo        *echo.Echo
	ctx         context.Context
	cancelFunc  context.CancelFunc

	baseRouteGroup *echo.Group
	replayer       *indexsync.Replayer
}

// NewGateway connects the store, the search index and, in remote mode,
// Redis. Nothing is served until Start.
func NewGateway(config types.AppConfig) (*Gateway, error) {
	var redisClient *common.RedisClient
	var backendRepo repository.BackendRepository
	var err error

	// Local mode: skip Redis and Postgres
	if config.IsLocalMode() {
		log.Info().Msg("running in local mode - Redis and Postgres disabled")
		backendRepo = repository.NewMemoryBackend()
	} else {
		if config.Database.Postgres.Host == "" {
			return nil, errors.New("remote mode requires database.postgres.host")
		}

		if config.Database.Redis.IsConfigured() {
			redisClient, err = common.NewRedisClient(config.Database.Redis, common.WithClientName("VolopsGateway"))
			if err != nil {
				return nil, err
			}
		} else {
			log.Warn().Msg("redis not configured - index outbox and locks disabled")
		}

		backendRepo, err = repository.NewPostgresBackend(config.Database.Postgres)
		if err != nil {
			if redisClient != nil {
				redisClient.Close()
			}
			return nil, err
		}
	}

	store, err := index.NewIndexStore(config.Index)
	if err != nil {
		backendRepo.Close()
		if redisClient != nil {
			redisClient.Close()
		}
		return nil, fmt.Errorf("failed to open index store: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	gateway := &Gateway{
		Config:      config,
		RedisClient: redisClient,
		BackendRepo: backendRepo,
		IndexStore:  store,
		ctx:         ctx,
		cancelFunc:  cancel,
	}

	var outbox indexsync.Outbox
	if config.Sync.Outbox && redisClient != nil {
		gateway.Outbox = indexsync.NewRedisOutbox(redisClient, config.Sync.Group, consumerName(config.Sync.Consumer))
		outbox = gateway.Outbox
	}

	contractConfig := indexsync.ContractConfig{
		SearchLimit: config.Index.SearchLimit,
		CacheSize:   config.Index.CacheSize,
		CacheTTL:    config.Index.CacheTTL,
		Source:      backendRepo,
	}
	if redisClient != nil {
		// Replicas share entry locks and the search generation
		contractConfig.Locker = indexsync.NewRedisLocker(common.NewRedisLock(redisClient))
		contractConfig.Generation = indexsync.NewRedisGeneration(redisClient)
	}
	gateway.Contract = indexsync.NewContract(store, outbox, contractConfig)

	return gateway, nil
}

func consumerName(configured string) string {
	if configured != "" {
		return configured
	}
	if hostname, err := os.Hostname(); err == nil {
		return hostname
	}
	return uuid.NewString()
}

func (g *Gateway) initLock(name string) (func(), error) {
	// Skip locking without Redis
	if g.RedisClient == nil {
		return func() {}, nil
	}

	lockKey := common.Keys.GatewayInitLock(name)
	lock := common.NewRedisLock(g.RedisClient)

	if err := lock.Acquire(g.ctx, lockKey, common.RedisLockOptions{TtlS: initLockTtlS, Retries: initLockRetries}); err != nil {
		return nil, err
	}

	return func() {
		if err := lock.Release(lockKey); err != nil {
			log.Error().Str("lock_key", lockKey).Err(err).Msg("failed to release init lock")
		}
	}, nil
}

// Prepare runs migrations and seeds reference data. Replicas starting
// together serialize on a Redis lock.
func (g *Gateway) Prepare() error {
	unlock, err := g.initLock("migrations")
	if err != nil {
		return fmt.Errorf("failed to acquire init lock: %w", err)
	}
	defer unlock()

	if err := g.BackendRepo.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := repository.Seed(g.ctx, g.BackendRepo, g.Config.Seed); err != nil {
		return err
	}

	return nil
}

// Rebuilder returns a rebuilder for the gateway's store and index
func (g *Gateway) Rebuilder() *indexsync.Rebuilder {
	var lock *common.RedisLock
	if g.RedisClient != nil {
		lock = common.NewRedisLock(g.RedisClient)
	}
	return indexsync.NewRebuilder(g.BackendRepo, g.Contract, lock)
}

func (g *Gateway) tokenValidator() auth.TokenValidator {
	jwt := auth.NewJWTManager(g.Config.Auth.Secret, g.Config.Auth.Issuer, g.Config.Auth.TokenTTL)
	return auth.NewCompositeValidator(g.Config.Auth.AdminToken, jwt)
}

func (g *Gateway) initHTTP() error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apiv1.HTTPErrorHandler

	e.Pre(middleware.RemoveTrailingSlash())

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			evt := log.Info()
			if v.Status >= http.StatusInternalServerError || v.Error != nil {
				evt = log.Error().Err(v.Error)
			} else if !g.Config.Gateway.HTTP.EnablePrettyLogs {
				evt = log.Debug()
			}
			evt.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	}))

	// CORS
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: g.Config.Gateway.HTTP.CORS.AllowedOrigins,
		AllowHeaders: g.Config.Gateway.HTTP.CORS.AllowedHeaders,
		AllowMethods: g.Config.Gateway.HTTP.CORS.AllowedMethods,
	}))

	e.Use(middleware.Recover())
	e.Use(auth.HTTPMiddleware(g.tokenValidator()))

	g.echo = e
	g.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", g.Config.Gateway.HTTP.Host, g.Config.Gateway.HTTP.Port),
		Handler: e,
	}

	g.baseRouteGroup = e.Group(apiv1.HttpServerBaseRoute)

	apiv1.NewHealthGroup(g.baseRouteGroup.Group("/health"), g.BackendRepo, g.RedisClient)
	apiv1.NewOpportunitiesGroup(g.baseRouteGroup.Group("/opportunities"), g.BackendRepo, g.Contract, g.Config.Pagination)
	apiv1.NewFrequenciesGroup(g.baseRouteGroup.Group("/frequencies"), g.BackendRepo)

	return nil
}

// Handler returns the HTTP handler, initializing routes on first use
func (g *Gateway) Handler() http.Handler {
	if g.echo == nil {
		g.initHTTP()
	}
	return g.echo
}

func (g *Gateway) newReplayer() *indexsync.Replayer {
	return indexsync.NewReplayer(g.BackendRepo, g.Contract, g.Outbox, indexsync.ReplayerConfig{
		MaxAttempts: g.Config.Sync.MaxAttempts,
		RetryDelay:  g.Config.Sync.RetryDelay,
		ReadBlock:   g.Config.Sync.ReadBlock,
	})
}

func (g *Gateway) startReplayer() {
	if g.Outbox == nil {
		return
	}

	g.replayer = g.newReplayer()
	g.replayer.Start(g.ctx)
}

// DrainOutbox replays every queued index operation once and returns how
// many were acknowledged
func (g *Gateway) DrainOutbox(ctx context.Context) (int, error) {
	if g.Outbox == nil {
		return 0, errors.New("index outbox is not enabled (requires sync.outbox and redis)")
	}
	return g.newReplayer().Drain(ctx)
}

// StartAsync starts serving without blocking
func (g *Gateway) StartAsync() error {
	if err := g.Prepare(); err != nil {
		return err
	}

	if g.echo == nil {
		if err := g.initHTTP(); err != nil {
			return fmt.Errorf("failed to initialize http server: %w", err)
		}
	}

	lis, err := net.Listen("tcp", g.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on http: %w", err)
	}

	go func() {
		if err := g.httpServer.Serve(lis); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server error")
		}
	}()

	g.startReplayer()

	log.Info().
		Str("host", g.Config.Gateway.HTTP.Host).
		Int("port", g.Config.Gateway.HTTP.Port).
		Str("mode", g.Config.Mode).
		Bool("outbox", g.Outbox != nil).
		Msg("gateway http server running")

	return nil
}

func (g *Gateway) Start() error {
	if err := g.StartAsync(); err != nil {
		return err
	}

	terminationSignal := make(chan os.Signal, 1)
	signal.Notify(terminationSignal, os.Interrupt, syscall.SIGTERM)
	<-terminationSignal

	log.Info().Msg("termination signal received. shutting down...")
	g.Shutdown()

	return nil
}

// Shutdown stops the server and background work, then closes connections
func (g *Gateway) Shutdown() {
	timeout := g.Config.Gateway.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)

	// Stop HTTP server
	if g.httpServer != nil {
		eg.Go(func() error {
			return g.httpServer.Shutdown(ctx)
		})
	}

	// Stop outbox replayer
	if g.replayer != nil {
		eg.Go(func() error {
			g.replayer.Stop()
			return nil
		})
	}

	g.cancelFunc()

	if err := eg.Wait(); err != nil {
		log.Error().Err(err).Msg("failed to shutdown gateway gracefully")
	}

	g.Close()
	log.Info().Msg("gateway stopped")
}

// Close releases the store, index and Redis connections
func (g *Gateway) Close() {
	if err := g.IndexStore.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close index store")
	}
	if err := g.BackendRepo.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close backend")
	}
	if g.RedisClient != nil {
		if err := g.RedisClient.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close redis")
		}
	}
}
