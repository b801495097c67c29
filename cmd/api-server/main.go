package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hackgods/booking-availability/internal/api"
	"github.com/hackgods/booking-availability/internal/appointment"
	"github.com/hackgods/booking-availability/internal/config"
	"github.com/hackgods/booking-availability/internal/db"
	"github.com/hackgods/booking-availability/internal/logging"
	redisclient "github.com/hackgods/booking-availability/internal/redis"
	"github.com/hackgods/booking-availability/internal/telemetry"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.Setup("prod")
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.Setup(cfg.Env)
	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("store", cfg.StoreDriver).
		Str("timezone", cfg.Location.String()).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(rootCtx, telemetry.TracerConfig{
		Enabled:      cfg.OTelEnabled,
		ServiceName:  "booking-api",
		OTLPEndpoint: cfg.OTelEndpoint,
		SampleRatio:  cfg.OTelSamplingRate,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("tracer init error")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			logger.Warn().Err(err).Msg("error flushing traces")
		}
	}()

	var (
		repo   appointment.Repository
		pgPool *pgxpool.Pool
	)
	switch cfg.StoreDriver {
	case config.StorePostgres:
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		if err == nil {
			err = db.EnsureSchema(pgCtx, pgPool)
		}
		cancelPg()
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres setup error")
		}
		defer pgPool.Close()
		logger.Info().Msg("connected to Postgres")
		repo = appointment.NewPgRepository(pgPool)
	default:
		logger.Warn().Msg("using in-memory store, data is lost on restart")
		repo = appointment.NewMemoryRepository()
	}

	opts := []appointment.Option{}
	var rdb *redis.Client
	if cfg.DayLockEnabled {
		rdb, err = redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection error")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing redis")
			}
		}()
		logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis, day lock enabled")
		opts = append(opts, appointment.WithDayLocker(redisclient.NewRedisDayLocker(rdb, cfg.LockTTL, cfg.LockWait)))
	}

	svc := appointment.NewService(repo, cfg, logger, opts...)

	router := api.NewRouter(api.RouterConfig{
		Service:        svc,
		PgPool:         pgPool,
		Redis:          rdb,
		Logger:         logger,
		JWTSecret:      []byte(cfg.JWTSecret),
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Env:            cfg.Env,
		Version:        version,
	})

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.HTTPPort),
		Handler:           otelhttp.NewHandler(router, "http.server"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-rootCtx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error().Err(err).Msg("http server error")
		}
	}

	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
