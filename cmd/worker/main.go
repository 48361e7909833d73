package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-levy/internal/config"
	dbgen "github.com/noah-isme/backend-levy/internal/db/gen"
	"github.com/noah-isme/backend-levy/internal/events"
	"github.com/noah-isme/backend-levy/internal/ingest"
	"github.com/noah-isme/backend-levy/internal/lock"
	"github.com/noah-isme/backend-levy/internal/notify"
	"github.com/noah-isme/backend-levy/internal/obs"
	"github.com/noah-isme/backend-levy/internal/ratecache"
	"github.com/noah-isme/backend-levy/internal/rates"
	"github.com/noah-isme/backend-levy/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.ObsLogFormat, cfg.ObsLogLevel).With().Str("component", "worker").Logger()
	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "levy"), nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, queries := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	cache := ratecache.New(ratecache.Config{
		Client:       redisClient,
		TTL:          cfg.RateCacheTTL,
		FetchTimeout: cfg.CacheFetchTimeout,
	})
	breaker := resilience.NewBreaker(10, 0.5, 30*time.Second).WithTarget("rate-store").WithLogger(logger)
	store := &rates.Store{Q: queries, Breaker: breaker, Timeout: cfg.StoreTimeout}
	bus := &events.Bus{Store: queries}
	if endpoints := notify.ParseEndpoints(envOrDefault("WEBHOOK_URLS", ""), envOrDefault("WEBHOOK_SECRET", "")); len(endpoints) > 0 {
		bus.Notifiers = append(bus.Notifiers, &notify.Webhook{Endpoints: endpoints, Logger: &logger})
	}

	admin := &rates.Admin{Store: store, Cache: cache, Bus: bus, Logger: &logger}
	processor := &ingest.Processor{
		Admin:  admin,
		Locker: lock.Locker{R: redisClient, RetryBackoff: 50 * time.Millisecond},
		Logger: &logger,
	}

	redisOpts, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for task server")
	}
	server := asynq.NewServer(redisOpts, asynq.Config{
		Concurrency: envInt("INGEST_CONCURRENCY", 4),
		Queues:      map[string]int{"default": 1},
	})
	mux := asynq.NewServeMux()
	processor.Register(mux)

	go func() {
		<-ctx.Done()
		logger.Info().Msg("worker draining")
		server.Shutdown()
	}()

	logger.Info().Msg("worker starting")
	if err := server.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped with error")
	}
	logger.Info().Msg("worker shutdown complete")
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*pgxpool.Pool, *dbgen.Queries) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool, dbgen.New(pool)
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}
