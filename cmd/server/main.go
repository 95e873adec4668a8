package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/engine"
	"github.com/example/ride-dispatch/internal/eta"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/httpapi"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/logging"
	"github.com/example/ride-dispatch/internal/payments"
	"github.com/example/ride-dispatch/internal/realtime"
	"github.com/example/ride-dispatch/internal/store"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger("api", cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// storage: Postgres when a DSN is given, in-memory otherwise
	var st store.Store
	if cfg.PGDSN != "" {
		if cfg.RunMigrations {
			if err := runMigrations(cfg.PGDSN); err != nil {
				logger.Error("migrations failed", "error", err)
				os.Exit(1)
			}
			logger.Info("migrations applied")
		}
		pg, err := store.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		st = pg
		logger.Info("using postgres store")
	} else {
		st = store.NewMemoryStore()
		logger.Warn("PG_DSN not set, using in-memory store")
	}

	// geo index and realtime channel: Redis-backed when configured so
	// multiple API nodes share state, process-local otherwise
	var (
		g  geo.Geo
		ch realtime.Channel
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		g = geo.NewRedisGeoFromClient(rdb, cfg.RedisGeoKey)
		ch = realtime.NewRedisChannel(rdb, logger)
		logger.Info("using redis geo index and channel", "addr", cfg.RedisAddr)
	} else {
		g = geo.NewIndex()
		ch = realtime.NewHub(logger)
		logger.Warn("REDIS_ADDR not set, using process-local geo index and hub")
	}

	var (
		locations httpapi.LocationPublisher
		events    engine.EventPublisher
	)
	if len(cfg.KafkaBrokers) > 0 {
		lp := ingest.NewLocationProducer(cfg.KafkaBrokers, cfg.KafkaLocationTopic)
		defer lp.Close()
		locations = lp
		ep := ingest.NewEventProducer(cfg.KafkaBrokers, cfg.KafkaEventsTopic)
		defer ep.Close()
		events = ep
		logger.Info("kafka producers enabled", "brokers", cfg.KafkaBrokers)
	}

	var pay engine.FarePayments
	if cfg.StripeAPIKey != "" {
		pay = payments.NewStripeClient(cfg.StripeAPIKey)
		logger.Info("stripe fare holds enabled")
	}

	est := &eta.Estimator{
		Cache:           eta.NewCache(cfg.OfferTTL),
		DefaultSpeedMps: cfg.DefaultSpeedMps,
	}
	if cfg.OSRMEndpoint != "" {
		est.Client = eta.NewOSRMClient(cfg.OSRMEndpoint)
	}

	engCfg := engine.Config{
		RadiusKm:       cfg.SearchRadiusKm,
		CandidateLimit: cfg.CandidateLimit,
		OfferTTL:       cfg.OfferTTL,
		LockWait:       cfg.LockWait,
		Currency:       cfg.Currency,
	}
	broadcaster := engine.NewBroadcaster(g, st, ch, events, est, engCfg, logger)
	coordinator := engine.NewCoordinator(st, ch, g, events, pay, engCfg, logger)

	sweeper := engine.NewSweeper(st, cfg.SweepInterval, logger)
	go sweeper.Run(ctx)

	api := httpapi.New(logger, st, g, broadcaster, coordinator, ch, locations)
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("dispatch api listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", "error", err)
	}
}

func runMigrations(dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_rides.sql"))
	if err != nil {
		return err
	}
	_, err = db.Exec(string(b))
	return err
}
