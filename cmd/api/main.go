package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/safar/go-stock-ledger/internal/api"
	"github.com/safar/go-stock-ledger/internal/config"
	"github.com/safar/go-stock-ledger/internal/database"
	"github.com/safar/go-stock-ledger/internal/ledger"
	"github.com/safar/go-stock-ledger/internal/logger"
	"github.com/safar/go-stock-ledger/internal/report"
	"github.com/safar/go-stock-ledger/internal/store"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(logger.Config{})
		bootLog.Fatal().Err(err).Msg("load config")
	}

	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to database")
	}
	defer db.Close()

	log.Info().Msg("connected to database")

	if os.Getenv("MIGRATE_ON_START") == "true" {
		m, err := database.NewMigrator(db, log)
		if err != nil {
			log.Fatal().Err(err).Msg("create migrator")
		}
		if err := m.Up(); err != nil {
			log.Fatal().Err(err).Msg("apply migrations")
		}
	}

	txOpts := database.DefaultTxOptions()
	txOpts.LockTimeout = cfg.Database.LockTimeout
	txOpts.MaxRetries = cfg.Database.MaxRetries
	st := store.NewPostgresStore(db, txOpts)

	var cache *report.Cache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer rdb.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, reports will be computed until it recovers")
		}
		cancel()

		cache = report.NewCache(rdb, cfg.Redis.CacheTTL)
	}

	loc, err := cfg.Report.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("resolve report timezone")
	}

	engineOpts := []ledger.Option{ledger.WithLogger(log)}
	if cache != nil {
		engineOpts = append(engineOpts, ledger.WithInvalidator(cache))
	}
	engine := ledger.NewEngine(st, engineOpts...)

	reports := report.NewService(st,
		report.WithCache(cache),
		report.WithLocation(loc),
		report.WithLowStockThreshold(cfg.Report.LowStockThreshold),
		report.WithLogger(log),
	)

	handler := api.NewHandler(engine, st, reports, log)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatal().Err(err).Msg("server error")
		}
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown")
	}
}
