package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/punchamoorthee/paycore/internal/api"
	"github.com/punchamoorthee/paycore/internal/config"
	"github.com/punchamoorthee/paycore/internal/core"
	"github.com/punchamoorthee/paycore/internal/logging"
	"github.com/punchamoorthee/paycore/internal/service"
	"github.com/punchamoorthee/paycore/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := store.Open(ctx, cfg.Backend, cfg.DBSource)
	if err != nil {
		return err
	}
	ledgerStore := store.NewResilient(backend, store.ResilienceConfig{
		Timeout:     cfg.StoreTimeout,
		MaxFailures: cfg.BreakerMaxFailures,
		OpenTimeout: cfg.BreakerOpenTimeout,
	}, logger)
	defer ledgerStore.Close()

	// Initialize Layers
	paymentCore := core.New(ledgerStore, core.Config{
		SystemAccountID: cfg.SystemAccountID,
		Ledger:          cfg.LedgerID,
		AccountCode:     cfg.AccountCode,
	}, logger)
	if err := paymentCore.InitializeSystemAccount(ctx); err != nil {
		return err
	}
	paymentService := service.NewPaymentService(paymentCore, logger)

	var idempotency api.IdempotencyStore
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		idempotency = api.NewRedisIdempotency(rdb, cfg.IdempotencyTTL)
		logger.Info("idempotency enabled", zap.String("redis", cfg.RedisAddr))
	}

	// Router
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	api.NewHandler(paymentService, idempotency, logger).Routes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("backend", cfg.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
