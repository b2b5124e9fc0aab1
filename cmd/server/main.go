package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiwari-pos/fulfillment/internal/cache"
	"github.com/kiwari-pos/fulfillment/internal/clock"
	"github.com/kiwari-pos/fulfillment/internal/config"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/kiwari-pos/fulfillment/internal/inventory"
	"github.com/kiwari-pos/fulfillment/internal/reconcile"
	"github.com/kiwari-pos/fulfillment/internal/report"
	"github.com/kiwari-pos/fulfillment/internal/router"
	"github.com/kiwari-pos/fulfillment/internal/sales"
	"github.com/kiwari-pos/fulfillment/internal/service"
	"github.com/kiwari-pos/fulfillment/internal/ws"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	log := cfg.NewLogger()

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk, err := clock.New(cfg.Timezone)
	if err != nil {
		return err
	}

	if cfg.MigrateOnStart {
		if err := database.Migrate(cfg.MigrationsPath, cfg.DatabaseURL); err != nil {
			return err
		}
		log.Info("migrations applied")
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	queries := database.New(pool)
	c := cache.New(cfg.CacheMaxSize, cfg.CacheTTL)
	rt := cache.NewReadThrough(c)

	hub := ws.NewHub(log.WithField("component", "ws"))
	go hub.Run(ctx)

	stockLedger := inventory.NewLedger(pool, queries, func(db database.DBTX) inventory.Store {
		return database.New(db)
	}, rt, log.WithField("component", "inventory"))

	salesLedger := sales.NewLedger(pool, queries, func(db database.DBTX) sales.Store {
		return database.New(db)
	}, clk, rt, log.WithField("component", "sales"))

	overrides := sales.NewOverrideStore(queries, clk, rt, log.WithField("component", "overrides"))

	orders := service.NewOrderService(pool, func(db database.DBTX) service.OrderStore {
		return database.New(db)
	}, salesLedger, stockLedger, rt, clk, log.WithField("component", "orders"),
		service.WithPublisher(hub),
		service.WithStrictStock(cfg.StrictStock),
	)

	reports := report.NewAggregator(queries, overrides, clk, rt, log.WithField("component", "report"))

	reconciler := reconcile.New(salesLedger, clk, cfg.ReconcileInterval, log.WithField("component", "reconcile"))
	reconciler.Start(ctx)
	defer reconciler.Stop()

	r := router.New(cfg, router.Services{
		DB:        pool,
		Cache:     c,
		Orders:    orders,
		OrderRead: queries,
		Inventory: stockLedger,
		Sales:     salesLedger,
		Overrides: overrides,
		Reports:   reports,
	}, hub, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).WithField("timezone", cfg.Timezone).Info("starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
