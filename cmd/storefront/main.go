// Package main запускает HTTP-сервер витрины с выбором даты самовывоза.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/pickup-storefront/internal/availability"
	"github.com/mmeshcher/pickup-storefront/internal/capacity"
	"github.com/mmeshcher/pickup-storefront/internal/checkout"
	"github.com/mmeshcher/pickup-storefront/internal/config"
	"github.com/mmeshcher/pickup-storefront/internal/handler"
	"github.com/mmeshcher/pickup-storefront/internal/middleware"
	"github.com/mmeshcher/pickup-storefront/internal/ordering"
	"github.com/mmeshcher/pickup-storefront/internal/storefront"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	rules, err := availability.ParseRules(cfg.Rules())
	if err != nil {
		sugar.Fatalw("availability rules error", "error", err.Error())
	}
	engine := availability.NewEngine(rules, nil)

	if cfg.OrderEndpoint == "" {
		sugar.Warn("order endpoint is not configured, submissions will fail and counts stay empty")
	}

	syncer := capacity.NewSyncer(capacity.NewClient(cfg.OrderEndpoint), logger)
	orders := ordering.NewClient(cfg.OrderEndpoint, cfg.OrderOpaqueResponse)
	coordinator := checkout.NewCoordinator(orders, syncer, engine, logger)

	registry := storefront.NewRegistry(storefront.Deps{
		Capacity:    syncer,
		Engine:      engine,
		Coordinator: coordinator,
	}, cfg.SessionTTL)
	registry.SetMaxSessions(cfg.MaxSessions)

	sessions := middleware.NewSessionMiddleware(cfg.SessionSecret, registry)
	h := handler.NewHandler(logger, sessions)

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: h.SetupRouter(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Первичная загрузка счётчиков; при ошибке витрина работает по статическим правилам
	syncer.Refresh(ctx)
	syncer.StartRefresh(ctx, cfg.CountsRefreshInterval)
	registry.StartSweeper(ctx, time.Minute)

	g.Go(func() error {
		sugar.Infow("starting storefront server",
			"addr", cfg.RunAddress,
			"orderEndpoint", cfg.OrderEndpoint,
			"opaqueResponse", cfg.OrderOpaqueResponse,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
