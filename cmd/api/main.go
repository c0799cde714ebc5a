package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"airwaves/api/internal/app"
	"airwaves/api/internal/config"
	"airwaves/api/internal/logging"
	"airwaves/api/internal/registry"
	"airwaves/api/internal/repair"
	"airwaves/api/internal/search"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(logging.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	dataStore, closeStore, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store unavailable", zap.Error(err))
	}
	defer closeStore()

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewPrefix(dataStore), logger)
	go searchService.ReindexAll(ctx)

	backends := app.OpenRepairBackends(ctx, cfg, logger)
	defer backends.Close()

	reg := registry.New(dataStore, registry.Config{
		TxRetries:     cfg.TxRetries,
		RetryBackoff:  cfg.RetryBackoff,
		PublicBaseURL: cfg.PublicBaseURL,
		Logger:        logger.Named("registry"),
		Index:         searchService,
	})
	runner := repair.NewRunner(dataStore, repair.Config{
		PageSize: cfg.RepairPage,
		Logger:   logger.Named("repair"),
		Hooks:    backends.Hooks(logger),
	})

	deps := app.Deps{
		Store:    dataStore,
		Registry: reg,
		Repairs:  runner,
		Search:   searchService,
		Logger:   logger,
	}
	if backends.Runs != nil {
		deps.Runs = backends.Runs
	}
	service := app.New(cfg, deps)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger.Named("http"))
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("airwaves registry API listening", zap.String("addr", cfg.Addr), zap.String("store", cfg.StoreBackend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
}
