package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/chatrelay/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := server.LoadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	logger, err := server.NewLogger(cfg.Development)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	metrics := server.NewMetrics()

	registry, err := server.NewRegistry(cfg.MaxHistorySize, metrics)
	if err != nil {
		logger.Fatal("registry init", zap.Error(err))
	}

	handler := server.NewHandler(cfg, registry, logger, metrics)
	mux := server.SetupRoutes(handler, metrics)
	httpServer := server.CreateServer(cfg.Port, mux)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.StartServer(httpServer, logger)
	})
	g.Go(func() error {
		<-ctx.Done()
		if err := server.ShutdownServer(httpServer, shutdownTimeout, logger); err != nil {
			return err
		}
		return handler.Shutdown(shutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
	logger.Info("server stopped")
}
