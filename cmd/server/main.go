package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wanghui5801/fleetmon/internal/api"
	"github.com/wanghui5801/fleetmon/internal/auth"
	"github.com/wanghui5801/fleetmon/internal/broadcast"
	"github.com/wanghui5801/fleetmon/internal/config"
	"github.com/wanghui5801/fleetmon/internal/natsbus"
	"github.com/wanghui5801/fleetmon/internal/registry"
	"github.com/wanghui5801/fleetmon/internal/storage"
	"github.com/wanghui5801/fleetmon/internal/sweeper"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	store, err := storage.NewBadgerStore(cfg.Server.DBPath)
	if err != nil {
		logger.Fatal("open store", zap.Error(err), zap.String("path", cfg.Server.DBPath))
	}

	hub := broadcast.NewHub(cfg.Server.ObserverQueueSize, logger)
	pubs := []registry.Publisher{hub}

	var bus *natsbus.Publisher
	if cfg.Server.NATSURL != "" {
		bus, err = natsbus.NewPublisher(cfg.Server.NATSURL, logger)
		if err != nil {
			logger.Fatal("connect nats", zap.Error(err), zap.String("url", cfg.Server.NATSURL))
		}
		pubs = append(pubs, bus)
	}

	ctx, cancel := context.WithCancel(context.Background())
	reg, err := registry.New(ctx, store, cfg.Server.AdmissionRequired, logger, pubs...)
	if err != nil {
		logger.Fatal("init registry", zap.Error(err))
	}

	sw := sweeper.New(reg, cfg.Server.SweepPeriod(), cfg.Server.StaleAfter(), logger)
	go sw.Start(ctx)

	authMgr := auth.NewManager(store, cfg.Server.JWTSecret)
	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: api.NewHandler(reg, hub, authMgr, logger),
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.Server.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown initiated")

	// Stop the sweeper and let in-flight record transactions finish
	// before the store goes away.
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", zap.Error(err))
	}
	hub.Close()
	if bus != nil {
		bus.Close()
	}
	if err := store.Close(); err != nil {
		logger.Warn("close store", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
