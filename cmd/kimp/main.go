package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kimp/internal/arbitrage"
	"kimp/internal/config"
	"kimp/internal/engine"
	"kimp/internal/fx"
	"kimp/internal/hub"
	"kimp/internal/logger"
	"kimp/internal/store"
	"kimp/internal/strategy/auto"
	"kimp/internal/transport"
	"kimp/internal/venue/bybit"
	"kimp/internal/venue/upbit"
)

func main() {
	cfgPath := os.Getenv("KIMP_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config failed: %v", err)
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("config loaded from %s", cfgPath)

	journal, err := store.Open(cfg.App.DBPath)
	if err != nil {
		log.Fatalf("opening journal failed: %v", err)
	}
	defer journal.Close()

	domestic := upbit.NewClient(cfg.Upbit.AccessKey, cfg.Upbit.SecretKey)
	foreign := bybit.NewClient(cfg.Bybit.AccessKey, cfg.Bybit.SecretKey, bybit.CategorySpot)
	rates := fx.NewCache(fx.NewClient(), time.Minute)

	strategy := auto.New(domestic, cfg.Auto)
	monitor := arbitrage.NewMonitor(domestic, foreign, rates, cfg.Arbitrage)
	events := hub.New()
	eng := engine.New(strategy, monitor, journal, events, cfg.Engine)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.Watch(cfgPath, func(next *config.Config) {
		logger.SetLevel(next.App.LogLevel)
		logger.Infof("config reloaded")
	}, func(err error) {
		logger.Warnf("config reload rejected: %v", err)
	}); err != nil {
		logger.Warnf("config watch unavailable: %v", err)
	}

	eng.Start(ctx)

	server := transport.NewServer(cfg.App.Listen, eng, strategy, monitor, journal, events, domestic, foreign)
	if err := server.Start(ctx); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
	logger.Infof("shutdown complete")
}
