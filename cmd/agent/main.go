package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/wanghui5801/fleetmon/internal/agent"
	"github.com/wanghui5801/fleetmon/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config file")
	serverURL := flag.String("server", "", "fleet server base URL (overrides config)")
	name := flag.String("name", "", "node name (defaults to hostname)")
	location := flag.String("location", "", "location override (two-letter country code)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *serverURL != "" {
		cfg.Agent.ServerURL = *serverURL
	}
	if *name != "" {
		cfg.Agent.Name = *name
	}
	if *location != "" {
		cfg.Agent.Location = *location
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	collector := agent.NewCollector(cfg.Agent.Name, cfg.Agent.Location)
	reporter := agent.NewReporter(collector, cfg.Agent.ServerURL, logger)
	reporter.Run(ctx, cfg.Agent.Interval())
}
