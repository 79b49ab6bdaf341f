package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"gopartsync_api/config"
	"gopartsync_api/internal/app"
	"gopartsync_api/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the yaml config")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		logger.NewLogger(nil, "[main] ").Error("%v", err)
		os.Exit(1)
	}
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.NewLogger(nil, "[main] ").Error("load config %s: %v", *configPath, err)
		os.Exit(1)
	}

	logger.Init(cfg.Log.Environment)
	log := logger.NewLogger(nil, "[partsync]")
	log.Log("Started app (storage=%s)", cfg.Storage)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := app.NewServer(cfg, log)
	if err := server.Init(ctx); err != nil {
		log.Error("init: %v", err)
		os.Exit(1)
	}
	if err := server.Run(ctx); err != nil {
		log.Error("server stopped: %v", err)
		os.Exit(1)
	}
	log.Log("stopped")
}
