package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kamrah/camsync/internal/core/api"
	"github.com/kamrah/camsync/internal/core/cache"
	"github.com/kamrah/camsync/internal/core/config"
	"github.com/kamrah/camsync/internal/core/connectivity"
	"github.com/kamrah/camsync/internal/core/domain"
	"github.com/kamrah/camsync/internal/core/observability/log"
	"github.com/kamrah/camsync/internal/core/queue"
	"github.com/kamrah/camsync/internal/core/realtime"
	"github.com/kamrah/camsync/internal/core/storage"
	"github.com/kamrah/camsync/internal/core/syncer"
)

func main() {
	configPath := flag.String("config", "camsync.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error loading config:", err)
		os.Exit(1)
	}

	token := os.Getenv("CAMSYNC_TOKEN")
	if token == "" {
		fmt.Fprintln(os.Stderr, "CAMSYNC_TOKEN is not set")
		os.Exit(1)
	}

	logger := log.New(log.ParseLevel(cfg.Log.Level))

	store, err := storage.OpenBadger(storage.Options{
		Path:     cfg.Storage.Path,
		InMemory: cfg.Storage.InMemory,
	}, logger)
	if err != nil {
		logger.Error("Failed to open local store", log.Error(err))
		os.Exit(1)
	}

	client := api.NewClient(api.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
	}, logger)

	monitor := connectivity.NewMonitor(
		connectivity.ProbeFunc(client.Health),
		connectivity.Config{Interval: cfg.Sync.ProbeInterval},
		logger,
	)

	channel := realtime.NewChannel(realtime.Config{
		URL:               cfg.Realtime.URL,
		HeartbeatInterval: cfg.Realtime.HeartbeatInterval,
		InitialBackoff:    cfg.Realtime.InitialBackoff,
		MaxBackoff:        cfg.Realtime.MaxBackoff,
	}, logger)

	s := syncer.New(
		syncer.Config{
			DrainInterval:   cfg.Sync.DrainInterval,
			RefreshInterval: cfg.Sync.RefreshInterval,
		},
		client,
		cache.New(),
		queue.New(store, logger),
		monitor,
		channel,
		store,
		logger,
		func(entry domain.LogEntry) {
			logger.Warn("Notification", log.String("message", entry.Message))
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	if err := s.Start(ctx, token); err != nil {
		logger.Error("Failed to start syncer", log.Error(err))
		os.Exit(1)
	}

	<-stopCh
	cancel()
	s.Stop()
	if err := store.Close(); err != nil {
		logger.Error("Failed to close local store", log.Error(err))
	}
}
