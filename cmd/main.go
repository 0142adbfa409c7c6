package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/yanayukhimuk/Logging/core"
	"github.com/yanayukhimuk/Logging/pkg/auth"
	"github.com/yanayukhimuk/Logging/pkg/settings"
	prometheussink "github.com/yanayukhimuk/Logging/plugins/sink/prometheus"
	"github.com/yanayukhimuk/Logging/store"
	"github.com/yanayukhimuk/Logging/web"

	// Import plugins for auto-registration
	_ "github.com/yanayukhimuk/Logging/plugins/filter/level"
	_ "github.com/yanayukhimuk/Logging/plugins/filter/rate_limit"
	_ "github.com/yanayukhimuk/Logging/plugins/filter/regex"
	_ "github.com/yanayukhimuk/Logging/plugins/sink/alerting"
	_ "github.com/yanayukhimuk/Logging/plugins/sink/console"
	_ "github.com/yanayukhimuk/Logging/plugins/sink/elasticsearch"
	_ "github.com/yanayukhimuk/Logging/plugins/sink/file"
	_ "github.com/yanayukhimuk/Logging/plugins/sink/kafka"
	_ "github.com/yanayukhimuk/Logging/plugins/sink/redis"
	_ "github.com/yanayukhimuk/Logging/plugins/transport/email"
	_ "github.com/yanayukhimuk/Logging/plugins/transport/slack"
)

func main() {
	// Command line flags
	settingsFile := flag.String("settings", "", "Path to settings file (YAML)")
	loggingFile := flag.String("logging", "", "Path to logging configuration, overrides logging.config")
	flag.Parse()

	cfg, err := settings.Load(*settingsFile)
	if err != nil {
		log.Fatalf("Error loading settings: %v", err)
	}
	if *loggingFile != "" {
		cfg.Logging.Config = *loggingFile
	}

	// Logging comes first; the application cannot run without it
	loggingConfig, err := core.LoadConfig(cfg.Logging.Config)
	if err != nil {
		log.Fatalf("Error loading logging config: %v", err)
	}
	logging, err := core.Load(loggingConfig)
	if err != nil {
		log.Fatalf("Error configuring logging: %v", err)
	}
	log.Printf("Loaded logging configuration from %s (%d sinks)", cfg.Logging.Config, len(logging.Sinks))

	appLogger := logging.Logger("Program")

	health := core.NewHealthMonitor(core.HealthMonitorConfig{
		Interval: cfg.Health.Interval,
		Timeout:  cfg.Health.Timeout,
	}, logging.Sinks)
	health.Start()
	logging.OnClose(func() { _ = health.Close() })

	db, err := store.Open(cfg.Database.DSN, logging.Logger("Store"))
	if err != nil {
		appLogger.Critical("Failed to open database", err, core.F("dsn", cfg.Database.DSN))
		_ = logging.Close()
		os.Exit(1)
	}

	keyring, err := auth.NewKeyring(cfg.Admin.APIKeys)
	if err != nil {
		appLogger.Critical("Invalid admin API keys", err)
		_ = logging.Close()
		os.Exit(1)
	}

	opts := web.Options{
		Mode:       cfg.Server.Mode,
		Loggers:    logging,
		Repository: store.NewSessionRepository(db),
		Health:     health,
		Stats:      logging.Stats,
		Keyring:    keyring,
	}
	if metrics, ok := core.FindSink[*prometheussink.PrometheusSink](logging.Sinks); ok {
		if err := metrics.Register(prometheussink.NewSinkStatsCollector("", logging.Stats)); err != nil {
			appLogger.Warn("Sink stats collector not registered", core.F("error", err))
		}
		opts.Metrics = metrics.Handler()
	}

	router, err := web.NewRouter(opts)
	if err != nil {
		log.Fatalf("Error creating router: %v", err)
	}
	server, err := web.Listen(cfg.Server.Address, router)
	if err != nil {
		appLogger.Critical("Failed to start server", err, core.F("address", cfg.Server.Address))
		_ = logging.Close()
		os.Exit(1)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve() }()
	appLogger.Info("Listening", core.F("address", server.Addr().String()))

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		appLogger.Info("Shutting down", core.F("signal", sig.String()))
	case err := <-serveErr:
		if err != nil {
			appLogger.Critical("Server stopped unexpectedly", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		appLogger.Error("Server shutdown incomplete", err)
	}

	// Closing logging flushes pending alert batches
	if err := logging.Close(); err != nil {
		log.Printf("Error closing logging: %v", err)
	}
	if err := store.Close(db); err != nil {
		log.Printf("Error closing database: %v", err)
	}
	log.Println("BrainstormSessions shutdown complete")
}
