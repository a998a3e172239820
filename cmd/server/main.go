package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"example.com/staticd/internal/config"
	"example.com/staticd/internal/logger"
	"example.com/staticd/internal/server"
	"example.com/staticd/internal/staticfile"
)

var (
	configFilePath string
	addrOverride   string
)

func main() {
	flag.StringVar(&configFilePath, "config", "", "Path to the configuration file (JSON or TOML); defaults are used when empty")
	flag.StringVar(&addrOverride, "addr", "", "Listen address, overriding server.address")
	flag.Parse()

	if flag.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "Error: unexpected arguments: %v\n", flag.Args())
		flag.Usage()
		os.Exit(2)
	}

	// 1. Load configuration
	cfg := config.Default()
	if configFilePath != "" {
		absConfigPath, err := filepath.Abs(configFilePath)
		if err != nil {
			log.Fatalf("Error getting absolute path for config file %s: %v", configFilePath, err)
		}
		cfg, err = config.LoadConfig(absConfigPath)
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	if addrOverride != "" {
		cfg.Server.Address = &addrOverride
	}
	timeouts, err := cfg.Server.ParseTimeouts()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// 2. Initialize logger
	appLogger, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		if err := appLogger.CloseLogFiles(); err != nil {
			log.Printf("Error closing log files during shutdown: %v", err)
		}
	}()

	// 3. Static file dispatcher rooted at the working directory
	dispatcher, err := staticfile.New(cfg.Static, "", appLogger)
	if err != nil {
		appLogger.Error("Failed to initialize static file dispatcher", logger.LogFields{"error": err.Error()})
		os.Exit(1)
	}

	// 4. Server
	srv, err := server.NewServer(cfg, appLogger, dispatcher)
	if err != nil {
		appLogger.Error("Failed to initialize server", logger.LogFields{"error": err.Error()})
		os.Exit(1)
	}
	if err := srv.Listen(); err != nil {
		appLogger.Error("Failed to listen", logger.LogFields{"error": err.Error()})
		os.Exit(1)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	// 5. Signals: SIGINT/SIGTERM shut down gracefully, SIGHUP reopens log files.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)

	exitCode := 0
	for running := true; running; {
		select {
		case sig := <-sigs:
			if sig == syscall.SIGHUP {
				if err := appLogger.ReopenLogFiles(); err != nil {
					appLogger.Error("Failed to reopen log files", logger.LogFields{"error": err.Error()})
				} else {
					appLogger.Info("Log files reopened")
				}
				continue
			}
			appLogger.Info("Received signal, shutting down", logger.LogFields{"signal": sig.String()})
			ctx := context.Background()
			if timeouts.GracefulShutdown > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeouts.GracefulShutdown)
				defer cancel()
			}
			if err := srv.Shutdown(ctx); err != nil {
				appLogger.Warn("Graceful shutdown incomplete", logger.LogFields{"error": err.Error()})
				exitCode = 1
			}
			<-serveErr
			running = false
		case err := <-serveErr:
			if !errors.Is(err, server.ErrServerClosed) {
				appLogger.Error("Server exited with an error", logger.LogFields{"error": err.Error()})
				exitCode = 1
			}
			running = false
		}
	}

	appLogger.Info("Server has shut down. Exiting.")
	if exitCode != 0 {
		appLogger.CloseLogFiles()
		os.Exit(exitCode)
	}
}
