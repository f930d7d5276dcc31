package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kidchat/config"
	"kidchat/internal/logging"
	"kidchat/internal/stubapi"
	"kidchat/internal/stubapi/state"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to stub configuration file (built-in accounts when empty)")
	logFormat := flag.String("log-format", "text", "Log format: json or text")
	logLevel := flag.String("log-level", "info", "Log level")
	devRoutes := flag.Bool("dev-routes", true, "Enable /dev endpoints")
	flag.Parse()

	logger := logging.NewLogger(logging.LoggerConfig{
		Format: *logFormat,
		Level:  logging.ParseLevel(*logLevel),
	})

	cfg := config.DefaultStubConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadStubConfig(*configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}

	backend, err := state.NewBackend(cfg, 0)
	if err != nil {
		return fmt.Errorf("failed to initialize backend: %w", err)
	}

	router := stubapi.NewRouter(stubapi.RouterConfig{
		Backend:   backend,
		Logger:    logger,
		DevRoutes: *devRoutes,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting stub API server",
			"addr", addr,
			"parents", len(cfg.Parents),
			"children", len(cfg.Children),
			"total_levels", cfg.Game.TotalLevels,
			"dev_routes", *devRoutes,
		)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info("received signal, shutting down", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		logger.Info("graceful shutdown complete")
	}

	return nil
}
