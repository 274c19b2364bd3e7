package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"carebridge/internal/app"
	"carebridge/internal/config"
	"carebridge/pkg/logger"
)

// FUNCTIONAL DISCOVERY: Main entry point with signal management
// Graceful shutdown on SIGINT/SIGTERM ensures proper resource cleanup
func main() {
	configPath := flag.String("config", os.Getenv(config.EnvPrefix+"_CONFIG_FILE"), "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "carebridge: %v\n", err)
		os.Exit(1)
	}
}

// ARCHITECTURAL DISCOVERY: Separate run function enables testing and error handling
func run(configPath string) error {
	// STEP 1: Load configuration with precedence (env > file > defaults)
	cfg, err := config.LoadConfigWithPrecedence(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, log)
}

// serve runs the application until ctx is cancelled or a background loop fails
func serve(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	// STEP 2: Create application with configuration
	application, err := app.NewApplication(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	// STEP 3: Start listener and background loops
	if err := application.Start(ctx); err != nil {
		return errors.Join(fmt.Errorf("failed to start application: %w", err), application.Stop(context.Background()))
	}

	// STEP 4: Wait for shutdown signal or application error
	waitErr := make(chan error, 1)
	go func() { waitErr <- application.Wait() }()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case runErr = <-waitErr:
		if runErr != nil {
			log.Error().Err(runErr).Msg("background loop failed")
		}
	}

	// Timeout context prevents hanging shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := application.Stop(shutdownCtx); err != nil {
		return errors.Join(runErr, fmt.Errorf("shutdown error: %w", err))
	}
	return runErr
}
