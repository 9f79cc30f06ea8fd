package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GriffinCanCode/browserrelay/internal/infrastructure/config"
	"github.com/GriffinCanCode/browserrelay/internal/infrastructure/server"
	flag "github.com/spf13/pflag"
)

func main() {
	// Parse flags
	configPath := flag.StringP("config", "c", "", "YAML or TOML config file")
	port := flag.StringP("port", "p", "", "Server port (overrides PORT)")
	host := flag.String("host", "", "Listen host (overrides HOST)")
	mode := flag.StringP("mode", "m", "", "Relay mode: isolated or shared (overrides RELAY_MODE)")
	startURL := flag.String("url", "", "Default start URL (overrides BROWSER_START_URL)")
	autoStart := flag.Bool("auto-start", false, "Launch the shared browser at boot")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *port != "" {
		cfg.Server.Port = *port
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *mode != "" {
		cfg.Relay.Mode = *mode
	}
	if *startURL != "" {
		cfg.Browser.StartURL = *startURL
	}
	if *autoStart {
		cfg.Browser.AutoStart = true
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	// Create server
	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run(ctx)
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
	case err := <-errChan:
		if err != nil {
			log.Printf("Server error: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}
