package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThuyDang88/webview/internal/infrastructure/config"
	"github.com/ThuyDang88/webview/internal/infrastructure/server"
)

func main() {
	// Parse flags
	port := flag.String("port", "", "Listen port (overrides PORT)")
	backend := flag.String("engine", "", "Engine backend, inproc or chromium (overrides ENGINE_BACKEND)")
	manifestPath := flag.String("manifest", "", "View manifest seeded on startup (overrides VIEWS_MANIFEST)")
	dev := flag.Bool("dev", false, "Development mode: colored logs, debug level")
	flag.Parse()

	// Environment provides the base configuration, flags override it.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *backend != "" {
		cfg.Engine.Backend = *backend
	}
	if *manifestPath != "" {
		cfg.Views.ManifestPath = *manifestPath
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
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-sigChan:
		log.Println("Shutting down gracefully...")
		if err := srv.Close(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	case err := <-errChan:
		log.Fatalf("Server error: %v", err)
	}
}
