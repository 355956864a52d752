package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/botjam/stage/config"
	"github.com/botjam/stage/internal/hub"
	"github.com/botjam/stage/internal/ratelimit"
	store "github.com/botjam/stage/internal/repository"
	"github.com/botjam/stage/internal/service"
	transport "github.com/botjam/stage/internal/transport/http"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting stage server...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize broadcast hub and rate limiter
	liveHub := hub.New()
	limiter := ratelimit.New()

	// Initialize service
	svc := service.New(db, liveHub, cfg)

	// Resolve today's challenge up front so the first viewer sees it
	if _, err := svc.EnsureTodayChallenge(context.Background()); err != nil {
		log.Fatalf("Failed to resolve today's challenge: %v", err)
	}

	// Create HTTP server
	server := transport.NewServer(svc, liveHub, limiter, cfg)

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Stage API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down stage server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Stage server stopped")
}
