package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RogueElectron/Cypher/internal/config"
	"github.com/RogueElectron/Cypher/internal/server"
)

func main() {
	cfg := config.Load()

	srv, cleanup := server.NewServer(cfg)
	defer cleanup()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("auth service HTTP server starting on %s", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Println("auth service shutting down gracefully...")
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("auth service shutdown error: %v", err)
		}
	case err := <-errCh:
		log.Fatalf("auth service failed: %v", err)
	}
}
