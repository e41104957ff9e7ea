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

	"github.com/kurtismassey/project-stargate/internal/api"
	"github.com/kurtismassey/project-stargate/internal/blob"
	"github.com/kurtismassey/project-stargate/internal/config"
	"github.com/kurtismassey/project-stargate/internal/db"
	"github.com/kurtismassey/project-stargate/internal/gemini"
	"github.com/kurtismassey/project-stargate/internal/hub"
	"github.com/kurtismassey/project-stargate/internal/repository"
	"github.com/kurtismassey/project-stargate/internal/services"
	"github.com/kurtismassey/project-stargate/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("🛑 Failed to load configuration: %v", err)
	}

	shutdownTracer, err := telemetry.InitJaeger("project-stargate", cfg.JaegerEndpoint)
	if err != nil {
		log.Printf("⚠️  Failed to initialize tracing, continuing without: %v", err)
		shutdownTracer = func(context.Context) error { return nil }
	}

	database, err := db.NewGorm(cfg)
	if err != nil {
		log.Fatalf("🛑 Failed to connect to database: %v", err)
	}
	defer database.Close()

	sessionRepo := repository.NewSessionRepository(database.DB)
	messageRepo := repository.NewMessageRepository(database.DB)
	detailRepo := repository.NewDetailRepository(database.DB)

	geminiClient := gemini.NewClient(cfg.GeminiAPIKey, cfg.GeminiModel)

	images, err := blob.NewS3Store(context.Background(), cfg.StorageBucket, cfg.AWSRegion)
	if err != nil {
		log.Fatalf("🛑 Failed to connect to blob storage: %v", err)
	}

	indexer := services.NewDetailIndexer(geminiClient, detailRepo, cfg.IndexerWorkers, cfg.IndexerQueueSize)
	indexer.Start()

	sessionHub := hub.NewHub(cfg, sessionRepo, messageRepo, hub.WrapGenerator(geminiClient), images, indexer)
	sessionHub.Start()

	handler := api.NewHandler(sessionRepo, indexer, sessionHub, images)
	router := api.NewRouter(handler, sessionHub.ServeWS)

	addr := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("✓ Server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("🛑 Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🔧 Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Server shutdown error: %v", err)
	}

	sessionHub.Shutdown()
	indexer.Shutdown()

	if err := shutdownTracer(ctx); err != nil {
		log.Printf("⚠️  Tracer shutdown error: %v", err)
	}

	log.Println("✓ Shutdown complete")
}
