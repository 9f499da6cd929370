// mediadrop/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mediadrop/api"
	"mediadrop/config"
	"mediadrop/extract"
	"mediadrop/job"
	"mediadrop/progress"
	"mediadrop/store"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Storage directory for finished artifacts
	storageDir := cfg.StorageDir
	if storageDir == "" {
		storageDir, err = os.MkdirTemp("", "mediadrop_artifacts_")
		if err != nil {
			log.Fatalf("Failed to create artifact directory: %v", err)
		}
	} else if err := os.MkdirAll(storageDir, 0o755); err != nil {
		log.Fatalf("Failed to create artifact directory %s: %v", storageDir, err)
	}
	log.Printf("Storing artifacts in %s", storageDir)

	// 3. Initialize the pipeline: engine -> coordinator -> store -> bus
	engine, err := extract.NewYTDLPEngine(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize extraction engine: %v", err)
	}

	artifactStore := store.New(storageDir)
	bus := progress.NewBus()
	coordinator := job.NewCoordinator(cfg, engine, artifactStore, bus)

	// 4. Set up router and server
	router := api.SetupRouter(coordinator, artifactStore, bus, cfg)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// 5. Start background services and HTTP server
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coordinator.Start(ctx)
	artifactStore.Run(ctx, cfg.SweepInterval)

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 6. Wait for interrupt signal for graceful shutdown
	<-ctx.Done()

	stop()
	log.Println("Shutting down gracefully, press Ctrl+C again to force")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	log.Println("Server exiting")
}
