package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"stem420/internal/audio"
	"stem420/internal/handlers"
	"stem420/internal/job"
	"stem420/internal/lifecycle"
	"stem420/internal/pipeline"
	"stem420/internal/storage"
	"stem420/internal/version"
)

func main() {
	// Load .env when present.
	_ = godotenv.Load()

	port := getenv("PORT", "8080")
	dataDir := getenv("DATA_DIR", "data")
	dbPath := getenv("DB_PATH", filepath.Join(dataDir, "stem420.db"))
	numWorkers, err := strconv.Atoi(getenv("NUM_WORKERS", "1"))
	if err != nil || numWorkers < 1 {
		log.Fatalf("invalid NUM_WORKERS: %q", os.Getenv("NUM_WORKERS"))
	}
	// SYNC_JOBS keeps the caller blocked for the full pipeline and lets
	// the pool's bounded queue provide admission control. The default
	// detaches the pipeline and acknowledges immediately.
	syncJobs := os.Getenv("SYNC_JOBS") != ""

	db, err := storage.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	runs := storage.NewRunRepository(db)

	tracker := lifecycle.NewTracker()
	tools := audio.NewTools(os.Getenv("FFMPEG_BIN"), os.Getenv("DEMUCS_BIN"))
	orch := &pipeline.Orchestrator{Tools: tools, Tracker: tracker}
	dispatcher := job.NewDispatcher(tracker, runs, orch.Process, syncJobs)

	manager, err := job.NewManager(dispatcher, numWorkers)
	if err != nil {
		log.Fatalf("failed to start worker pool: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	srv := handlers.NewServer(manager, tracker, runs)
	srv.Register(e)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		manager.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(ctx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("Starting stem420 v%s (%s) on port %s with %d workers", version.Version, version.Commit, port, numWorkers)
	if err := e.Start(fmt.Sprintf(":%s", port)); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
