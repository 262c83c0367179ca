package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/stridelab/stridecoach/internal/coach"
	"github.com/stridelab/stridecoach/internal/database"
	"github.com/stridelab/stridecoach/internal/handlers"
	"github.com/stridelab/stridecoach/internal/middleware"
	"github.com/stridelab/stridecoach/internal/scheduler"
)

func main() {
	// Determine database path — default to ./stridecoach.db, override with STRIDECOACH_DB_PATH.
	dbPath := os.Getenv("STRIDECOACH_DB_PATH")
	if dbPath == "" {
		dbPath = "stridecoach.db"
	}

	// Determine listen address — default to :8080, override with STRIDECOACH_ADDR.
	addr := os.Getenv("STRIDECOACH_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	// Open database and run migrations.
	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	log.Printf("Database ready: %s", filepath.Clean(dbPath))

	// Wire the AI client. Without an API key every feature degrades to its
	// deterministic fallback, which keeps local development key-free.
	var provider coach.Provider
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		provider = coach.NewOpenAIProvider(apiKey, os.Getenv("OPENAI_BASE_URL"))
		log.Printf("AI provider configured")
	} else {
		log.Printf("OPENAI_API_KEY not set; AI features run in fallback mode")
	}

	fallbackModel := os.Getenv("OPENAI_FALLBACK_MODEL")
	if fallbackModel == "" {
		fallbackModel = coach.DefaultFallbackModel
	}
	client := coach.NewClient(provider, fallbackModel)
	engine := coach.NewEngine(db, client)

	// Background maintenance: reconciliation, weekly artifacts, log pruning.
	sched := scheduler.New(db, engine,
		envDuration("STRIDECOACH_MAINTENANCE_INTERVAL", scheduler.DefaultInterval),
		envDuration("STRIDECOACH_INTERACTION_RETENTION", scheduler.DefaultRetention),
	)
	sched.Start()
	defer sched.Stop()

	// Model-invoking endpoints are rate limited per client IP.
	limiter := middleware.NewRateLimiter(30, time.Minute,
		strings.Fields(os.Getenv("STRIDECOACH_TRUSTED_PROXIES"))...)
	defer limiter.Stop()

	srv := &http.Server{
		Addr:    addr,
		Handler: handlers.New(db, engine, sched, limiter),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("StrideCoach listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("Server failed: %v", err)
	case sig := <-stop:
		log.Printf("Received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Shutdown: %v", err)
	}
}

// envDuration reads a duration env var, falling back on parse failure.
func envDuration(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Invalid %s=%q, using %s", name, v, fallback)
		return fallback
	}
	return d
}
