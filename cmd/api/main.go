package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/reelcraft/reelcraft/internal/api"
	"github.com/reelcraft/reelcraft/internal/cleanup"
	"github.com/reelcraft/reelcraft/internal/config"
	"github.com/reelcraft/reelcraft/internal/db"
	"github.com/reelcraft/reelcraft/internal/jobs"
	"github.com/reelcraft/reelcraft/internal/pipeline"
	"github.com/reelcraft/reelcraft/internal/services"
	"github.com/reelcraft/reelcraft/internal/storage"
)

const tempSweepMaxAge = 24 * time.Hour

func main() {
	log.Println("Starting ReelCraft API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("Connected to database")

	// Redis is optional; without it progress snapshots are in-memory only
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Printf("WARNING: Redis unreachable, progress snapshots stay in-memory: %v", err)
			rdb = nil
		} else {
			log.Println("Connected to Redis")
		}
	}

	if err := os.MkdirAll(cfg.TempDir, 0755); err != nil {
		log.Fatalf("Failed to create temp dir: %v", err)
	}
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		log.Fatalf("Failed to create output dir: %v", err)
	}

	// Initialize services
	firecrawlSvc := services.NewFirecrawlService(cfg.FirecrawlKey)
	scriptSvc := services.NewScriptService(cfg.OpenAIKey)
	pexelsSvc := services.NewPexelsService(cfg.PexelsKey)
	ffmpegSvc := services.NewFFmpegService(cfg.Render, cfg.TempDir)

	// TTS provider — Gemini preferred, ElevenLabs as fallback
	var ttsSvc services.TTSService
	if cfg.GeminiKey != "" {
		geminiSvc, err := services.NewGeminiTTSService(cfg.GeminiKey, cfg.GeminiTTSModel, cfg.GeminiVoice)
		if err != nil {
			log.Fatalf("Failed to initialize Gemini TTS: %v", err)
		}
		ttsSvc = geminiSvc
		log.Printf("TTS provider: Gemini (model: %s, voice: %s)", cfg.GeminiTTSModel, cfg.GeminiVoice)
	} else {
		ttsSvc = services.NewElevenLabsService(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID)
		log.Printf("TTS provider: ElevenLabs (voice: %s)", cfg.ElevenLabsVoiceID)
	}

	// Cloud storage is optional; unconfigured means videos stay local
	stor := storage.New(cfg.StorageURL, cfg.StorageKey, cfg.StorageBucket)
	if stor.Enabled() {
		log.Printf("Cloud storage enabled (bucket: %s)", stor.Bucket)
	} else {
		log.Println("Cloud storage not configured, finished videos stay local")
	}

	// Assemble the pipeline and job manager
	acquirer := pipeline.NewAcquirer(ttsSvc, pexelsSvc, scriptSvc, ffmpegSvc, cfg.Render)
	pipe := pipeline.New(firecrawlSvc, scriptSvc, acquirer, ffmpegSvc,
		cfg.Render, cfg.TempDir, cfg.OutputDir, cfg.BackgroundMusicPath)

	bus := jobs.NewBus(rdb, time.Duration(cfg.ProgressSnapshotTTL)*time.Second)
	cleaner := cleanup.New(cfg.TempDir, cfg.OutputDir)
	manager := jobs.NewManager(database, pipe, bus, stor, storage.VideoObjectKey, cleaner)

	// Create API handler
	handler := api.NewHandler(manager, database, cleaner, stor)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	// Sweep stale temp assets left by crashed jobs
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		cleaner.SweepOld(tempSweepMaxAge)
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				cleaner.SweepOld(tempSweepMaxAge)
			}
		}
	}()

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	sweepCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
