package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobarin/wellvoice/internal/api"
	"github.com/bobarin/wellvoice/internal/cache"
	"github.com/bobarin/wellvoice/internal/config"
	"github.com/bobarin/wellvoice/internal/db"
	"github.com/bobarin/wellvoice/internal/logger"
	"github.com/bobarin/wellvoice/internal/queue"
	"github.com/bobarin/wellvoice/internal/services"
	"github.com/bobarin/wellvoice/internal/voice"
	"github.com/bobarin/wellvoice/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		logger.Fatalf("Invalid config: %v", err)
	}
	if err := logger.Init(cfg.Logger()); err != nil {
		logger.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	logger.Infof("Starting wellvoice API...")

	// Connect to database (cache backend and/or settings store)
	var database *db.DB
	if cfg.DatabaseURL != "" {
		database, err = db.New(cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()

		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = database.Migrate(migrateCtx)
		cancel()
		if err != nil {
			logger.Fatalf("Failed to migrate database: %v", err)
		}
		logger.Infof("Connected to database")
	} else {
		logger.Warnf("No DATABASE_URL set; voice settings will not be saved")
	}

	// Cache backend
	var backend cache.Backend
	switch cfg.CacheBackend {
	case config.CacheBackendPostgres:
		backend = database
	case config.CacheBackendRedis:
		rb, err := cache.NewRedisBackend(cfg.RedisURL)
		if err != nil {
			logger.Fatalf("Failed to connect to redis cache: %v", err)
		}
		defer rb.Close()
		backend = rb
	default:
		logger.Warnf("Using in-memory voice cache; entries are lost on restart")
		backend = cache.NewMemoryBackend()
	}
	store := cache.NewStore(backend, cfg.CacheTTL)
	logger.Infof("Voice cache: %s (ttl %s)", cfg.CacheBackend, cfg.CacheTTL)

	// TTS provider: ElevenLabs preferred, Cartesia as legacy fallback
	synth, defaultVoice := services.NewSynthesizer(cfg.Providers())
	switch synth.(type) {
	case *services.ElevenLabsService:
		logger.Infof("TTS provider: ElevenLabs (voice: %s)", defaultVoice)
	case *services.CartesiaService:
		logger.Infof("TTS provider: Cartesia (legacy, voice: %s)", defaultVoice)
	default:
		logger.Warnf("No TTS provider configured; voice replies degrade to text-only")
	}
	catalog, _ := synth.(services.VoiceCatalog)

	pipeline := voice.NewPipeline(store, synth, cfg.SynthesisTimeout)

	var settings voice.SettingsStore
	if database != nil {
		settings = database
	}

	// Background context for purger and worker
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	go store.RunPurger(bgCtx, cfg.CachePurgeInterval)

	// Pre-warm queue and worker
	var prewarm api.Prewarmer
	if cfg.PrewarmEnabled {
		q, err := queue.New(cfg.RedisURL)
		if err != nil {
			logger.Fatalf("Failed to connect to queue: %v", err)
		}
		defer q.Close()
		prewarm = q

		w := worker.New(q, pipeline, cfg.PrewarmConcurrency)
		go w.Start(bgCtx)
		logger.Infof("Pre-warm worker enabled (concurrency: %d)", cfg.PrewarmConcurrency)
	}

	// Create API handler
	handler := api.NewHandler(pipeline, settings, catalog, prewarm, defaultVoice, cfg.VoiceConfigured())
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		logger.Infof("API key authentication enabled")
	} else {
		logger.Warnf("No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	// Start HTTP server
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("Shutting down server...")

	// Stop worker and purger
	bgCancel()

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Infof("Server exited")
}
