package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"repairscribe/internal/api"
	"repairscribe/internal/auth"
	"repairscribe/internal/config"
	"repairscribe/internal/logging"
	"repairscribe/internal/ratelimit"
	"repairscribe/internal/redis"
	"repairscribe/internal/service/batch"
	"repairscribe/internal/service/extraction"
	"repairscribe/internal/service/transcription"
	"repairscribe/internal/storage"
	"repairscribe/internal/users"
	"repairscribe/internal/worker"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}

	cfg, err := config.Load(os.Getenv("REPAIRSCRIBE_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	release := cfg.BasicConfig.Mode == gin.ReleaseMode
	if cfg.BasicConfig.Mode != "" {
		gin.SetMode(cfg.BasicConfig.Mode)
	}
	logger := logging.New(os.Stdout, cfg.BasicConfig.LogLevel, release)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	userRepo, closeStore, err := openUserStore(cfg.Store)
	if err != nil {
		log.Fatalf("open user store: %v", err)
	}
	defer closeStore()

	limiterStore, closeLimiter, err := openLimiterStore(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("create rate limit store: %v", err)
	}
	defer closeLimiter()
	limiter := ratelimit.NewLimiter(limiterStore, cfg.RateLimit.Window.Std(), cfg.RateLimit.MaxRequests, logger.With("component", "ratelimit"))

	issuer, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL.Std())
	if err != nil {
		log.Fatalf("init token issuer: %v", err)
	}
	authService, err := auth.NewService(userRepo, issuer, cfg.Auth.BcryptCost)
	if err != nil {
		log.Fatalf("init auth service: %v", err)
	}

	provider, err := newTranscriptionProvider(ctx, cfg)
	if err != nil {
		log.Fatalf("init transcription provider: %v", err)
	}
	transcriber := transcription.NewService(provider, cfg.BasicConfig.MaxUploadBytes, logger.With("component", "transcription"))

	completer, err := extraction.NewCompleter(ctx, cfg.Extraction.Provider, cfg.Extraction.Model, cfg.Provider(cfg.Extraction.Provider))
	if err != nil {
		log.Fatalf("init extraction model: %v", err)
	}
	extractor := extraction.NewService(completer, cfg.Extraction.RequestsPerMinute, logger.With("component", "extraction"))

	dispatcher := worker.NewDispatcher(worker.DispatcherConfig{
		MinWorkers:  cfg.Workers.MinWorkers,
		MaxWorkers:  cfg.Workers.MaxWorkers,
		QueueSize:   cfg.Workers.QueueSize,
		IdleTimeout: cfg.Workers.IdleTimeout.Std(),
		Logger:      logger.With("component", "worker"),
	})
	defer dispatcher.Stop()

	orchestrator := batch.NewOrchestrator(
		extractor,
		dispatcher,
		batch.FixedDelay(cfg.Batch.ChunkDelay.Std()),
		batch.Config{MaxItems: cfg.Batch.MaxItems, ChunkSize: cfg.Batch.ChunkSize},
		logger.With("component", "batch"),
	)

	handler := api.NewHandler(authService, limiter, transcriber, extractor, orchestrator, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		AllowedOrigins: cfg.BasicConfig.AllowedOrigins,
		// multipart framing and form fields on top of the audio itself
		MaxBodyBytes: cfg.BasicConfig.MaxUploadBytes + 1<<20,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "server listening",
			"addr", srv.Addr,
			"transcription", cfg.Transcription.Provider,
			"extraction", cfg.Extraction.Provider,
			"store", cfg.Store.Driver,
			"redis", cfg.Redis.Enabled(),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server stopped: %v", err)
		}
	case <-ctx.Done():
		logger.Info(context.Background(), "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error(shutdownCtx, "graceful shutdown failed", "error", err)
		}
	}
}

func openUserStore(cfg config.StoreConfig) (users.Repository, func(), error) {
	if cfg.Driver == "memory" {
		return users.NewMemoryRepository(), func() {}, nil
	}
	db, err := storage.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	if err := storage.Migrate(db, cfg.Driver); err != nil {
		db.Close()
		return nil, nil, err
	}
	return users.NewSQLRepository(db), func() { db.Close() }, nil
}

func openLimiterStore(ctx context.Context, cfg config.RedisConfig) (ratelimit.Store, func(), error) {
	if !cfg.Enabled() {
		store := ratelimit.NewMemoryStore()
		store.StartJanitor(ctx, time.Minute)
		return store, func() {}, nil
	}
	rdb, err := redis.NewRedisClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	return ratelimit.NewRedisStore(rdb), func() { rdb.Close() }, nil
}

func newTranscriptionProvider(ctx context.Context, cfg *config.Config) (transcription.Provider, error) {
	p := cfg.Provider(cfg.Transcription.Provider)
	switch cfg.Transcription.Provider {
	case "gemini":
		return transcription.NewGeminiProvider(ctx, p.APIKey, p.BaseURL, cfg.Transcription.Model)
	default:
		return transcription.NewOpenAIProvider(p.APIKey, p.BaseURL, cfg.Transcription.Model, &http.Client{Timeout: 5 * time.Minute}), nil
	}
}
