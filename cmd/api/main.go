package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/apolo-agent/backend/internal/api/handlers"
	"github.com/apolo-agent/backend/internal/corpus"
	"github.com/apolo-agent/backend/internal/images"
	"github.com/apolo-agent/backend/internal/llm"
	"github.com/apolo-agent/backend/internal/metrics"
	"github.com/apolo-agent/backend/internal/middleware/ratelimit"
	"github.com/apolo-agent/backend/internal/middleware/security"
	"github.com/apolo-agent/backend/internal/middleware/validation"
	"github.com/apolo-agent/backend/internal/notify"
	"github.com/apolo-agent/backend/internal/prompt"
	"github.com/apolo-agent/backend/internal/query"
	"github.com/apolo-agent/backend/internal/session"
	"github.com/apolo-agent/backend/internal/storage/sqlite"
	"github.com/apolo-agent/backend/internal/vector"
	"github.com/apolo-agent/backend/pkg/config"
	appLogger "github.com/apolo-agent/backend/pkg/logger"
)

func main() {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Apolo assistant API server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	// A missing or corrupt corpus is fatal: the service has nothing to
	// retrieve from and must not start half-alive.
	index, err := vector.Load(cfg.Corpus.IndexDir)
	if err != nil {
		switch {
		case errors.Is(err, vector.ErrCorpusUnavailable):
			appLogger.Fatal("Corpus index not found, run the indexer first",
				zap.String("dir", cfg.Corpus.IndexDir), zap.Error(err))
		case errors.Is(err, vector.ErrCorruptIndex):
			appLogger.Fatal("Corpus index is corrupt, rebuild it",
				zap.String("dir", cfg.Corpus.IndexDir), zap.Error(err))
		default:
			appLogger.Fatal("Failed to load corpus index", zap.Error(err))
		}
	}
	metrics.CorpusChunks.Set(float64(index.Len()))
	appLogger.Info("Corpus index loaded",
		zap.String("dir", cfg.Corpus.IndexDir),
		zap.Int("chunks", index.Len()),
		zap.Int("dimension", index.Dimension()),
	)

	catalog, err := corpus.LoadImageCatalog(cfg.Corpus.IndexDir)
	if err != nil {
		appLogger.Warn("Failed to load image catalog, images disabled", zap.Error(err))
	}

	llmClient := llm.NewClient(llm.Config{
		Provider:          cfg.LLM.Provider,
		APIKey:            cfg.LLM.APIKey,
		Endpoint:          cfg.LLM.Endpoint,
		Model:             cfg.LLM.Model,
		VisionModel:       cfg.LLM.VisionModel,
		EmbeddingAPIKey:   cfg.LLM.EmbeddingAPIKey,
		EmbeddingEndpoint: cfg.LLM.EmbeddingEndpoint,
		EmbeddingModel:    cfg.LLM.EmbeddingModel,
		Temperature:       cfg.LLM.Temperature,
		MaxTokens:         cfg.LLM.MaxTokens,
		EmbedTimeout:      time.Duration(cfg.LLM.EmbedTimeoutSec) * time.Second,
		CompleteTimeout:   time.Duration(cfg.LLM.CompleteTimeoutSec) * time.Second,
	})

	sessionTTL := time.Duration(cfg.Session.TTLMinutes) * time.Minute
	var sessions session.Store
	if cfg.Redis.Enabled {
		redisStore, err := session.NewRedisStore(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Session.MaxTurns,
			sessionTTL,
		)
		if err != nil {
			appLogger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisStore.Close()
		sessions = redisStore
	} else {
		sessions = session.NewMemoryStore(cfg.Session.MaxTurns, sessionTTL)
	}

	assembler := prompt.NewAssembler(prompt.RealEstateTemplate)

	engineOpts := []query.Option{
		query.WithPersistence(sqliteClient),
		query.WithRetrievalK(cfg.Corpus.RetrievalK),
	}
	if len(catalog) > 0 {
		imageOpts := []images.Option{
			images.WithStrategy(cfg.Images.Strategy),
			images.WithClassifier(llmClient),
		}
		if cfg.Images.VisionEnabled {
			imageOpts = append(imageOpts, images.WithImageReader(os.ReadFile))
		}
		engineOpts = append(engineOpts, query.WithImages(images.NewEngine(catalog, imageOpts...)))
	}
	if len(cfg.Notify.Destinations) > 0 {
		engineOpts = append(engineOpts, query.WithNotifier(notify.NewLogSink(), cfg.Notify.Destinations))
	}

	queryEngine := query.NewEngine(index, llmClient, assembler, sessions, engineOpts...)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))
	app.Use(validation.Middleware(validation.Config{Logger: appLogger.Log}))

	queryHandler := handlers.NewQueryHandler(queryEngine)
	sessionHandler := handlers.NewSessionHandler(sessions, sqliteClient)
	wsHandler := handlers.NewWebSocketHandler(queryEngine)

	api := app.Group("/api/v1")

	askHandlers := []fiber.Handler{queryHandler.HandleAsk}
	if cfg.Server.RateLimitPerMinute > 0 {
		limiter := ratelimit.New(ratelimit.Config{
			MaxRequestsPerMinute: cfg.Server.RateLimitPerMinute,
			Logger:               appLogger.Log,
		})
		defer limiter.Stop()
		askHandlers = []fiber.Handler{limiter.Middleware(), queryHandler.HandleAsk}
	}
	api.Post("/ask", askHandlers...)
	api.Get("/sessions/:id/history", sessionHandler.GetHistory)
	api.Get("/sessions/:id/archive", sessionHandler.GetArchivedHistory)
	api.Delete("/sessions/:id", sessionHandler.ClearSession)

	app.Use("/api/v1/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/ws", websocket.New(wsHandler.HandleConnection))

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"chunks": index.Len(),
			"time":   time.Now().Unix(),
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
