package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/insight-router/backend/internal/api/handlers"
	"github.com/insight-router/backend/internal/contextstore"
	"github.com/insight-router/backend/internal/intent"
	"github.com/insight-router/backend/internal/llm"
	"github.com/insight-router/backend/internal/memory"
	"github.com/insight-router/backend/internal/metrics"
	"github.com/insight-router/backend/internal/middleware/ratelimit"
	"github.com/insight-router/backend/internal/middleware/security"
	"github.com/insight-router/backend/internal/middleware/validation"
	"github.com/insight-router/backend/internal/plot"
	"github.com/insight-router/backend/internal/query"
	"github.com/insight-router/backend/internal/storage/sqlite"
	"github.com/insight-router/backend/pkg/config"
	appLogger "github.com/insight-router/backend/pkg/logger"
)

func main() {
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

	appLogger.Info("Starting Insight Router API Server")

	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	store, closeStore, err := newMemoryStore(cfg, sqliteClient)
	if err != nil {
		appLogger.Fatal("Failed to create conversation store", zap.Error(err))
	}
	defer closeStore()

	gateways, err := llm.NewGateways(ctx, cfg.LLM, store, cfg.Memory.Window)
	if err != nil {
		appLogger.Fatal("Failed to create LLM gateways", zap.Error(err))
	}

	contexts := contextstore.New(contextstore.Options{
		GeneralDir:        cfg.Data.GeneralDir,
		IDADir:            cfg.Data.IDADir,
		GraphDir:          cfg.Data.GraphDir,
		DescriptionSuffix: cfg.Data.DescriptionSuffix,
	})

	var watcherDone <-chan struct{}
	if cfg.Data.Watch {
		watcherDone, err = contexts.Watch(ctx)
		if err != nil {
			appLogger.Warn("Context watcher disabled", zap.Error(err))
		}
	}

	if err := os.MkdirAll(cfg.Plot.OutputDir, 0o755); err != nil {
		appLogger.Fatal("Failed to create plot output dir", zap.Error(err))
	}

	executor := plot.NewPythonExecutor(plot.ExecutorConfig{
		Python:        cfg.Plot.Python,
		Timeout:       time.Duration(cfg.Plot.TimeoutSec) * time.Second,
		CPUSeconds:    cfg.Plot.CPUSeconds,
		MemoryLimitMB: cfg.Plot.MemoryLimitMB,
	})
	synthesizer := plot.NewSynthesizer(executor, cfg.Plot.RetryLimit)

	queryEngine := query.NewEngine(gateways, contexts, intent.NewRouter(), synthesizer, sqliteClient, query.Options{
		PlotOutputDir: cfg.Plot.OutputDir,
	})

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, X-Session-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		IsDevelopment: cfg.Server.Development,
	}))

	var limiter *ratelimit.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(ratelimit.Config{
			MaxRequestsPerMinute: cfg.RateLimit.MaxRequestsPerMinute,
			Logger:               appLogger.Named("ratelimit"),
		})
		defer limiter.Stop()
		app.Use(limiter.Middleware())
	}

	app.Use(validation.Middleware(validation.Config{
		MaxQuestionLength: cfg.Validation.MaxQuestionLength,
		Paths:             []string{"/general_answering", "/ida_answering"},
		Logger:            appLogger.Named("validation"),
	}))

	queryHandler := handlers.NewQueryHandler(queryEngine)
	wsHandler := handlers.NewWebSocketHandler(queryEngine)

	app.Post("/general_answering", queryHandler.HandleGeneralAnswering)
	app.Post("/ida_answering", queryHandler.HandleIDAAnswering)
	app.Get("/query/history", queryHandler.GetQueryHistory)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(wsHandler.HandleConnection))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	app.Get("/ready", func(c *fiber.Ctx) error {
		if err := sqliteClient.Ping(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unavailable",
				"detail": err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"status": "ready",
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
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}

	cancel()
	if watcherDone != nil {
		<-watcherDone
	}
	appLogger.Info("Server stopped")
}

// newMemoryStore selects the transcript backend named by memory.driver.
func newMemoryStore(cfg *config.Config, db *sqlite.Client) (memory.Store, func(), error) {
	noop := func() {}

	switch cfg.Memory.Driver {
	case "file", "":
		store, err := memory.NewFileStore(cfg.Memory.Dir)
		return store, noop, err

	case "sqlite":
		return memory.NewSQLiteStore(db), noop, nil

	case "redis":
		client, err := memory.NewRedisClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, noop, err
		}
		ttl := time.Duration(cfg.Memory.TTLMinutes) * time.Minute
		return memory.NewRedisStore(client, ttl), func() { client.Close() }, nil

	default:
		return nil, noop, fmt.Errorf("unknown memory driver %q", cfg.Memory.Driver)
	}
}
