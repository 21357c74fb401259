package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/valgdash/backend/internal/api/handlers"
	"github.com/valgdash/backend/internal/cache/redis"
	"github.com/valgdash/backend/internal/ingestion"
	"github.com/valgdash/backend/internal/metrics"
	"github.com/valgdash/backend/internal/middleware/ratelimit"
	"github.com/valgdash/backend/internal/middleware/security"
	"github.com/valgdash/backend/internal/objectstore"
	"github.com/valgdash/backend/internal/storage/sqlite"
	"github.com/valgdash/backend/pkg/config"
	appLogger "github.com/valgdash/backend/pkg/logger"
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

	appLogger.Info("Starting valgdash API server")

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

	var cacheClient *redis.Client
	if cfg.Redis.Enabled {
		cacheClient, err = redis.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Redis.TTLSec)*time.Second,
		)
		if err != nil {
			appLogger.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer cacheClient.Close()
	} else {
		appLogger.Info("Redis disabled, serving reads straight from SQLite")
	}

	fetcher := objectstore.NewClient(cfg.ObjectStore)
	processor := ingestion.NewProcessor(sqliteClient)

	if cfg.Ingest.SecretToken == "" {
		appLogger.Warn("Ingest secret not set, all ingest requests will be rejected")
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Environment == "development",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.AllowedOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxBatchesPerMinute: cfg.Server.MaxBatchesPerMinute,
	})
	defer limiter.Stop()

	// The read endpoints share a view cache; avoid the nil-interface
	// trap when Redis is off.
	var viewCache handlers.ViewCache
	var invalidator handlers.ViewInvalidator
	if cacheClient != nil {
		viewCache = cacheClient
		invalidator = cacheClient
	}

	ingestHandler := handlers.NewIngestHandler(processor, fetcher, invalidator, cfg.Ingest.SecretToken)
	dashboardHandler := handlers.NewDashboardHandler(sqliteClient, viewCache)

	api := app.Group("/api/v1")

	ingest := api.Group("/ingest", limiter.Middleware())
	ingest.Post("/", ingestHandler.IngestFromObjectStore)
	ingest.Post("/direct", ingestHandler.IngestDirect)
	ingest.Post("/polls", ingestHandler.IngestPolls)

	api.Get("/national-overview", dashboardHandler.GetNationalOverview)
	api.Get("/municipalities", dashboardHandler.ListMunicipalities)
	api.Get("/municipalities/:slug", dashboardHandler.GetMunicipality)
	api.Get("/polls", dashboardHandler.ListPolls)
	api.Get("/pollsters", dashboardHandler.ListPollsters)
	api.Get("/parties", dashboardHandler.ListParties)
	api.Get("/regions", dashboardHandler.ListRegions)
	api.Get("/scenarios", dashboardHandler.ListScenarios)
	api.Get("/results/current", dashboardHandler.ListCurrentResults)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		if err := sqliteClient.Ping(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "not ready",
			})
		}
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.Handler())

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
