package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	"github.com/joho/godotenv"
	"github.com/localnerve/autogift/internal/config"
	"github.com/localnerve/autogift/internal/database"
	"github.com/localnerve/autogift/internal/handlers"
	"github.com/localnerve/autogift/internal/middleware"
	"github.com/localnerve/autogift/internal/services"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "github.com/localnerve/autogift/docs/api" // Swagger docs
)

// @title AutoGift API
// @version 1.0.0
// @description Auto-gift rules, protection and event log service
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url https://github.com/localnerve/autogift
// @contact.email info@localnerve.com

// @license.name AGPL-3.0
// @license.url https://www.gnu.org/licenses/agpl-3.0.html

// @host localhost:3000
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey CookieAuth
// @in cookie
// @name cookie_session

func main() {
	// Optional .env for local runs
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to read .env")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close(db)

	// Run auto-migrations
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Redis is only required by the redis protection store, but is health checked whenever configured
	var rdb redis.UniversalClient
	if cfg.RedisURL != "" {
		client, err := database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		defer client.Close()
		rdb = client
	}

	var store services.CounterStore
	switch cfg.ProtectionStore {
	case config.StoreRedis:
		store = services.NewRedisCounterStore(rdb)
	case config.StoreMemory:
		log.Warn().Msg("Protection state is process local, do not run more than one instance")
		store = services.NewMemoryCounterStore()
	default:
		store = services.NewDatabaseCounterStore(db)
	}

	archiver, err := services.NewArchiverFromConfig(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure event archive")
	}

	events := services.NewEventLog(db, cfg.EventRetention, archiver)
	rules := services.NewRuleStore(db, events, cfg.RuleCacheTTL)
	guard := services.NewGuard(store, cfg.ProtectionMonthlyCap, services.FailPolicy(cfg.ProtectionFailPolicy))
	edge := services.NewEdgeClient(cfg.EdgeFunctionsURL, cfg.EdgeServiceKey, nil)
	executions := services.NewExecutionService(db, rules, guard, events, edge)
	notifier := services.NewNotifier(edge, events)

	scheduler, err := services.NewScheduler(guard, events)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}
	scheduler.Start()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler,
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(compress.New())

	// Prometheus metrics
	prometheus := fiberprometheus.New("autogift")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	// Swagger documentation
	app.Get("/swagger/*", swagger.HandlerDefault)

	health := &handlers.HealthHandler{Cfg: cfg, DB: db, Redis: rdb}
	app.Get("/healthz", health.Health)

	routes := &handlers.Routes{
		Rules:      &handlers.RuleHandler{Rules: rules, Notifier: notifier},
		Executions: &handlers.ExecutionHandler{Executions: executions},
		Events:     &handlers.EventHandler{Events: events},
		Protection: &handlers.ProtectionHandler{Guard: guard},
	}
	routes.Register(app, middleware.AuthUser(cfg), middleware.AuthAdmin(cfg))

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "[404] Resource Not Found")
	})

	log.Info().
		Str("store", guard.StoreName()).
		Str("policy", string(guard.Policy())).
		Int("cap", cfg.ProtectionMonthlyCap).
		Msg("Protection guard ready, Authorizer will be initialized on first authenticated request")

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Info().Msg("Gracefully shutting down...")
		if err := scheduler.Shutdown(); err != nil {
			log.Error().Err(err).Msg("Scheduler shutdown failed")
		}
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	// Start server
	log.Info().Str("port", cfg.Port).Msg("Starting server")
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}

	log.Info().Msg("Server stopped")
}

// setupLogging configures the global zerolog logger
func setupLogging(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.With().Str("service", "autogift").Logger()
}
