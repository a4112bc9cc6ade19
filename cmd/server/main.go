// Package main is the entry point for the loan-application API.
// It loads configuration, connects Postgres and Redis, wires the services
// and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"amerifund/internal/config"
	"amerifund/internal/handlers"
	"amerifund/internal/logger"
	"amerifund/internal/middleware"
	"amerifund/internal/models"
	"amerifund/internal/repositories"
	"amerifund/internal/routes"
	"amerifund/internal/services/admin"
	"amerifund/internal/services/artifact"
	"amerifund/internal/services/auth"
	"amerifund/internal/services/banklink"
	"amerifund/internal/services/notification"
	"amerifund/internal/services/wizard"
	"amerifund/internal/session"
	"amerifund/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	config.LoadEnv()
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatal("failed to load configuration", zap.Error(err))
	}
	logger.Init(cfg.Log)
	defer logger.Sync()
	log := logger.Log

	if err := repositories.InitDB(cfg); err != nil {
		log.Fatal("failed to initialise database", zap.Error(err))
	}
	defer closeStores(log)

	ctx := context.Background()
	if err := repositories.CacheService.HealthCheck(ctx); err != nil {
		log.Fatal("redis unreachable", zap.Error(err))
	}

	backend, err := newArtifactBackend(ctx, cfg.Upload)
	if err != nil {
		log.Fatal("failed to initialise document storage", zap.Error(err))
	}

	sender, closer, err := notification.NewSenderFromConfig(cfg, log.Named("notify"))
	if err != nil {
		log.Fatal("failed to initialise notification transport", zap.Error(err))
	}
	defer closer.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	userRepo := repositories.NewUserRepository(repositories.DB, repositories.CacheService)
	appRepo := repositories.NewLoanApplicationRepository(repositories.DB)
	notifier := notification.NewService(sender, notification.Config{
		AppName:    cfg.App.Name,
		AdminEmail: cfg.Notify.AdminEmail,
	}, log.Named("notify"))
	linker := banklink.NewSimulator(banklink.SimulatorConfig{
		Latency:     cfg.BankLink.Latency,
		LinkTTL:     cfg.BankLink.LinkTTL,
		LogoBaseURL: cfg.BankLink.LogoBaseURL,
	}, log.Named("banklink"))

	authService := auth.NewService(userRepo, notifier, cfg.JWT, log.Named("auth"))
	wizardService := wizard.NewService(wizard.Deps{
		Applications: appRepo,
		Users:        userRepo,
		Sessions:     session.NewRedisStore(repositories.CacheService, cfg.Redis.SessionTTL),
		Validator:    validation.NewStepValidator(cfg.MinLoanAmount(), cfg.MaxLoanAmount(), nil),
		Artifacts:    artifact.NewService(backend, cfg.Upload.MaxBytes, log.Named("artifact")),
		Notifier:     notifier,
		Linker:       linker,
		Metrics:      wizard.NewPrometheusMetrics(registry),
	}, log.Named("wizard"))
	adminService := admin.NewService(appRepo, userRepo, notifier, log.Named("admin"))

	authMiddleware := middleware.NewAuthMiddleware(authService, cfg.JWT, log.Named("http"))
	cookies := handlers.CookieConfig{
		Secure:     cfg.IsProduction(),
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
		SessionTTL: cfg.Redis.SessionTTL,
	}

	app := fiber.New(fiber.Config{
		AppName: cfg.App.Name,
		// uploads are parsed from the stream so oversize parts never reach disk
		StreamRequestBody: true,
		BodyLimit:         int(cfg.Upload.MaxBytes)*len(models.DocumentTypes) + 1<<20,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.App.CORSOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,HEAD,PUT,DELETE,PATCH",
		AllowCredentials: true,
	}))
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use("/register", rateLimit())
	app.Use("/login", rateLimit())

	routes.SetupRoutes(app, routes.Handlers{
		Auth:           handlers.NewAuthHandler(authService, wizardService, authMiddleware, cookies, log.Named("http")),
		Wizard:         handlers.NewWizardHandler(wizardService, cookies, cfg.Upload.MaxBytes, log.Named("http")),
		Institution:    handlers.NewInstitutionHandler(linker, log.Named("http")),
		Admin:          handlers.NewAdminHandler(adminService, log.Named("http")),
		Health:         handlers.NewHealthHandler(repositories.DB, repositories.CacheService),
		AuthMiddleware: authMiddleware,
		Gatherer:       registry,
	})

	go func() {
		if err := app.Listen(":" + cfg.App.Port); err != nil {
			log.Fatal("server stopped", zap.Error(err))
		}
	}()
	log.Info("server started", zap.String("port", cfg.App.Port), zap.String("env", cfg.App.Env))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}

func rateLimit() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        5,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Please try again later.",
			})
		},
	})
}

func newArtifactBackend(ctx context.Context, cfg config.UploadConfig) (artifact.Backend, error) {
	switch cfg.Backend {
	case "local":
		return artifact.NewLocalBackend(cfg.Dir)
	case "s3":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("upload.bucket is required for the s3 backend")
		}
		client, err := artifact.NewS3Client(ctx, cfg.Region, cfg.Endpoint)
		if err != nil {
			return nil, err
		}
		return artifact.NewS3Backend(client, cfg.Bucket, cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown upload backend %q", cfg.Backend)
	}
}

func closeStores(log *zap.Logger) {
	if repositories.DB != nil {
		if sqlDB, err := repositories.DB.DB(); err != nil {
			log.Warn("failed to get database instance", zap.Error(err))
		} else if err := sqlDB.Close(); err != nil {
			log.Warn("failed to close database connection", zap.Error(err))
		}
	}
	if repositories.CacheService != nil {
		if err := repositories.CacheService.Close(); err != nil {
			log.Warn("failed to close redis connection", zap.Error(err))
		}
	}
}
