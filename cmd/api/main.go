package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"galvan_backend/internal/controller"
	"galvan_backend/internal/middleware"
	"galvan_backend/internal/model"
	"galvan_backend/internal/repository"
	"galvan_backend/internal/service"
	"galvan_backend/pkg/config"
	"galvan_backend/pkg/cron"
	"galvan_backend/pkg/database"
	"galvan_backend/pkg/email"
	"galvan_backend/pkg/lock"
	applogger "galvan_backend/pkg/logger"
	"galvan_backend/pkg/outbox"
	"galvan_backend/pkg/seed"
	"galvan_backend/pkg/utils/cloudflare"
	"galvan_backend/pkg/utils/jwt"
	"galvan_backend/pkg/utils/token"
)

type controllers struct {
	auth       *controller.AuthController
	newsletter *controller.NewsletterController
	campaigns  *controller.CampaignController
	templates  *controller.TemplateController
	proxy      *controller.BackendProxy
}

func setupRoutes(app *fiber.App, h controllers, tokens *jwt.Manager) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	// Auth Routes
	auth := api.Group("/auth")
	auth.Post("/login", h.auth.Login)
	auth.Get("/me", middleware.AuthMiddleware(tokens), h.auth.Me)

	// Public Newsletter Routes
	newsletter := api.Group("/newsletter")
	newsletter.Post("/subscribe", h.newsletter.Subscribe)
	newsletter.Get("/unsubscribe", h.newsletter.Unsubscribe)
	newsletter.Post("/unsubscribe", h.newsletter.Unsubscribe)

	// Admin Newsletter Routes
	admin := newsletter.Group("", middleware.AuthMiddleware(tokens), middleware.RequireRole(jwt.RoleAdmin))
	admin.Get("/subscribers", h.newsletter.GetSubscribers)
	admin.Get("/subscribers/export", h.newsletter.ExportSubscribers)
	admin.Get("/stats", h.newsletter.GetStats)

	admin.Get("/campaigns", h.campaigns.List)
	admin.Post("/campaigns", h.campaigns.Create)
	admin.Get("/campaigns/:id", h.campaigns.Get)
	admin.Post("/campaigns/:id/send", h.campaigns.Send)

	admin.Get("/templates", h.templates.List)
	admin.Post("/templates", h.templates.Create)
	admin.Get("/templates/:id", h.templates.Get)
	admin.Put("/templates/:id", h.templates.Update)
	admin.Delete("/templates/:id", h.templates.Delete)

	// Application backend
	for _, prefix := range controller.ProxiedPrefixes {
		app.All(prefix, h.proxy.Forward)
		app.All(prefix+"/*", h.proxy.Forward)
	}
}

func main() {
	cfg := config.Load()

	zl, err := applogger.New(cfg.Server.Env)
	if err != nil {
		log.Fatal("Could not initialize logger:", err)
	}
	defer zl.Sync()

	if err := cfg.Validate(); err != nil {
		zl.Fatal("Invalid configuration", zap.Error(err))
	}
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = token.New() + token.New()
		zl.Warn("JWT_SECRET not set, using a random secret; admin tokens will not survive a restart")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database.DSN(), zl)
	if err != nil {
		zl.Fatal("Could not connect to database", zap.Error(err))
	}
	err = database.Migrate(db, zl,
		&model.Subscriber{},
		&model.Template{},
		&model.Campaign{},
		&model.CampaignDelivery{},
		&model.OutboxMessage{},
		&model.LoginHistory{},
	)
	if err != nil {
		zl.Warn("Migration warning", zap.Error(err))
	}

	subscribers := repository.NewSubscriberRepository(db)
	campaigns := repository.NewCampaignRepository(db)
	templates := repository.NewTemplateRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)
	loginHistory := repository.NewLoginHistoryRepository(db)

	if err := seed.Templates(ctx, templates, zl); err != nil {
		zl.Warn("Template seeding failed", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = lock.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			zl.Warn("Redis unavailable, using in-process locks", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}
	locker := lock.New(redisClient)

	mailer := email.FromConfig(ctx, cfg.Mail, zl)
	dispatcher := outbox.NewDispatcher(outboxRepo, mailer, zl)

	newsletterService := service.NewNewsletterService(subscribers, dispatcher, cfg.Server.AppURL, zl)
	if cfg.Storage.Enabled() {
		storage, err := cloudflare.NewR2Storage(ctx, cfg.Storage)
		if err != nil {
			zl.Warn("R2 storage disabled", zap.Error(err))
		} else {
			newsletterService.WithArchiver(storage)
		}
	}
	campaignService := service.NewCampaignService(campaigns, subscribers, templates, mailer, locker, cfg.Server.AppURL, zl)
	templateService := service.NewTemplateService(templates, zl)

	tokens, err := jwt.NewManager(cfg.Auth.JWTSecret, 24*time.Hour)
	if err != nil {
		zl.Fatal("Could not create token manager", zap.Error(err))
	}

	scheduler := cron.NewScheduler(locker, zl)
	jobs := []cron.Job{
		{Name: "outbox", Spec: "* * * * *", TTL: 5 * time.Minute, Run: func(ctx context.Context) error {
			_, err := dispatcher.ProcessPending(ctx)
			return err
		}},
		{Name: "scheduled-campaigns", Spec: "* * * * *", TTL: 30 * time.Minute, Run: func(ctx context.Context) error {
			_, err := campaignService.SendDue(ctx)
			return err
		}},
		cron.NewNewsletterStats(subscribers, outboxRepo, dispatcher, cfg.Auth.AdminEmail, cfg.Server.AppURL+"/admin", zl).Job(),
	}
	for _, job := range jobs {
		if err := scheduler.Add(job); err != nil {
			zl.Fatal("Could not schedule job", zap.Error(err))
		}
	}
	scheduler.Start()

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			message := service.MsgInternal
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
				message = e.Message
			} else {
				zl.Error("Unhandled request error", zap.String("path", c.Path()), zap.Error(err))
			}
			return c.Status(code).JSON(fiber.Map{
				"success": false,
				"message": message,
			})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	setupRoutes(app, controllers{
		auth:       controller.NewAuthController(cfg.Auth, tokens, loginHistory, zl),
		newsletter: controller.NewNewsletterController(newsletterService, zl),
		campaigns:  controller.NewCampaignController(campaignService),
		templates:  controller.NewTemplateController(templateService),
		proxy:      controller.NewBackendProxy(cfg.Backend.URL, zl),
	}, tokens)

	go func() {
		<-ctx.Done()
		zl.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		scheduler.Stop(shutdownCtx)
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			zl.Error("Server shutdown failed", zap.Error(err))
		}
	}()

	zl.Info("Server is running", zap.String("port", cfg.Server.Port))
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		zl.Fatal("Server stopped", zap.Error(err))
	}
}
