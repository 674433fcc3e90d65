package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/empowerfin/auth-service/internal/api/http"
	"github.com/empowerfin/auth-service/internal/api/http/handlers"
	"github.com/empowerfin/auth-service/internal/auth"
	"github.com/empowerfin/auth-service/internal/config"
	"github.com/empowerfin/auth-service/internal/events"
	"github.com/empowerfin/auth-service/internal/mail"
	"github.com/empowerfin/auth-service/internal/observability"
	"github.com/empowerfin/auth-service/internal/persistence"
	"github.com/empowerfin/auth-service/internal/ratelimit"
	"github.com/empowerfin/auth-service/internal/repository"
	"github.com/empowerfin/auth-service/internal/service"
	"github.com/empowerfin/auth-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.App, cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var userRepo repository.UserRepository
	if pool := pg.PoolHandle(); pool != nil {
		userRepo = repository.NewUserRepository(pool)
	} else {
		if cfg.App.IsProduction() {
			logger.Fatal("POSTGRES_DSN is required in production")
		}
		userRepo = repository.NewMemoryUserRepository()
	}

	sender, err := newMailSender(cfg.Mail, logger)
	if err != nil {
		logger.Fatal("failed to init mail sender", zap.Error(err))
	}

	dispatcher := events.NewInMemoryDispatcher()
	notificationService := service.NewNotificationService(dispatcher, sender, logger, cfg.Auth)
	runner := worker.Start(notificationService, 30*time.Second, logger)
	authService, err := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo:   userRepo,
		Dispatcher: dispatcher,
		Limiter:    ratelimit.New(redis.Handle(), cfg.RateLimit.TokenRequests, cfg.RateLimit.Window()),
		Runner:     runner,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal("failed to init auth service", zap.Error(err))
	}
	userService := service.NewUserService(userRepo, logger)
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo)

	metrics := observability.NewMetrics()
	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler(logger),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics),
		Auth:           handlers.NewAuthHandler(authService),
		Users:          handlers.NewUsersHandler(userService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	runner.Wait()
}

// newMailSender prefers SMTP and falls back to logging outside production.
func newMailSender(cfg config.MailConfig, logger *zap.Logger) (mail.Sender, error) {
	smtp, err := mail.NewSMTPSender(cfg)
	if err != nil {
		return nil, err
	}
	if smtp != nil {
		return smtp, nil
	}
	logger.Warn("SMTP not configured; outgoing mail will only be logged")
	return mail.NewLogSender(logger), nil
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
