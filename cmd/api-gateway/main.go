package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/JRCMora/jms-api/api/swagger"
	"github.com/JRCMora/jms-api/internal/handler"
	"github.com/JRCMora/jms-api/internal/repository"
	"github.com/JRCMora/jms-api/internal/service"
	"github.com/JRCMora/jms-api/pkg/cache"
	"github.com/JRCMora/jms-api/pkg/config"
	"github.com/JRCMora/jms-api/pkg/database"
	"github.com/JRCMora/jms-api/pkg/logger"
	"github.com/JRCMora/jms-api/pkg/mailer"
	"github.com/JRCMora/jms-api/pkg/storage"
)

// @title Journal Management API
// @version 1.0.0
// @description Submission intake, peer review and publication workflow.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("database unavailable", zap.Error(err))
	}
	defer db.Close()
	if err := database.EnsureSchema(ctx, db); err != nil {
		logr.Fatal("schema bootstrap failed", zap.Error(err))
	}

	metricsSvc := service.NewMetricsService()

	var (
		cacheRepo service.CacheRepository
		readiness = map[string]handler.Pinger{"database": handler.PingerFunc(db.PingContext)}
	)
	if cfg.Dashboard.CacheEnabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, stats cache disabled", zap.Error(err))
		} else {
			redisRepo := repository.NewCacheRepository(client, logr)
			defer redisRepo.Close() //nolint:errcheck
			cacheRepo = redisRepo
			readiness["cache"] = redisRepo
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Dashboard.CacheTTL, logr, cfg.Dashboard.CacheEnabled)

	files, err := storage.NewLocalStorage(cfg.Manuscripts.StorageDir)
	if err != nil {
		logr.Fatal("manuscript storage unavailable", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Manuscripts.SignedURLSecret, cfg.Manuscripts.SignedURLTTL)

	submissionRepo := repository.NewSubmissionRepository(db)
	userRepo := repository.NewUserRepository(db)
	rubricRepo := repository.NewRubricRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	validate := validator.New()

	notifyParams := service.NotificationServiceParams{
		Store:   notificationRepo,
		Users:   userRepo,
		Metrics: metricsSvc,
		Logger:  logr,
		Config: service.NotificationServiceConfig{
			Workers:      cfg.Notifications.Workers,
			Retries:      cfg.Notifications.Retries,
			EmailEnabled: cfg.Notifications.EmailEnabled,
		},
	}
	if cfg.Notifications.EmailEnabled {
		smtp, err := mailer.New(cfg.SMTP)
		switch {
		case errors.Is(err, mailer.ErrNotConfigured):
			logr.Warn("e-mail notifications enabled without SMTP settings; sending in-app only")
		case err != nil:
			logr.Fatal("mailer setup failed", zap.Error(err))
		default:
			notifyParams.Mailer = smtp
		}
	}
	notifications := service.NewNotificationService(notifyParams)
	notifications.Start(ctx)
	defer notifications.Stop()

	workflowSvc := service.NewWorkflowService(service.WorkflowServiceParams{
		Store:     submissionRepo,
		Users:     userRepo,
		Rubrics:   rubricRepo,
		Events:    notifications,
		Cache:     cacheSvc,
		Metrics:   metricsSvc,
		Validator: validate,
		Logger:    logr,
		Config:    service.WorkflowServiceConfig{MaxReviewers: cfg.Workflow.MaxReviewers},
	})
	querySvc := service.NewQueryService(service.QueryServiceParams{
		Store:   submissionRepo,
		Cache:   cacheSvc,
		Metrics: metricsSvc,
		Logger:  logr,
		Config:  service.QueryServiceConfig{StatsTTL: cfg.Dashboard.CacheTTL},
	})
	tokens := service.NewTokenService(service.TokenConfig{
		Secret:     cfg.JWT.Secret,
		Issuer:     cfg.JWT.Issuer,
		Expiration: cfg.JWT.Expiration,
	})

	policy := handler.UploadPolicy{MaxBytes: cfg.Manuscripts.MaxFileSizeBytes, AllowedMIMEs: cfg.Manuscripts.AllowedMIMEs}
	handlers := routeHandlers{
		submissions:   handler.NewSubmissionHandler(workflowSvc, querySvc, service.NewExportService(querySvc, logr), files, policy),
		reviews:       handler.NewReviewHandler(workflowSvc, querySvc, files, policy),
		files:         handler.NewFileHandler(querySvc, signer, files, cfg.APIPrefix+"/files"),
		users:         handler.NewUserHandler(service.NewReviewerService(userRepo, submissionRepo)),
		rubrics:       handler.NewRubricHandler(service.NewRubricService(rubricRepo, validate, logr)),
		notifications: handler.NewNotificationHandler(notifications),
		metrics:       handler.NewMetricsHandler(metricsSvc, readiness).WithQueue("notifications", notifications),
	}
	router := newRouter(cfg, logr, metricsSvc, tokens, handlers)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
