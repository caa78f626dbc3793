package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/JRCMora/jms-api/internal/handler"
	"github.com/JRCMora/jms-api/internal/middleware"
	"github.com/JRCMora/jms-api/internal/models"
	"github.com/JRCMora/jms-api/internal/service"
	"github.com/JRCMora/jms-api/pkg/config"
	"github.com/JRCMora/jms-api/pkg/logger"
	corsmiddleware "github.com/JRCMora/jms-api/pkg/middleware/cors"
	reqidmiddleware "github.com/JRCMora/jms-api/pkg/middleware/requestid"
)

type routeHandlers struct {
	submissions   *handler.SubmissionHandler
	reviews       *handler.ReviewHandler
	files         *handler.FileHandler
	users         *handler.UserHandler
	rubrics       *handler.RubricHandler
	notifications *handler.NotificationHandler
	metrics       *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, metricsSvc *service.MetricsService, tokens middleware.TokenValidator, h routeHandlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	// Signed links authenticate themselves.
	api.GET("/files/:token", h.files.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(tokens))
	editors := middleware.RequireEditor()
	reviewers := middleware.RequireRoles(models.RoleReviewer, models.RoleAdmin, models.RoleSuperAdmin)

	secured.GET("/me", h.users.Me)
	secured.GET("/users", editors, h.users.List)
	secured.DELETE("/users/:id", editors, h.users.Deactivate)
	secured.GET("/reviewers", editors, h.users.Reviewers)
	secured.GET("/metrics/summary", editors, h.metrics.Snapshot)

	secured.GET("/rubrics", h.rubrics.List)
	secured.GET("/rubrics/:id", h.rubrics.Get)
	secured.POST("/rubrics", editors, h.rubrics.Create)
	secured.DELETE("/rubrics/:id", editors, h.rubrics.Delete)

	secured.GET("/notifications", h.notifications.List)
	secured.POST("/notifications/:id/read", h.notifications.MarkRead)

	subs := secured.Group("/submissions")
	subs.POST("", h.submissions.Create)
	subs.GET("", h.submissions.List)
	subs.GET("/stats", h.submissions.Stats)
	subs.GET("/export", h.submissions.Export)
	subs.GET("/:id", h.submissions.Get)
	subs.DELETE("/:id", editors, h.submissions.Delete)
	subs.GET("/:id/history", h.submissions.History)
	subs.POST("/:id/publish", editors, h.submissions.Publish)
	subs.GET("/:id/file", h.files.Link)

	subs.GET("/:id/reviewers/action", editors, h.reviews.AssignmentAction)
	subs.POST("/:id/reviewers/assign", editors, h.reviews.Assign)
	subs.POST("/:id/reviewers/reassign", editors, h.reviews.Reassign)
	subs.PUT("/:id/reviewers", editors, h.reviews.SetReviewers)
	subs.GET("/:id/assignments", editors, h.reviews.Assignments)
	subs.POST("/:id/feedback", reviewers, h.reviews.SubmitFeedback)
	subs.GET("/:id/feedback", h.reviews.Feedback)
	subs.POST("/:id/decision", editors, h.reviews.Consolidate)
	subs.GET("/:id/decision", h.reviews.Decision)
	subs.GET("/:id/decisions", h.reviews.Decisions)
	subs.POST("/:id/revision", h.reviews.ResubmitRevision)

	return r
}
