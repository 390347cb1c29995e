package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/jessiekimhj/scheduler-api/api/swagger"
	"github.com/jessiekimhj/scheduler-api/internal/handler"
	"github.com/jessiekimhj/scheduler-api/internal/middleware"
	"github.com/jessiekimhj/scheduler-api/internal/repository"
	"github.com/jessiekimhj/scheduler-api/internal/service"
	"github.com/jessiekimhj/scheduler-api/pkg/cache"
	"github.com/jessiekimhj/scheduler-api/pkg/config"
	"github.com/jessiekimhj/scheduler-api/pkg/database"
	"github.com/jessiekimhj/scheduler-api/pkg/logger"
	corsmiddleware "github.com/jessiekimhj/scheduler-api/pkg/middleware/cors"
	reqidmiddleware "github.com/jessiekimhj/scheduler-api/pkg/middleware/requestid"
)

// @title Scheduler API
// @version 1.0.0
// @description Lesson scheduling and bundle lifecycle engine for a private music studio
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Calendar.CacheEnabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		} else {
			defer redisClient.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	studentRepo := repository.NewStudentRepository(db)
	lessonRepo := repository.NewLessonRepository(db)
	txManager := repository.NewTxManager(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Calendar.CacheTTL, logr, cfg.Calendar.CacheEnabled && redisClient != nil)

	retries := cfg.Booking.MaxTxRetries
	enrollmentSvc := service.NewEnrollmentService(studentRepo, lessonRepo, txManager, cacheSvc, metricsSvc, logr, retries)
	lessonSvc := service.NewLessonService(studentRepo, lessonRepo, txManager, cacheSvc, metricsSvc, logr, retries)
	rebalanceSvc := service.NewRebalanceService(studentRepo, lessonRepo, txManager, cacheSvc, metricsSvc, logr, retries)
	paymentSvc := service.NewPaymentService(studentRepo, lessonRepo, txManager, cacheSvc, metricsSvc, logr, retries)
	exportSvc := service.NewExportService(studentRepo, lessonRepo, logr)

	var notificationSvc *service.NotificationService
	if cfg.Notifications.Enabled {
		notificationSvc = service.NewNotificationService(
			studentRepo, cacheSvc, logr,
			cfg.Notifications.LowCreditWarnAt,
			cfg.Notifications.RefreshInterval,
			cfg.Notifications.WorkerConcurrency,
		)
		notificationSvc.Start(ctx)
		defer notificationSvc.Stop()
	}

	studentHandler := handler.NewStudentHandler(enrollmentSvc, paymentSvc, exportSvc)
	lessonHandler := handler.NewLessonHandler(lessonSvc, rebalanceSvc, paymentSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		students := api.Group("/students")
		students.GET("", studentHandler.List)
		students.POST("", studentHandler.Enroll)
		students.GET("/:id", studentHandler.Get)
		students.PUT("/:id", studentHandler.Update)
		students.DELETE("/:id", studentHandler.Delete)
		students.GET("/:id/lessons/export", studentHandler.ExportHistory)
		students.GET("/:id/bundles/:tag/receipt", studentHandler.Receipt)

		lessons := api.Group("/lessons")
		lessons.GET("", lessonHandler.Calendar)
		lessons.POST("/ad-hoc", lessonHandler.BookAdHoc)
		lessons.GET("/:id", lessonHandler.Get)
		lessons.PATCH("/:id", lessonHandler.Update)
		lessons.DELETE("/:id", lessonHandler.Cancel)
		lessons.POST("/:id/confirm-payment", lessonHandler.ConfirmPayment)

		if notificationSvc != nil {
			notificationHandler := handler.NewNotificationHandler(notificationSvc)
			api.GET("/notifications", notificationHandler.List)
			api.POST("/notifications/refresh", notificationHandler.Refresh)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
