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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/classtrack-api/api/swagger"
	"github.com/noah-isme/classtrack-api/internal/handler"
	"github.com/noah-isme/classtrack-api/internal/middleware"
	"github.com/noah-isme/classtrack-api/internal/models"
	"github.com/noah-isme/classtrack-api/internal/repository"
	"github.com/noah-isme/classtrack-api/internal/service"
	"github.com/noah-isme/classtrack-api/pkg/cache"
	"github.com/noah-isme/classtrack-api/pkg/config"
	"github.com/noah-isme/classtrack-api/pkg/database"
	"github.com/noah-isme/classtrack-api/pkg/jobs"
	"github.com/noah-isme/classtrack-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/classtrack-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/classtrack-api/pkg/middleware/requestid"
	"github.com/noah-isme/classtrack-api/pkg/storage"
)

// @title ClassTrack API
// @version 1.0.0
// @description Classroom usage tracking with versioned records and scheduled archival reports
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	location, err := time.LoadLocation(cfg.Archival.Timezone)
	if err != nil {
		logr.Sugar().Fatalw("invalid archival timezone", "timezone", cfg.Archival.Timezone, "error", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, report caching disabled", "error", err)
		redisClient = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repositories.
	classroomRepo := repository.NewClassroomRepository(db)
	userRepo := repository.NewUserRepository(db)
	entryRepo := repository.NewTimeEntryRepository(db)
	reportRepo := repository.NewReportRepository(db)
	exportJobRepo := repository.NewExportJobRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Reports.CacheTTL, logr, cfg.Reports.CacheEnabled && redisClient != nil)
	authSvc := service.NewAuthService(userRepo, logr, service.AuthConfig{
		TokenSecret: cfg.JWT.Secret,
		TokenExpiry: cfg.JWT.Expiration,
		Issuer:      cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, nil, logr)
	classroomSvc := service.NewClassroomService(classroomRepo, logr)
	entrySvc := service.NewTimeEntryService(entryRepo, classroomRepo, userRepo, location, logr)
	aggSvc := service.NewAggregationService(entryRepo, reportRepo, location, logr)
	scheduler := service.NewArchivalScheduler(aggSvc, metrics, service.SystemClock(), location, cfg.Archival.FireHour, logr)

	localStorage, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "dir", cfg.Exports.StorageDir, "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(reportRepo, localStorage, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}, logr)
	worker := service.NewExportWorker(exportJobRepo, exportSvc, logr)
	queue := jobs.NewQueue("report-exports", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		Logger:     logr,
	})
	reportSvc := service.NewReportService(reportRepo, exportJobRepo, queue, exportSvc, cacheSvc, logr, service.ReportServiceConfig{
		CacheTTL:        cfg.Reports.CacheTTL,
		ResultTTL:       cfg.Exports.SignedURLTTL,
		CleanupInterval: cfg.Exports.CleanupInterval,
	})

	if cfg.Exports.Enabled {
		queue.Start(ctx)
		reportSvc.RecoverPendingJobs(ctx)
		reportSvc.StartCleanup(ctx)
	}
	if cfg.Archival.Enabled {
		scheduler.Start(ctx)
	}

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	classroomHandler := handler.NewClassroomHandler(classroomSvc)
	entryHandler := handler.NewTimeEntryHandler(entrySvc)
	reportHandler := handler.NewReportHandler(reportSvc)
	archiveHandler := handler.NewArchiveHandler(scheduler, location)
	metricsHandler := handler.NewMetricsHandler(metrics)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
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
		api.POST("/auth/login", authHandler.Login)
		api.GET("/exports/download", reportHandler.Download)

		authed := api.Group("", middleware.JWT(authSvc))
		{
			authed.GET("/auth/me", authHandler.Me)

			users := authed.Group("/users")
			{
				users.GET("", middleware.RequireRoles(models.RoleAdmin), userHandler.List)
				users.POST("", middleware.RequireRoles(models.RoleAdmin), userHandler.Create)
				users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), userHandler.Get)
				users.PATCH("/:id", middleware.RequireRoles(models.RoleAdmin), userHandler.Update)
				users.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), userHandler.Delete)
			}

			classrooms := authed.Group("/classrooms")
			{
				classrooms.GET("", classroomHandler.List)
				classrooms.GET("/:id", classroomHandler.Get)
				classrooms.POST("", middleware.RequireRoles(models.RoleAdmin), classroomHandler.Create)
				classrooms.PATCH("/:id", middleware.RequireRoles(models.RoleAdmin), classroomHandler.Update)
				classrooms.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), classroomHandler.Delete)
			}

			entries := authed.Group("/time-entries")
			{
				entries.GET("", entryHandler.List)
				entries.GET("/:id", entryHandler.Get)
				entries.POST("", entryHandler.Create)
				entries.PATCH("/:id/status", middleware.RequireRoles(models.RoleAdmin, models.RoleReviewer), entryHandler.SetStatus)
				entries.PATCH("/:id/checkout", entryHandler.Checkout)
			}

			reports := authed.Group("/reports")
			{
				reports.GET("", reportHandler.List)
				reports.GET("/:id", reportHandler.Get)
				reports.POST("/:id/export", middleware.RequireRoles(models.RoleAdmin, models.RoleReviewer), reportHandler.CreateExport)
				reports.GET("/exports/:id", reportHandler.ExportStatus)
			}

			authed.POST("/archival/run", middleware.RequireRoles(models.RoleAdmin), archiveHandler.Run)
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("forced shutdown", "error", err)
	}

	scheduler.Wait()
	queue.Stop()
	logr.Sugar().Infow("server stopped")
}
