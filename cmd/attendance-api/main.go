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
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campusops/attendance-engine/api/swagger"
	"github.com/campusops/attendance-engine/internal/directory"
	"github.com/campusops/attendance-engine/internal/handler"
	"github.com/campusops/attendance-engine/internal/middleware"
	"github.com/campusops/attendance-engine/internal/models"
	"github.com/campusops/attendance-engine/internal/repository"
	"github.com/campusops/attendance-engine/internal/service"
	"github.com/campusops/attendance-engine/pkg/cache"
	"github.com/campusops/attendance-engine/pkg/config"
	"github.com/campusops/attendance-engine/pkg/database"
	"github.com/campusops/attendance-engine/pkg/jobs"
	"github.com/campusops/attendance-engine/pkg/logger"
	corsmiddleware "github.com/campusops/attendance-engine/pkg/middleware/cors"
	reqidmiddleware "github.com/campusops/attendance-engine/pkg/middleware/requestid"
)

const reconcileJobType = "biometric.reconcile"

// @title Attendance Session Engine API
// @version 1.0.0
// @description Session lifecycle, rotating QR tokens and multi-channel attendance marking
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
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New()

	sessionRepo := repository.NewSessionRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	biometricRepo := repository.NewBiometricRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewTokenRepository(redisClient, logr)

	directoryClient := directory.New(cfg.Reconciler.DirectoryBaseURL, cfg.Reconciler.DirectoryTimeout, logr)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	tokenSvc := service.NewTokenService(tokenRepo, sessionRepo, cfg.Tokens.GraceFactor, metricsSvc, logr)
	sessionSvc := service.NewSessionService(sessionRepo, userRepo, tokenSvc, service.SessionConfig{
		StartWindow:       cfg.Sessions.StartWindow,
		DefaultQRInterval: cfg.Sessions.DefaultQRInterval,
		MinQRInterval:     cfg.Sessions.MinQRInterval,
		MaxQRInterval:     cfg.Sessions.MaxQRInterval,
	}, metricsSvc, validate, logr)
	attendanceSvc := service.NewAttendanceService(recordRepo, sessionRepo, enrollmentRepo, tokenSvc, userRepo, metricsSvc, validate, logr)
	reconcileSvc := service.NewReconcileService(biometricRepo, sessionRepo, directoryClient, attendanceSvc, cfg.Reconciler.BatchSize, metricsSvc, validate, logr)
	statsSvc := service.NewStatsService(sessionRepo, recordRepo, enrollmentRepo, logr)
	exportSvc := service.NewExportService(sessionRepo, recordRepo, logr)

	if err := sessionSvc.ResumeRotation(ctx); err != nil {
		logr.Sugar().Warnw("failed to resume qr rotation", "error", err)
	}

	reconcileQueue := jobs.NewQueue("reconciler", func(jobCtx context.Context, job jobs.Job) error {
		_, err := reconcileSvc.ProcessPending(jobCtx)
		return err
	}, jobs.QueueConfig{
		Workers: cfg.Reconciler.Workers,
		Logger:  logr,
	})
	reconcileQueue.Start(ctx)
	reconcileQueue.EnqueueEvery(ctx, cfg.Reconciler.PollInterval, reconcileJobType)

	authHandler := handler.NewAuthHandler(authSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc, tokenSvc, statsSvc, exportSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	biometricHandler := handler.NewBiometricHandler(reconcileSvc)
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
	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	authed.GET("/auth/me", authHandler.Me)

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor, models.RoleCommandant)
	admin := middleware.RequireRoles(models.RoleAdmin, models.RoleCommandant)

	authed.POST("/sessions", staff, sessionHandler.Create)
	authed.GET("/sessions", staff, sessionHandler.List)
	authed.GET("/sessions/:id", staff, sessionHandler.Get)
	authed.POST("/sessions/:id/start", staff, sessionHandler.Start)
	authed.POST("/sessions/:id/end", staff, sessionHandler.End)
	authed.POST("/sessions/:id/cancel", staff, sessionHandler.Cancel)
	authed.GET("/sessions/:id/qr", staff, sessionHandler.CurrentQR)
	authed.GET("/sessions/:id/statistics", staff, sessionHandler.Statistics)
	authed.GET("/sessions/:id/export", staff, sessionHandler.Export)
	authed.GET("/sessions/:id/attendance", staff, attendanceHandler.List)
	authed.POST("/sessions/:id/attendance", attendanceHandler.Mark)
	authed.POST("/sessions/:id/attendance/excuse", admin, attendanceHandler.Excuse)

	// QR self-marking: students scan with their own devices and carry no
	// staff JWT. The rotating token authenticates the mark.
	api.POST("/sessions/:id/scan", attendanceHandler.Mark)

	devices := api.Group("/biometric")
	devices.Use(middleware.DeviceKey(cfg.Devices.APIKey))
	devices.POST("/sync", biometricHandler.Sync)

	authed.POST("/biometric/process", admin, biometricHandler.Process)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}

	reconcileQueue.Stop()
	tokenSvc.StopAll()
}
