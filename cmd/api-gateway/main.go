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

	_ "github.com/campusflow/lms-api/api/swagger"
	"github.com/campusflow/lms-api/internal/handler"
	"github.com/campusflow/lms-api/internal/middleware"
	"github.com/campusflow/lms-api/internal/repository"
	"github.com/campusflow/lms-api/internal/service"
	"github.com/campusflow/lms-api/pkg/cache"
	"github.com/campusflow/lms-api/pkg/config"
	"github.com/campusflow/lms-api/pkg/database"
	"github.com/campusflow/lms-api/pkg/export"
	"github.com/campusflow/lms-api/pkg/logger"
	corsmiddleware "github.com/campusflow/lms-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campusflow/lms-api/pkg/middleware/requestid"
	"github.com/campusflow/lms-api/pkg/storage"
)

// @title CampusFlow LMS API
// @version 1.0.0
// @description Enrollment, group allocation, progress and grading service.
// @BasePath /api/v1
// @schemes http
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	fileStore, err := storage.NewLocalStorage(cfg.Attachments.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init attachment storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Attachments.SignedURLSecret, cfg.Attachments.SignedURLTTL)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	materialRepo := repository.NewMaterialRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	solutionRepo := repository.NewSolutionRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	statusRepo := repository.NewStatusRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	draftRepo := repository.NewDraftRepository(redisClient, cfg.Drafts.TTL)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Catalog.CacheTTL, logr, true)

	auditSvc := service.NewAuditService(userRepo, logr)
	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	auditSvc.Start(runCtx)
	defer auditSvc.Stop()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "campusflow-lms",
	})
	catalogSvc := service.NewCatalogService(statusRepo, cacheSvc, cfg.Catalog.CacheTTL, logr)
	courseSvc := service.NewCourseService(courseRepo, validate, logr)
	materialSvc := service.NewMaterialService(materialRepo, courseRepo, validate, logr)
	groupSvc := service.NewGroupService(groupRepo, requestRepo, validate, logr)
	requestSvc := service.NewRequestService(requestRepo, courseRepo, groupRepo, groupSvc, draftRepo, catalogSvc, auditSvc, validate, logr)
	progressSvc := service.NewProgressService(progressRepo, courseRepo, materialRepo, requestRepo, catalogSvc, auditSvc, logr)
	gradingSvc := service.NewGradingService(solutionRepo, assignmentRepo, progressSvc, auditSvc, validate, logr)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, courseRepo, fileStore, signer,
		cfg.Attachments.MaxFileSizeBytes, cfg.Attachments.AllowedMIMEs, validate, logr)
	reportSvc := service.NewReportService(progressRepo, groupRepo, export.NewCSVExporter(), export.NewPDFExporter(), logr)
	userSvc := service.NewUserService(userRepo, validate, logr)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	handler.RegisterRoutes(r, cfg, handler.Handlers{
		Auth:        handler.NewAuthHandler(authSvc),
		Catalog:     handler.NewCatalogHandler(catalogSvc),
		Courses:     handler.NewCourseHandler(courseSvc),
		Requests:    handler.NewRequestHandler(requestSvc),
		Groups:      handler.NewGroupHandler(groupSvc),
		Materials:   handler.NewMaterialHandler(materialSvc),
		Assignments: handler.NewAssignmentHandler(assignmentSvc),
		Solutions:   handler.NewSolutionHandler(gradingSvc),
		Progress:    handler.NewProgressHandler(progressSvc),
		Reports:     handler.NewReportHandler(reportSvc),
		Users:       handler.NewUserHandler(userSvc),
		Metrics:     handler.NewMetricsHandler(metricsSvc),
	}, authSvc, userRepo)

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

	<-runCtx.Done()
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
