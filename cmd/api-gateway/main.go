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
	"go.uber.org/zap"

	_ "github.com/noah-isme/tutoring-center-api/api/swagger"
	"github.com/noah-isme/tutoring-center-api/internal/handler"
	internalmiddleware "github.com/noah-isme/tutoring-center-api/internal/middleware"
	"github.com/noah-isme/tutoring-center-api/internal/repository"
	"github.com/noah-isme/tutoring-center-api/internal/scanner"
	"github.com/noah-isme/tutoring-center-api/internal/service"
	"github.com/noah-isme/tutoring-center-api/pkg/cache"
	"github.com/noah-isme/tutoring-center-api/pkg/config"
	"github.com/noah-isme/tutoring-center-api/pkg/database"
	"github.com/noah-isme/tutoring-center-api/pkg/jobs"
	"github.com/noah-isme/tutoring-center-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/tutoring-center-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tutoring-center-api/pkg/middleware/requestid"
	"github.com/noah-isme/tutoring-center-api/pkg/storage"
)

// @title Tutoring Center API
// @version 1.0.0
// @description Students, attendance, payments, grades, media and reports for a tutoring center
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	loc := cfg.Center.Location()

	gw, err := database.NewGateway(cfg.Database, nil, logr)
	if err != nil {
		return err
	}
	defer gw.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	mediaFiles, err := storage.NewLocalStorage(cfg.Media.StorageDir)
	if err != nil {
		return fmt.Errorf("media storage: %w", err)
	}
	reportFiles, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		return fmt.Errorf("report storage: %w", err)
	}

	validate := service.NewValidator()
	metrics := service.NewMetricsService()

	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Dashboard.CacheTTL, logr, redisClient != nil)

	userRepo := repository.NewUserRepository(gw)
	studentRepo := repository.NewStudentRepository(gw)
	attendanceRepo := repository.NewAttendanceRepository(gw)
	paymentRepo := repository.NewPaymentRepository(gw)
	gradeRepo := repository.NewGradeRepository(gw)
	mediaRepo := repository.NewMediaRepository(gw)
	parentRepo := repository.NewParentRepository(gw)
	reportRepo := repository.NewReportRepository(gw)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	if cfg.Admin.Username != "" {
		created, err := authSvc.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password, cfg.Admin.FullName)
		if err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		if created {
			logr.Info("bootstrap admin created", zap.String("username", cfg.Admin.Username))
		}
	}

	scanners := scanner.NewManager(scanner.NewQRDecoder(), scanner.Options{
		FrameInterval: cfg.Scanner.FrameInterval,
		MaxFrames:     cfg.Scanner.MaxFrames,
		Timeout:       cfg.Scanner.SessionTTL,
		OnFinish:      metrics.RecordScanSession,
	}, logr)
	defer scanners.Shutdown()

	resetSigner := storage.NewSignedURLSigner(cfg.Payments.ResetSecret, cfg.Payments.ResetTTL)
	mediaSigner := storage.NewSignedURLSigner(cfg.Media.SignedURLSecret, cfg.Media.SignedURLTTL)
	reportSigner := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

	studentSvc := service.NewStudentService(studentRepo, userRepo, cacheSvc, validate, logr)
	paymentSvc := service.NewPaymentService(paymentRepo, studentRepo, userRepo, resetSigner, metrics, validate, logr)
	if redisClient != nil {
		paymentSvc.SetTokenClaims(cacheRepo)
	}
	attendanceSvc := service.NewAttendanceService(attendanceRepo, studentRepo, userRepo, scanners, metrics, loc, validate, logr)
	gradeSvc := service.NewGradeService(gradeRepo, studentRepo, validate, logr)
	mediaSvc := service.NewMediaService(mediaRepo, mediaFiles, mediaSigner, cacheSvc, validate, logr, service.MediaConfig{
		MaxFileSizeBytes: cfg.Media.MaxFileSizeBytes,
		AllowedMIMEs:     cfg.Media.AllowedMIMEs,
		CacheTTL:         cfg.Media.CacheTTL,
		DownloadBasePath: cfg.APIPrefix,
	})
	parentSvc := service.NewParentService(parentRepo, studentRepo, attendanceRepo, gradeRepo, paymentSvc, validate, logr)
	dashboardSvc := service.NewDashboardService(studentRepo, attendanceRepo, paymentRepo, mediaRepo, cacheSvc, cfg.Dashboard.CacheTTL, loc, logr)

	exportSvc := service.NewExportService(service.ExportSources{
		Attendance: attendanceRepo,
		Payments:   paymentRepo,
		Grades:     gradeRepo,
	}, reportFiles, cfg.Center.Name, loc, logr, nil, nil)
	reportSvc := service.NewReportService(reportRepo, nil, reportFiles, reportSigner, validate, logr, service.ReportServiceConfig{
		DownloadBasePath: cfg.APIPrefix,
		ResultTTL:        cfg.Reports.SignedURLTTL,
		CleanupInterval:  cfg.Reports.CleanupInterval,
	})

	if cfg.Reports.Enabled {
		worker := service.NewReportWorker(reportRepo, exportSvc, metrics, cfg.Reports.WorkerRetries, logr)
		queue := jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			RetryDelay: 2 * time.Second,
			Logger:     logr,
		})
		queue.Start(ctx)
		defer queue.Stop()
		reportSvc.SetQueue(queue)
		reportSvc.RecoverPendingJobs(ctx)
		reportSvc.StartCleanup(ctx)
	}

	health := handler.NewHealthHandler(gw, cacheRepo, metrics.Handler())

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	r.GET("/health", health.Health)
	r.GET("/ready", health.Ready)
	r.GET("/metrics", health.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix, internalmiddleware.RequestTimeout(cfg.RequestTimeout))
	handler.RegisterRoutes(api, handler.Handlers{
		Auth:       handler.NewAuthHandler(authSvc),
		Students:   handler.NewStudentHandler(studentSvc, attendanceSvc, paymentSvc),
		Attendance: handler.NewAttendanceHandler(attendanceSvc, scanners),
		Payments:   handler.NewPaymentHandler(paymentSvc),
		Grades:     handler.NewGradeHandler(gradeSvc),
		Media:      handler.NewMediaHandler(mediaSvc, studentSvc),
		Parents:    handler.NewParentHandler(parentSvc),
		Dashboard:  handler.NewDashboardHandler(dashboardSvc),
		Reports:    handler.NewReportHandler(reportSvc),
	}, internalmiddleware.JWT(authSvc))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "center", cfg.Center.Name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
