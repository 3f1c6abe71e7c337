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

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/level-portal-api/api/swagger"
	"github.com/noah-isme/level-portal-api/internal/handler"
	"github.com/noah-isme/level-portal-api/internal/repository"
	"github.com/noah-isme/level-portal-api/internal/router"
	"github.com/noah-isme/level-portal-api/internal/service"
	"github.com/noah-isme/level-portal-api/pkg/cache"
	"github.com/noah-isme/level-portal-api/pkg/config"
	"github.com/noah-isme/level-portal-api/pkg/database"
	"github.com/noah-isme/level-portal-api/pkg/export"
	"github.com/noah-isme/level-portal-api/pkg/identity"
	"github.com/noah-isme/level-portal-api/pkg/jobs"
	"github.com/noah-isme/level-portal-api/pkg/logger"
	"github.com/noah-isme/level-portal-api/pkg/storage"
)

// @title Level Portal API
// @version 1.0.0
// @description Level-gated learning video portal for students and admins
// @BasePath /api
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("database unreachable", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		redisClient = nil
	}
	cacheRepo := repository.NewCacheRepository(redisClient, "level-portal")
	defer cacheRepo.Close() //nolint:errcheck

	store, err := newObjectStore(ctx, cfg)
	if err != nil {
		logr.Fatal("object storage init failed", zap.Error(err))
	}

	verifier, err := identity.NewFirebaseVerifier(ctx, cfg.Identity)
	if err != nil {
		if errors.Is(err, identity.ErrNotInitialized) {
			logr.Warn("identity provider not configured, google login disabled")
		} else {
			logr.Error("identity provider init failed, google login disabled", zap.Error(err))
		}
	}
	var domains identity.DomainAllowList
	if cfg.Identity.EnforceDomains {
		domains = identity.NewDomainAllowList(cfg.Identity.AllowedDomains)
	}
	if domains.Open() {
		logr.Warn("google login accepts every email domain")
	}

	validate := validator.New()
	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Redis.CacheTTL, logr, redisClient != nil)

	admins := repository.NewAdminRepository(db)
	students := repository.NewStudentRepository(db)
	requests := repository.NewLevelRequestRepository(db)
	videos := repository.NewVideoRepository(db)
	activity := repository.NewActivityRepository(db)

	authSvc := service.NewAuthService(admins, students, verifier, domains, cacheSvc, metrics, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiry:     cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
		BcryptCost: cfg.Security.BcryptCost,
	})
	levelSvc := service.NewLevelRequestService(requests, students, cacheSvc, metrics, validate, logr)
	studentSvc := service.NewStudentService(students, activity, cacheSvc, validate, logr, cfg.Security.BcryptCost)
	videoSvc := service.NewVideoService(videos, store, metrics, validate, logr, service.VideoConfig{MaxUploadBytes: cfg.Upload.MaxBytes})
	cleanup := jobs.NewQueue("storage-cleanup", func(ctx context.Context, task jobs.Task) error {
		return videoSvc.RemoveOrphan(ctx, task.Key)
	}, jobs.Config{Workers: 1, Logger: logr})
	cleanup.Start(ctx)
	defer cleanup.Stop()
	videoSvc.UseCleanupQueue(cleanup)
	exportSvc := service.NewExportService(students, logr, export.NewCSVExporter(), export.NewPDFExporter())

	checks := map[string]handler.Pinger{"database": handler.PingFunc(db.PingContext)}
	if redisClient != nil {
		checks["cache"] = cacheRepo
	}

	engine := router.New(router.Options{
		Env:            cfg.Env,
		APIPrefix:      cfg.APIPrefix,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Logger:         logr,
		Metrics:        metrics,
		Tokens:         authSvc,
	}, router.Handlers{
		Auth:          handler.NewAuthHandler(authSvc),
		Students:      handler.NewStudentHandler(studentSvc, exportSvc),
		LevelRequests: handler.NewLevelRequestHandler(levelSvc),
		Videos:        handler.NewVideoHandler(videoSvc),
		Metrics:       handler.NewMetricsHandler(metrics, checks),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "storage", cfg.Storage.Driver)
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

func newObjectStore(ctx context.Context, cfg *config.Config) (storage.ObjectStore, error) {
	if cfg.Storage.Driver == config.StorageDriverS3 {
		s3Store, err := storage.NewS3Store(ctx, cfg.Storage)
		if err != nil {
			return nil, err
		}
		return s3Store, nil
	}
	signer := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)
	local, err := storage.NewLocalStore(cfg.Storage.LocalDir, cfg.APIPrefix+"/media", signer)
	if err != nil {
		return nil, err
	}
	return local, nil
}
