// Package router assembles the HTTP route table.
package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/level-portal-api/internal/handler"
	"github.com/noah-isme/level-portal-api/internal/middleware"
	"github.com/noah-isme/level-portal-api/internal/service"
	"github.com/noah-isme/level-portal-api/pkg/config"
	"github.com/noah-isme/level-portal-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/level-portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/level-portal-api/pkg/middleware/requestid"
)

// Options configures the engine.
type Options struct {
	Env            string
	APIPrefix      string
	AllowedOrigins []string
	Logger         *zap.Logger
	Metrics        *service.MetricsService
	Tokens         middleware.TokenValidator
}

// Handlers groups the resource handlers mounted by New.
type Handlers struct {
	Auth          *handler.AuthHandler
	Students      *handler.StudentHandler
	LevelRequests *handler.LevelRequestHandler
	Videos        *handler.VideoHandler
	Metrics       *handler.MetricsHandler
}

// New builds the gin engine with the global middleware chain and all routes.
func New(opts Options, h Handlers) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.APIPrefix == "" {
		opts.APIPrefix = "/api"
	}
	if opts.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(opts.Logger))
	r.Use(corsmiddleware.New(opts.AllowedOrigins))
	if opts.Metrics != nil {
		r.Use(middleware.Metrics(opts.Metrics))
	}
	r.Use(middleware.WithResponseMeta())

	r.GET("/metrics", h.Metrics.Prometheus)
	if opts.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(opts.APIPrefix)
	api.GET("/health", h.Metrics.Health)
	api.GET("/ready", h.Metrics.Ready)
	// signed token in the path; <video> elements cannot send bearer headers
	api.GET("/media/:token", h.Videos.Media)

	auth := api.Group("/auth")
	auth.POST("/admin/login", h.Auth.AdminLogin)
	auth.POST("/student/login", h.Auth.StudentLogin)
	auth.POST("/student/signup", h.Auth.Signup)
	auth.POST("/google", h.Auth.Google)

	secured := api.Group("")
	secured.Use(middleware.JWT(opts.Tokens))
	secured.GET("/auth/verify", h.Auth.Verify)

	admin := secured.Group("")
	admin.Use(middleware.RequireAdmin())

	student := secured.Group("")
	student.Use(middleware.RequireStudent())

	admin.GET("/students", h.Students.List)
	admin.POST("/students", h.Students.Create)
	admin.GET("/students/stats", h.Students.Stats)
	admin.GET("/students/export", h.Students.Export)
	student.GET("/students/profile", h.Students.Profile)
	student.GET("/students/activity", h.Students.Activity)
	student.POST("/students/activity", h.Students.RecordActivity)
	admin.GET("/students/:id", h.Students.Get)
	admin.PUT("/students/:id", h.Students.Update)
	admin.DELETE("/students/:id", h.Students.Delete)

	admin.POST("/videos/upload", h.Videos.Upload)
	admin.POST("/videos/google-drive", h.Videos.GoogleDrive)
	admin.POST("/videos/sync", h.Videos.Sync)
	admin.GET("/videos/all", h.Videos.All)
	admin.DELETE("/videos/:id", h.Videos.Delete)
	levelGated := student.Group("/videos/level/:level")
	levelGated.Use(middleware.LevelGate())
	levelGated.GET("", h.Videos.ByLevel)
	levelGated.GET("/sheet/:sheet", h.Videos.BySheet)

	student.POST("/level-requests", h.LevelRequests.Create)
	student.GET("/level-requests/my-requests", h.LevelRequests.Mine)
	admin.GET("/level-requests", h.LevelRequests.List)
	admin.GET("/level-requests/pending", h.LevelRequests.Pending)
	admin.GET("/level-requests/pending/count", h.LevelRequests.PendingCount)
	admin.POST("/level-requests/:id/approve", h.LevelRequests.Approve)
	admin.POST("/level-requests/:id/reject", h.LevelRequests.Reject)

	return r
}
