package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/studymate/studymate/config"
	"github.com/studymate/studymate/controllers"
	"github.com/studymate/studymate/middleware"
	"github.com/studymate/studymate/services"
	"github.com/studymate/studymate/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(db *gorm.DB, svc *services.StudyService) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Access logs go to their own rolling file
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		utils.Sugar.Warnf("gin access log disabled: %v", err)
		r.Use(utils.RecoveryWithZap(utils.Logger, false))
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	cacheTTL := time.Duration(cfg.StatsCacheTTLSeconds) * time.Second
	if cfg.DisableStatsCache {
		cacheTTL = 0
	}

	authController := controllers.NewAuthController(db)
	studyController := controllers.NewStudyController(svc)
	progressController := controllers.NewProgressController(svc)
	statsController := controllers.NewStatsController(svc, cacheTTL)

	api := r.Group("/api/v1")
	api.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware(cfg.RateLimitPerMinute))
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.POST("/logout", middleware.AuthRequired(), authController.Logout)
	authGroup.GET("/me", middleware.AuthRequired(), authController.Me)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(), middleware.RateLimitMiddleware(cfg.RateLimitPerMinute))

	records := protected.Group("/study-records")
	records.POST("/start", studyController.Start)
	records.GET("", studyController.List)
	records.GET("/:id", studyController.Get)
	records.POST("/:id/pause", studyController.Pause)
	records.POST("/:id/resume", studyController.Resume)
	records.POST("/:id/pomodoro", studyController.Pomodoro)
	records.POST("/:id/complete", studyController.Complete)
	records.POST("/:id/cancel", studyController.Cancel)

	protected.GET("/progress/streak", progressController.Streak)
	protected.GET("/progress/reputation", progressController.Reputation)
	protected.GET("/progress/policy", progressController.Policy)
	protected.GET("/stats/me", statsController.Me)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
	})

	return r
}
