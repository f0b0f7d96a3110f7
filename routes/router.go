package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/relay/config"
	"github.com/cppla/relay/controllers"
	"github.com/cppla/relay/middleware"
	"github.com/cppla/relay/services"
	"github.com/cppla/relay/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg config.AppConfig, db *gorm.DB) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(utils.RequestID())

	// Access log goes to its own rolling file; fall back to the app logger.
	gl := utils.Logger
	if cfg.GinPath != "" {
		if l, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress); err == nil {
			gl = l
		} else {
			utils.Sugar.Warnf("gin access log disabled: %v", err)
		}
	}
	r.Use(utils.Ginzap(gl, time.RFC3339, true))
	r.Use(utils.RecoveryWithZap(gl, false))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", utils.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", utils.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		// Browsers refuse credentialed responses to a wildcard origin.
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"message": "RELAY API Server is running!"})
	})
	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	users := services.NewUserService(db, cfg.BcryptCost)
	threads := services.NewThreadService(db)
	tokens := utils.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	guard := middleware.NewAuthGuard(tokens, users)

	authController := controllers.NewAuthController(users, tokens)
	threadController := controllers.NewThreadController(threads)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.GET("/me", guard.Required(), authController.Me)
	authGroup.PATCH("/me", guard.Required(), authController.UpdateProfile)
	authGroup.DELETE("/me", guard.Required(), authController.Deactivate)

	threadsGroup := api.Group("/threads")
	threadsGroup.GET("", threadController.ListThreads)
	threadsGroup.GET("/:id", threadController.GetThread)

	protected := api.Group("")
	protected.Use(guard.Required())
	protected.POST("/threads", threadController.CreateThread)
	protected.PUT("/threads/:id", threadController.UpdateThread)
	protected.DELETE("/threads/:id", threadController.DeleteThread)
	protected.POST("/threads/:id/replies", threadController.CreateReply)
	protected.POST("/threads/:id/vote", threadController.CastVote)
	protected.DELETE("/threads/:id/vote", threadController.RetractVote)
	protected.POST("/comments", threadController.CreateComment)

	r.NoRoute(func(ctx *gin.Context) {
		if strings.HasPrefix(ctx.Request.URL.Path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			return
		}
		utils.Error(ctx, http.StatusNotFound, 40400, "not found")
	})

	return r
}
