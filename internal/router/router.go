package router

import (
	"net/http"

	"github.com/3Eeeecho/go-stackdash/internal/config"
	"github.com/3Eeeecho/go-stackdash/internal/handlers"
	"github.com/3Eeeecho/go-stackdash/internal/middlewares"
	"github.com/3Eeeecho/go-stackdash/internal/models"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/xerr"
	"github.com/gin-gonic/gin"
)

// Handlers 路由初始化所需的全部 Handler
type Handlers struct {
	Auth     *handlers.AuthHandler
	User     *handlers.UserHandler
	Storage  *handlers.StorageHandler
	File     *handlers.FileHandler
	Resource *handlers.ResourceHandler
	Cluster  *handlers.ClusterHandler
	Admin    *handlers.AdminHandler
}

func InitRouter(h Handlers, cfg *config.Config) *gin.Engine {
	// 设置 Gin 模式，开发环境为 debug，生产环境为 release
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	router := gin.Default() // 包含 Logger 和 Recovery 中间件

	// Health Check 路由
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	v1 := router.Group("/api/v1")
	{
		// 认证相关路由 (无需认证)
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", h.Auth.Register)
			authGroup.POST("/login", h.Auth.Login)
		}

		// 需要认证的路由组
		authenticated := v1.Group("/")
		authenticated.Use(middlewares.AuthMiddleware(cfg.JWT.SecretKey))

		userGroup := authenticated.Group("/users")
		{
			userGroup.GET("/me", h.User.GetUserProfile)
		}

		storageGroup := authenticated.Group("/storage")
		{
			storageGroup.GET("/quota", h.Storage.GetQuota)
			storageGroup.POST("/quota/check", h.Storage.CheckQuota)
			storageGroup.GET("/stats", h.Storage.GetStats)
		}

		fileGroup := authenticated.Group("/files")
		{
			fileGroup.POST("", h.File.Upload)
		}

		resourceGroup := authenticated.Group("/resources")
		{
			resourceGroup.POST("/:id/deploy", h.Resource.Deploy)
			resourceGroup.GET("/:id/deployment", h.Resource.GetDeployment)
			resourceGroup.POST("/:id/refresh", h.Resource.Refresh)
			resourceGroup.DELETE("/:id", h.Resource.Decommission)
		}

		clusterGroup := authenticated.Group("/cluster")
		{
			clusterGroup.GET("/status", h.Cluster.Status)
			clusterGroup.POST("/sync", h.Cluster.Sync)
		}

		adminGroup := authenticated.Group("/admin")
		adminGroup.Use(middlewares.RequireRole(models.RoleAdmin))
		{
			adminGroup.PUT("/users/:id/tier", h.Admin.UpdateUserTier)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		xerr.Error(c, http.StatusNotFound, xerr.NotFoundCode, "Route not found")
	})

	return router
}
