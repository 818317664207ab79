package router

import (
	"nekotab/internal/database"
	"nekotab/internal/handlers"
	"nekotab/internal/middleware"
	"nekotab/internal/registry"
	"nekotab/internal/services"
	"nekotab/pkg/config"

	"github.com/gin-gonic/gin"
)

// Deps 路由依赖
type Deps struct {
	Registry     registry.Registry
	Provisioner  *services.ProvisionerService
	Decommission *services.DecommissionService
}

// SetupRouter 设置路由
func SetupRouter(deps *Deps) *gin.Engine {
	router := gin.New()

	// 中间件
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.SetupCORS())

	registerRoutes(router, deps)
	return router
}

// 注册所有路由
func registerRoutes(router *gin.Engine, deps *Deps) {
	cfg := config.GetConfig()
	q := database.GetRedisQueue()
	auth := middleware.NewAuthMiddleware(database.GetDB())

	tenantHandler := handlers.NewTenantHandler(deps.Registry, q,
		deps.Provisioner, deps.Decommission, cfg.Domain.Reserved)
	webhookHandler := handlers.NewWebhookHandler(deps.Registry, q, cfg.Domain.Reserved)
	wsHandler := handlers.NewWebSocketHandler(deps.Registry)

	api := router.Group("/api/v1")
	{
		// 探针接口（无需认证）
		api.GET("/health", handlers.Health)
		api.GET("/ready", handlers.Ready)

		// 租户生命周期（管理API，需要API密钥）
		tenants := api.Group("/tenants", auth.RequireAPIKey())
		{
			tenants.POST("", tenantHandler.Create)
			tenants.GET("", tenantHandler.GetAll)
			tenants.GET("/:id", tenantHandler.GetByID)
			tenants.POST("/:id/suspend", tenantHandler.Suspend)
			tenants.POST("/:id/resume", tenantHandler.Resume)
			tenants.DELETE("/:id", tenantHandler.Delete)
			tenants.GET("/:id/logs", tenantHandler.GetLogs)
			tenants.GET("/:id/logs/ws", wsHandler.TenantLogs)
		}

		// 平台统计
		api.GET("/stats", auth.RequireAPIKey(), tenantHandler.GetStats)

		// 开通任务状态
		api.GET("/jobs/:job_id", auth.RequireAPIKey(), tenantHandler.GetJobStatus)

		// 外部系统回调
		webhooks := api.Group("/webhooks", auth.RequireAPIKey())
		{
			webhooks.POST("/signup", webhookHandler.Signup)
		}
	}
}
