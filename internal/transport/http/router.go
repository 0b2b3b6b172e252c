package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	jwtpkg "listsync/backend/internal/auth/jwt"
	"listsync/backend/internal/config"
	"listsync/backend/internal/health"
	"listsync/backend/internal/middleware"
	"listsync/backend/internal/monitoring"
	"listsync/backend/internal/reconcile"
	"listsync/backend/internal/service"
)

// Handler 聚合所有 HTTP 处理逻辑。
type Handler struct {
	lists  *service.MailingListService
	runner *reconcile.Runner
	log    *zap.Logger
}

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config      *config.Config
	ListService *service.MailingListService
	Runner      *reconcile.Runner
	JWTManager  *jwtpkg.Manager
	Metrics     *monitoring.Metrics
	Health      *health.HealthChecker // 可选
	Logger      *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()

	monitor := middleware.NewMonitoringMiddleware(deps.Metrics, log)
	router.Use(monitor.PanicRecovery())
	router.Use(monitor.HTTPMetrics())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))

	// CORS 配置
	if len(deps.Config.API.AllowedOrigins) > 0 {
		corsConfig := gincors.Config{
			AllowOrigins:     deps.Config.API.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}
		// 如果允许所有来源，则需清空凭证支持。
		for _, origin := range corsConfig.AllowOrigins {
			if origin == "*" {
				corsConfig.AllowCredentials = false
				break
			}
		}
		router.Use(gincors.New(corsConfig))
	}

	handler := &Handler{
		lists:  deps.ListService,
		runner: deps.Runner,
		log:    log,
	}

	router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	if deps.Health != nil {
		router.GET("/live", gin.WrapF(deps.Health.LiveEndpoint))
		router.GET("/ready", gin.WrapF(deps.Health.ReadyEndpoint))
		router.GET("/health", func(c *gin.Context) {
			Success(c, deps.Health.CheckHealth())
		})
	}

	jwtAuth := middleware.NewJWTAuth(deps.JWTManager, log)

	v1 := router.Group("/api/v1")
	v1.Use(jwtAuth.RequireAuth())
	{
		v1.POST("/domains/:domainID/lists", handler.createList)

		v1.GET("/lists", handler.listLists)
		v1.GET("/lists/:id", handler.getList)
		v1.PATCH("/lists/:id", handler.updateList)
		v1.DELETE("/lists/:id", handler.deleteList)
		v1.POST("/lists/:id/enable", handler.enableList)
		v1.POST("/lists/:id/disable", handler.disableList)
		v1.POST("/lists/:id/retry", handler.retryList)

		v1.POST("/reconcile", middleware.RateLimit(deps.Config.API.ReconcileInterval, 1), handler.triggerReconcile)
	}

	router.NoRoute(func(c *gin.Context) {
		Error(c, http.StatusNotFound, "接口不存在")
	})

	return router
}
