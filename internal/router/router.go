package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/schoolhub/bulkops-backend/internal/config"
	"github.com/schoolhub/bulkops-backend/internal/handler"
	"github.com/schoolhub/bulkops-backend/internal/middleware"
	"github.com/schoolhub/bulkops-backend/internal/model"
	"github.com/schoolhub/bulkops-backend/internal/response"
	"github.com/schoolhub/bulkops-backend/internal/service"
)

// templateMaxAge is how long clients may cache the upload template.
const templateMaxAge = 24 * 60 * 60

// Handlers groups all handler instances for route setup.
type Handlers struct {
	TenantBulk *handler.TenantBulkHandler
	Enrollment *handler.EnrollmentHandler
	Class      *handler.ClassHandler
	WS         *handler.WSHandler
	System     *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// gatherer backs /metrics; nil serves the default registry.
func SetupRouter(
	tokens *service.TokenService,
	handlers *Handlers,
	gatherer prometheus.Gatherer,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Content-Disposition", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.AccessLog(log))
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	uploadLimiter := middleware.NewRateLimiter(cfg.UploadRatePerMinute, time.Minute)
	requireJWT := middleware.RequireJWT(tokens)

	api := router.Group("/api/v1")
	api.Use(requireJWT)

	// ─── 1. Tenant Bulk Uploads ────────────────────────────────────────
	tenants := api.Group("/tenants/bulk")
	{
		upload := tenants.Group("")
		upload.Use(middleware.RequirePermission(model.PermissionTenantsBulk), uploadLimiter.Middleware())
		upload.POST("/create-csv", handlers.TenantBulk.CreateCSV)
		upload.POST("/update-csv", handlers.TenantBulk.UpdateCSV)
		upload.POST("/validate-csv", handlers.TenantBulk.ValidateCSV)

		tenants.GET("/template/download",
			middleware.RequirePermission(model.PermissionTenantsBulk),
			middleware.CacheControl(templateMaxAge),
			handlers.TenantBulk.DownloadTemplate)
	}

	// ─── 2. Operation Status ───────────────────────────────────────────
	ops := api.Group("")
	ops.Use(middleware.RequirePermission(model.PermissionOperationsRead), middleware.NoStore())
	{
		ops.GET("/tenants/bulk/status/:operation_id", handlers.TenantBulk.GetStatus)
		ops.GET("/tenants/bulk/operations", handlers.TenantBulk.ListOperations)
		ops.DELETE("/tenants/bulk/operations/:operation_id", handlers.TenantBulk.DeleteOperation)
		ops.GET("/bulk/operations/:operation_id", handlers.TenantBulk.GetStatus)
	}

	// ─── 3. Enrollments ────────────────────────────────────────────────
	enrollments := api.Group("/enrollments")
	enrollments.Use(middleware.RequirePermission(model.PermissionEnrollmentsBulk))
	{
		enrollments.POST("/bulk", handlers.Enrollment.BulkEnroll)
		enrollments.POST("/bulk/academic-year-rollover", handlers.Enrollment.Rollover)
		enrollments.POST("/bulk/import-csv", uploadLimiter.Middleware(), handlers.Enrollment.ImportCSV)
		enrollments.POST("/bulk/update-status", handlers.Enrollment.UpdateStatus)
		enrollments.POST("/bulk/transfer", handlers.Enrollment.Transfer)
		enrollments.POST("/bulk/withdraw", handlers.Enrollment.Withdraw)
		enrollments.POST("/bulk/delete", handlers.Enrollment.Delete)
		enrollments.POST("/bulk/enroll-by-grade", handlers.Enrollment.EnrollByGrade)
		enrollments.POST("/bulk/auto-assign", handlers.Enrollment.AutoAssign)
		enrollments.GET("/statistics", handlers.Enrollment.Statistics)
	}

	// ─── 4. Classes ────────────────────────────────────────────────────
	classes := api.Group("/classes")
	{
		classes.GET("/:id/capacity", middleware.RequirePermission(model.PermissionClassesRead), handlers.Class.GetCapacity)
		classes.POST("/reconcile", middleware.RequirePermission(model.PermissionClassesWrite), handlers.Class.Reconcile)
	}

	api.GET("/system/stats", middleware.RequirePermission(model.PermissionOperationsRead), handlers.System.Stats)

	// ─── 5. WebSocket ──────────────────────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(requireJWT, middleware.RequirePermission(model.PermissionOperationsRead))
	{
		ws.GET("/bulk/operations/:operation_id/stream", handlers.WS.OperationStream)
	}

	router.NoRoute(func(c *gin.Context) {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	})

	return router
}
