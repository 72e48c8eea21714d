package httpserver

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clubportal/internal/handler"
	"clubportal/pkg/rbac"
)

type Router struct {
	Engine *gin.Engine
}

// BrokerStatus is the slice of the MQ publisher that readiness checks need.
type BrokerStatus interface {
	IsConnected() bool
}

// NewPortalRouter wires the member-facing API.
func NewPortalRouter(
	notificationHandler *handler.NotificationHandler,
	jwtSecret string,
	db *pgxpool.Pool,
	broker BrokerStatus,
) *Router {
	r := gin.Default()
	r.Use(TraceMiddleware(), MetricsMiddleware())

	registerHealth(r, db, broker)

	api := r.Group("/api")
	api.Use(AuthMiddleware(jwtSecret))
	{
		api.POST("/notifications", notificationHandler.Create)
		api.GET("/notifications", notificationHandler.List)
		api.PUT("/notifications/:id/read", notificationHandler.MarkRead)
		api.PUT("/notifications/:id/dismiss", notificationHandler.Dismiss)
		api.GET("/quota", RequirePermission(rbac.PermissionReadQuota), notificationHandler.Quota)
	}

	return &Router{Engine: r}
}

// NewNotifierRouter exposes the worker's operational surface: health,
// metrics and the manual digest trigger.
func NewNotifierRouter(
	digestHandler *handler.DigestHandler,
	jwtSecret string,
	db *pgxpool.Pool,
	broker BrokerStatus,
) *Router {
	r := gin.Default()
	r.Use(TraceMiddleware(), MetricsMiddleware())

	registerHealth(r, db, broker)

	api := r.Group("/api")
	api.Use(AuthMiddleware(jwtSecret))
	{
		api.POST("/digest/trigger", RequirePermission(rbac.PermissionTriggerDigest), digestHandler.Trigger)
	}

	return &Router{Engine: r}
}

func registerHealth(r *gin.Engine, db *pgxpool.Pool, broker BrokerStatus) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(200)
	})

	r.GET("/readyz", func(c *gin.Context) {
		if broker != nil && !broker.IsConnected() {
			c.JSON(500, gin.H{"status": "mq_not_ready"})
			return
		}

		if db != nil {
			ctx, cancel := context.WithTimeout(c, 1*time.Second)
			defer cancel()

			if err := db.Ping(ctx); err != nil {
				c.JSON(500, gin.H{"status": "db_not_ready", "error": err.Error()})
				return
			}
		}

		c.JSON(200, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(":" + port)
}
