package controllers

import (
	"context"
	"net/http"
	"time"

	"checkout-pipeline/middlewares"
	"checkout-pipeline/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	Orders    *OrderController
	JWTSecret string
	Checks    map[string]HealthCheck
	Logger    logrus.FieldLogger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.LoggingMiddleware(cfg.Logger))
	r.Use(middlewares.PrometheusMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", health(cfg.Checks))

	oc := cfg.Orders

	api := r.Group("/api")
	api.Use(middlewares.AuthMiddleware(cfg.JWTSecret))
	{
		api.POST("/orders/enqueue", oc.EnqueueOrder)
		api.GET("/orders", oc.GetUserOrders)
		api.GET("/orders/:id", oc.GetOrderDetails)
	}

	admin := api.Group("/admin")
	admin.Use(middlewares.RequireRole(utils.RoleAdmin))
	{
		admin.GET("/orders", oc.ListAllOrders)
		admin.PUT("/orders/:id/status", oc.UpdateOrderStatus)
		admin.PUT("/order-lines/:lineId/status", oc.UpdateLineStatus)
		admin.PUT("/order-lines/:lineId/payment-proof", oc.AttachPaymentProof)
		admin.GET("/inventory/:productId", oc.GetStock)
		admin.PUT("/inventory/:productId", oc.SetStock)
	}

	return r
}

func health(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		result := gin.H{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				result[name] = err.Error()
				continue
			}
			result[name] = "ok"
		}

		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{"status": state, "checks": result})
	}
}
