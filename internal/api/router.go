package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"renewal-service/internal/logging"
)

func NewRouter(h *Handler, cronSecret string, logger *logging.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))
	r.Use(MetricsMiddleware())

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := BearerAuth(cronSecret, logger)
	api := r.Group("/api")
	{
		// Scheduler
		api.GET("/cron/check-subscriptions", auth, h.CheckSubscriptions)

		// Subscriptions
		api.POST("/subscriptions/webhook", h.PaymentWebhook)
		api.POST("/subscriptions/create", h.CreateSubscription)
		api.GET("/subscriptions/active", h.GetActiveSubscription)
		api.POST("/subscriptions/:id/cancel", auth, h.CancelSubscription)

		// Notifications
		api.GET("/notifications/subscription/:id", auth, h.GetSubscriberStatus)
		api.POST("/notifications/subscription/:id", auth, h.SendReminder)
		api.GET("/ws", auth, h.ReminderFeed)
	}
	return r
}
