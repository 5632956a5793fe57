package main

import (
	"database/sql"
	"time"

	"automation-platform/internal/httpapi"
	"automation-platform/pkg/utils"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc, db *sql.DB) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(503, gin.H{"status": "degraded", "error": "database unreachable"})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})

	// AUTH routes (token issuance).
	// NOTE: This is a placeholder login route; real credential validation is not implemented.
	r.POST("/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		v1.POST("/events", h.PublishEvent)

		triggers := v1.Group("/rules")
		{
			triggers.GET("", h.ListRules)
			triggers.GET("/:id", h.GetRule)
			triggers.GET("/:id/executions", h.ListExecutions)
		}

		flows := v1.Group("/workflows")
		{
			flows.GET("/:id", h.GetWorkflow)
		}

		v1.POST("/workitems/:id/complete", h.CompleteWorkItem)
	}
}
