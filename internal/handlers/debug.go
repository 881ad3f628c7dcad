package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-server/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRouter, audit Auditor, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if audit == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitAudit(c, audit, telemetry.LevelInfo, "audit test")
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
