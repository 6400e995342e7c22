package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mailvault/mailvault/interfaces"
)

// HealthCheck provides a simple health check endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Status returns the sync status of all known accounts
func Status(orchestrator interfaces.SyncOrchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, orchestrator.StatusAll())
	}
}
