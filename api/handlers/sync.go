package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/mailvault/mailvault/interfaces"
	er "github.com/mailvault/mailvault/internal/errors"
	"github.com/mailvault/mailvault/internal/tracing"
)

type SyncHandler struct {
	orchestrator interfaces.SyncOrchestrator
}

func NewSyncHandler(orchestrator interfaces.SyncOrchestrator) *SyncHandler {
	return &SyncHandler{orchestrator: orchestrator}
}

// Trigger requests an immediate sync cycle for an account. Responds 202 when
// the cycle is queued and 409 when one is already in flight.
func (h *SyncHandler) Trigger() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "TriggerSync", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)
		tracing.TagAccount(span, c.Param("id"))

		accountID := c.Param("id")
		outcome, err := h.orchestrator.TriggerSync(ctx, accountID)
		if err != nil {
			tracing.TraceErr(span, err)
			switch {
			case errors.Is(err, er.ErrAccountNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			case errors.Is(err, er.ErrAccountDisabled):
				c.JSON(http.StatusConflict, gin.H{"error": "account is disabled"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}

		if outcome == interfaces.TriggerBusy {
			c.JSON(http.StatusConflict, gin.H{"status": string(outcome), "id": accountID})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": string(outcome), "id": accountID})
	}
}

// Status returns the orchestrator's view of one account
func (h *SyncHandler) Status() gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := h.orchestrator.Status(c.Param("id"))
		if err != nil {
			if errors.Is(err, er.ErrAccountNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, status)
	}
}
