package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mailvault/mailvault/internal/repository"
)

type AttachmentsHandler struct {
	repositories *repository.Repositories
}

func NewAttachmentsHandler(r *repository.Repositories) *AttachmentsHandler {
	return &AttachmentsHandler{repositories: r}
}

// ListByChecksum returns every archived copy of an attachment payload. The
// same checksum can appear under many messages, the text is only extracted
// once.
func (h *AttachmentsHandler) ListByChecksum() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		checksum := c.Param("checksum")
		if len(checksum) != 64 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "checksum must be a hex encoded sha-256 digest"})
			return
		}

		attachments, err := h.repositories.AttachmentRepository.ListByChecksum(ctx, checksum)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, attachments)
	}
}
