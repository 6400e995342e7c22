package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	er "github.com/mailvault/mailvault/internal/errors"
	"github.com/mailvault/mailvault/internal/repository"
)

type MessagesHandler struct {
	repositories *repository.Repositories
}

func NewMessagesHandler(r *repository.Repositories) *MessagesHandler {
	return &MessagesHandler{repositories: r}
}

// ListByAccount returns archived messages for an account, newest UID first.
// Supports optional folder, limit and offset query params.
func (h *MessagesHandler) ListByAccount() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		accountID := c.Param("id")
		limit, _ := strconv.Atoi(c.Query("limit"))
		offset, _ := strconv.Atoi(c.Query("offset"))

		var err error
		var messages interface{}
		var total int64

		if folder := c.Query("folder"); folder != "" {
			messages, total, err = h.repositories.MessageRepository.ListByFolder(ctx, accountID, folder, limit, offset)
		} else {
			messages, total, err = h.repositories.MessageRepository.ListByAccount(ctx, accountID, limit, offset)
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"messages": messages,
			"total":    total,
		})
	}
}

// GetByUID looks a message up by its IMAP coordinates instead of its row id,
// the way sync tooling refers to it.
func (h *MessagesHandler) GetByUID() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		uid, err := strconv.ParseUint(c.Param("uid"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "uid must be a positive integer"})
			return
		}

		message, err := h.repositories.MessageRepository.GetByUID(ctx, c.Param("id"), c.Param("folder"), uint32(uid))
		if err != nil {
			if errors.Is(err, er.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, message)
	}
}

// Get returns one message with its attachments
func (h *MessagesHandler) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		message, err := h.repositories.MessageRepository.GetByID(ctx, c.Param("id"))
		if err != nil {
			if errors.Is(err, er.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, message)
	}
}

// ListAttachments returns the processed attachments of one message
func (h *MessagesHandler) ListAttachments() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		attachments, err := h.repositories.AttachmentRepository.ListByMessage(ctx, c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, attachments)
	}
}
