package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	er "github.com/mailvault/mailvault/internal/errors"
	"github.com/mailvault/mailvault/internal/models"
	"github.com/mailvault/mailvault/internal/repository"
	"github.com/mailvault/mailvault/internal/tracing"
)

type AccountsHandler struct {
	repositories *repository.Repositories
}

func NewAccountsHandler(r *repository.Repositories) *AccountsHandler {
	return &AccountsHandler{repositories: r}
}

// List returns all registered accounts
func (h *AccountsHandler) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		accounts, err := h.repositories.AccountRepository.List(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, accounts)
	}
}

// Register adds a new account for synchronization
func (h *AccountsHandler) Register() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "RegisterAccount", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		var account models.Account
		err := c.ShouldBindJSON(&account)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if account.ImapServer == "" || account.ImapUsername == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "imapServer and imapUsername are required"})
			return
		}
		if account.ImapPort == 0 {
			account.ImapPort = 993
		}

		if err := h.repositories.AccountRepository.Create(ctx, &account); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"status": "account registered", "id": account.ID})
	}
}

// Get returns one account by id together with its archived message count
func (h *AccountsHandler) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		account, err := h.repositories.AccountRepository.GetByID(ctx, c.Param("id"))
		if err != nil {
			if errors.Is(err, er.ErrAccountNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		archived, err := h.repositories.MessageRepository.CountByAccount(ctx, account.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"account":          account,
			"archivedMessages": archived,
		})
	}
}

// Update modifies an account's connection settings or enabled flag
func (h *AccountsHandler) Update() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "UpdateAccount", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)
		tracing.TagAccount(span, c.Param("id"))

		account, err := h.repositories.AccountRepository.GetByID(ctx, c.Param("id"))
		if err != nil {
			if errors.Is(err, er.ErrAccountNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if err := c.ShouldBindJSON(account); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		account.ID = c.Param("id") // the id in the path wins

		if err := h.repositories.AccountRepository.Update(ctx, account); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, account)
	}
}

// Remove soft-deletes an account
func (h *AccountsHandler) Remove() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "RemoveAccount", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)
		tracing.TagAccount(span, c.Param("id"))

		id := c.Param("id")
		if err := h.repositories.AccountRepository.Delete(ctx, id); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "account removed", "id": id})
	}
}
