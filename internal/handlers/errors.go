package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PabloG6/medscan-intellibus/internal/logger"
	"github.com/PabloG6/medscan-intellibus/internal/services"
)

// respondError maps service errors to a status. Unknown errors become a 500
// carrying summary as the error and the cause as details.
func respondError(c *gin.Context, log *logger.Logger, summary string, err error) {
	switch {
	case errors.Is(err, services.ErrUnauthorized), errors.Is(err, services.ErrTokenExpired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	case errors.Is(err, services.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrChatNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Chat not found"})
	case errors.Is(err, services.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
	case errors.Is(err, services.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrStorageUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		log.Error(summary, "error", err, "path", c.FullPath())
		c.JSON(http.StatusInternalServerError, gin.H{"error": summary, "details": err.Error()})
	}
}
