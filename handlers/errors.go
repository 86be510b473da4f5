package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/usersync/internal/directory"
	"github.com/gogotex/usersync/internal/tokens"
	"github.com/gogotex/usersync/internal/usersync"
	"github.com/gogotex/usersync/pkg/logger"
)

// writeError maps domain errors onto HTTP responses.
func writeError(c *gin.Context, err error) {
	var (
		refreshErr  *tokens.RefreshError
		httpErr     *directory.HTTPError
		disabledErr *directory.RegistrationDisabledError
	)
	switch {
	case errors.Is(err, usersync.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &refreshErr):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token refresh failed", "details": refreshErr.Description, "code": refreshErr.StatusCode})
	case errors.Is(err, directory.ErrNoToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.As(err, &disabledErr):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.As(err, &httpErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": httpErr.Error(), "code": httpErr.StatusCode, "data": httpErr.Data})
	default:
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
