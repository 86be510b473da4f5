package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/usersync/internal/directory"
)

// DirectoryService reads and removes remote users on behalf of a local user.
type DirectoryService interface {
	FindByProviderID(ctx context.Context, localUserID, subject string) (directory.User, error)
	GetUser(ctx context.Context, localUserID, remoteID string) (directory.User, error)
	DeleteUser(ctx context.Context, localUserID, remoteID string) error
}

type DirectoryHandler struct {
	dir DirectoryService
}

func NewDirectoryHandler(d DirectoryService) *DirectoryHandler {
	return &DirectoryHandler{dir: d}
}

// Register routes under /directory/:userId
func (h *DirectoryHandler) Register(rg *gin.RouterGroup) {
	d := rg.Group("/directory/:userId")
	d.GET("/subjects/:subject", h.FindBySubject)
	d.GET("/users/:remoteId", h.GetUser)
	d.DELETE("/users/:remoteId", h.DeleteUser)
}

func (h *DirectoryHandler) FindBySubject(c *gin.Context) {
	u, err := h.dir.FindByProviderID(c.Request.Context(), c.Param("userId"), c.Param("subject"))
	if err != nil {
		writeError(c, err)
		return
	}
	if u == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *DirectoryHandler) GetUser(c *gin.Context) {
	u, err := h.dir.GetUser(c.Request.Context(), c.Param("userId"), c.Param("remoteId"))
	if err != nil {
		writeError(c, err)
		return
	}
	if u == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *DirectoryHandler) DeleteUser(c *gin.Context) {
	if err := h.dir.DeleteUser(c.Request.Context(), c.Param("userId"), c.Param("remoteId")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
