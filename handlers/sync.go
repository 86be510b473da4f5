package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/usersync/internal/usersync"
)

// SyncService pushes users to the directory.
type SyncService interface {
	SyncUser(ctx context.Context, provider usersync.ProviderUser, local usersync.LocalUser, tokens map[string]any) error
	SyncUserDirectly(ctx context.Context, localUserID, subject string, data map[string]any) (bool, error)
}

type SyncHandler struct {
	sync SyncService
}

func NewSyncHandler(s SyncService) *SyncHandler {
	return &SyncHandler{sync: s}
}

// Register routes under /sync
func (h *SyncHandler) Register(rg *gin.RouterGroup) {
	s := rg.Group("/sync")
	s.POST("", h.Sync)
	s.POST("/direct", h.SyncDirect)
}

type syncRequest struct {
	ProviderUser map[string]any `json:"provider_user" binding:"required"`
	LocalUser    map[string]any `json:"local_user" binding:"required"`
	Tokens       map[string]any `json:"tokens"`
}

// Sync handles a login callback: tokens are stored and the user is synced
// according to the configured mode. Tokens may also ride on the provider user.
func (h *SyncHandler) Sync(c *gin.Context) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	provider := usersync.NewProviderUser(req.ProviderUser)
	local := usersync.NewLocalUser(req.LocalUser)
	tokens := req.Tokens
	if len(tokens) == 0 {
		tokens = provider.Tokens()
	}
	if err := h.sync.SyncUser(c.Request.Context(), provider, local, tokens); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "local_user_id": local.ID, "keycloak_id": provider.Subject})
}

type directSyncRequest struct {
	LocalUserID     string         `json:"local_user_id" binding:"required"`
	ProviderSubject string         `json:"provider_subject" binding:"required"`
	Data            map[string]any `json:"data"`
}

// SyncDirect upserts already-mapped data right away.
func (h *SyncHandler) SyncDirect(c *gin.Context) {
	var req directSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Data == nil {
		req.Data = map[string]any{"id": req.ProviderSubject}
	}
	ok, err := h.sync.SyncUserDirectly(c.Request.Context(), req.LocalUserID, req.ProviderSubject, req.Data)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"synced": ok})
}
