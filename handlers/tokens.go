package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/usersync/internal/tokens"
	"github.com/gogotex/usersync/pkg/middleware"
)

// TokenService is the token lifecycle the API exposes.
type TokenService interface {
	StoreTokens(ctx context.Context, userID string, payload map[string]any) error
	TokenData(ctx context.Context, userID string) (*tokens.Record, error)
	GetValidToken(ctx context.Context, userID string) (string, error)
	ClearTokens(ctx context.Context, userID string) error
	HasValidTokens(ctx context.Context, userID string) (bool, error)
	IntrospectToken(ctx context.Context, token string) map[string]any
}

type TokenHandler struct {
	tokens       TokenService
	exposeAccess bool
}

func NewTokenHandler(t TokenService) *TokenHandler {
	return &TokenHandler{tokens: t}
}

// WithAccessRoute enables GET /tokens/:userId/access. Only enable it behind
// AuthMiddleware and ServiceRole: the handler relies on the caller identity
// they put in the context.
func (h *TokenHandler) WithAccessRoute() *TokenHandler {
	h.exposeAccess = true
	return h
}

// Register routes under /tokens
func (h *TokenHandler) Register(rg *gin.RouterGroup) {
	t := rg.Group("/tokens")
	t.POST("/introspect", h.Introspect)
	t.PUT("/:userId", h.Store)
	t.GET("/:userId", h.Status)
	if h.exposeAccess {
		t.GET("/:userId/access", h.Access)
	}
	t.DELETE("/:userId", h.Clear)
}

// Store accepts a login's token payload in any of the tolerated shapes.
func (h *TokenHandler) Store(c *gin.Context) {
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.tokens.StoreTokens(c.Request.Context(), c.Param("userId"), payload); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Status reports recoverable validity. Token values are never returned here.
func (h *TokenHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.Param("userId")
	valid, err := h.tokens.HasValidTokens(ctx, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := gin.H{"valid": valid}
	rec, err := h.tokens.TokenData(ctx, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	if rec != nil {
		resp["expires_at"] = rec.ExpiresAt
		resp["keycloak_id"] = rec.ProviderID
		resp["has_refresh_token"] = rec.RefreshToken != ""
	}
	c.JSON(http.StatusOK, resp)
}

// Access returns an immediately usable access token, refreshing if needed.
// Service callers may read any user's token; anyone else only a record whose
// keycloak id is their own subject.
func (h *TokenHandler) Access(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.Param("userId")
	if !middleware.IsService(c) {
		rec, err := h.tokens.TokenData(ctx, userID)
		if err != nil {
			writeError(c, err)
			return
		}
		sub := middleware.Subject(c)
		if rec == nil || sub == "" || rec.ProviderID != sub {
			c.JSON(http.StatusForbidden, gin.H{"error": "access token is only available to its owner or a service client"})
			return
		}
	}

	token, err := h.tokens.GetValidToken(ctx, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	if token == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no valid token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token})
}

func (h *TokenHandler) Clear(c *gin.Context) {
	if err := h.tokens.ClearTokens(c.Request.Context(), c.Param("userId")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type introspectRequest struct {
	Token string `json:"token" binding:"required"`
}

func (h *TokenHandler) Introspect(c *gin.Context) {
	var req introspectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims := h.tokens.IntrospectToken(c.Request.Context(), req.Token)
	if claims == nil {
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}
	c.JSON(http.StatusOK, claims)
}
