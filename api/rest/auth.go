package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/rotationbot/cache"
	"github.com/kasuganosora/rotationbot/config"
	mw "github.com/kasuganosora/rotationbot/middleware"
)

const defaultOperator = "admin"

// AuthHandler issues and revokes operator tokens.
type AuthHandler struct {
	cache cache.Cache
	sec   config.SecurityConfig
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(c cache.Cache, sec config.SecurityConfig) *AuthHandler {
	return &AuthHandler{cache: c, sec: sec}
}

type tokenRequest struct {
	Operator string `json:"operator" binding:"omitempty,min=2,max=32"`
}

// Token handles POST /api/auth/token. Routes must be guarded by AdminAuth.
func (h *AuthHandler) Token(c *gin.Context) {
	var req tokenRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Operator == "" {
		req.Operator = defaultOperator
	}
	ttl := h.sec.JWTTTLH
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}

	token, err := mw.GenerateToken(req.Operator, h.sec.JWTSecret, ttl)
	if err != nil || h.sec.JWTSecret == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"operator":   req.Operator,
		"expires_in": int64(ttl / time.Second),
	})
}

// Revoke handles POST /api/auth/revoke for the caller's own token.
func (h *AuthHandler) Revoke(c *gin.Context) {
	claims := mw.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := mw.Revoke(ctx, h.cache, claims); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "revoke failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "revoked"})
}
