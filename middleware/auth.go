package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/rotationbot/cache"
	"github.com/kasuganosora/rotationbot/config"
	"golang.org/x/crypto/bcrypt"
)

const (
	OperatorKey    = "operator"
	AdminKeyHeader = "X-Admin-Key"

	revokedPrefix = "revoked:"
)

// TokenFromRequest returns the bearer token, falling back to the ?token=
// query parameter used by the ws and sse endpoints.
func TokenFromRequest(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}

// Authenticate parses a token and rejects it when its id has been revoked.
// A nil cache skips the revocation check.
func Authenticate(ctx context.Context, tokenStr string, sec config.SecurityConfig, c cache.Cache) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrInvalidToken
	}
	claims, err := ParseToken(tokenStr, sec.JWTSecret)
	if err != nil {
		return nil, err
	}
	if c == nil || claims.ID == "" {
		return claims, nil
	}
	cacheCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	revoked, err := c.Exists(cacheCtx, revokedPrefix+claims.ID)
	if err != nil || revoked {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Revoke marks a token id as unusable until the token would have expired anyway.
func Revoke(ctx context.Context, c cache.Cache, claims *Claims) error {
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		if left := time.Until(claims.ExpiresAt.Time); left > 0 {
			ttl = left
		}
	}
	return c.Set(ctx, revokedPrefix+claims.ID, claims.Operator, ttl)
}

// Auth rejects requests without a valid operator token.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenStr := TokenFromRequest(ctx)
		if tokenStr == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := Authenticate(ctx.Request.Context(), tokenStr, sec, c)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		ctx.Set(OperatorKey, claims)
		ctx.Next()
	}
}

// GetClaims returns the claims Auth stored, or nil.
func GetClaims(c *gin.Context) *Claims {
	if v, exists := c.Get(OperatorKey); exists {
		if claims, ok := v.(*Claims); ok {
			return claims
		}
	}
	return nil
}

// GetOperator returns the authenticated operator name.
func GetOperator(c *gin.Context) string {
	if claims := GetClaims(c); claims != nil {
		return claims.Operator
	}
	return ""
}

// AdminAuth checks the X-Admin-Key header against a bcrypt hash. keyHash
// wins when set, otherwise a plaintext key is hashed once here. With neither
// configured the guarded routes answer 503.
func AdminAuth(key, keyHash string) gin.HandlerFunc {
	if keyHash == "" && key != "" {
		if h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost); err == nil {
			keyHash = string(h)
		}
	}
	return func(c *gin.Context) {
		if keyHash == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key_hash in config"})
			return
		}
		presented := c.GetHeader(AdminKeyHeader)
		if presented == "" || bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(presented)) != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// HashAdminKey returns the bcrypt hash to store in server.admin_key_hash.
func HashAdminKey(key string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
