package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const claimsKey = "claims"

// Required enforces bearer access tokens signed with HS256.
func Required(signer Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := bearerClaims(c, signer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

var errNoBearer = errors.New("missing bearer token")

func bearerClaims(c *gin.Context, signer Signer) (Claims, error) {
	authz := c.GetHeader("Authorization")
	if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return Claims{}, errNoBearer
	}
	return signer.Parse(strings.TrimSpace(authz[len("bearer "):]), TypeAccess)
}

// SubjectOrIP keys requests carrying a valid access token by user, and
// everything else by fallback.
func SubjectOrIP(signer Signer, fallback func(*gin.Context) string) func(*gin.Context) string {
	return func(c *gin.Context) string {
		if claims, err := bearerClaims(c, signer); err == nil && claims.Subject != "" {
			return "user:" + claims.Subject
		}
		return fallback(c)
	}
}

// RequireClassManager rejects callers whose role cannot manage classes.
// It must run after Required.
func RequireClassManager() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok || !claims.Actor().Role.CanManageClasses() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Teacher access required"})
			return
		}
		c.Next()
	}
}

// ClaimsFrom returns the claims stored by Required.
func ClaimsFrom(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}
