package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/meetroom/internal/domain"
)

const identityKey = "identity"

// TokenParser turns a bearer token into an identity.
type TokenParser interface {
	Parse(token string) (domain.Identity, error)
}

func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// OptionalAuth attaches the identity when a valid bearer token is present and
// lets anonymous requests through. Room endpoints accept guests.
func OptionalAuth(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := BearerToken(c.GetHeader("Authorization")); token != "" {
			if identity, err := parser.Parse(token); err == nil {
				c.Set(identityKey, identity)
			}
		}
		c.Next()
	}
}

func RequireAuth(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "token is missing"})
			return
		}
		identity, err := parser.Parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid token"})
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

func IdentityFrom(c *gin.Context) (domain.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return domain.Identity{}, false
	}
	identity, ok := v.(domain.Identity)
	return identity, ok
}
