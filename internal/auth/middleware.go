package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"repairscribe/internal/apperr"
	"repairscribe/internal/models"
)

const identityContextKey = "auth_identity"

var ErrMissingToken = apperr.New(apperr.KindAuth, "Access token required")

// Middleware validates bearer tokens and stores the verified identity in the
// context.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.extractToken(c)
		if !ok {
			abortAuth(c, ErrMissingToken)
			return
		}
		identity, err := s.Verify(token)
		if err != nil {
			abortAuth(c, err)
			return
		}
		c.Set(identityContextKey, identity)
		c.Next()
	}
}

func abortAuth(c *gin.Context, err error) {
	msg := ErrInvalidToken.Message
	if appErr, ok := apperr.As(err); ok {
		msg = appErr.Message
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}

// IdentityFromContext retrieves the authenticated identity from the gin
// context.
func IdentityFromContext(c *gin.Context) (*models.Identity, bool) {
	val, ok := c.Get(identityContextKey)
	if !ok {
		return nil, false
	}
	identity, ok := val.(*models.Identity)
	return identity, ok && identity != nil
}

func (s *Service) extractToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader(s.headerName)
	if len(authHeader) < 7 || !strings.EqualFold(authHeader[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(authHeader[7:])
	return token, token != ""
}
