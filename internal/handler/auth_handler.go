package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-cbt/internal/response"
)

// AuthHandler reports who the caller is. Tokens are issued by the school
// portal; this service only verifies them.
type AuthHandler struct{}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// WhoAmI godoc
// GET /api/v1/student/me, GET /api/v1/staff/me
func (h *AuthHandler) WhoAmI(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}

	perms := claims.Permissions
	if perms == nil {
		perms = []string{}
	}
	var expiresAt any
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	response.Success(c, http.StatusOK, gin.H{
		"user_id":     claims.UserID,
		"token_type":  claims.TokenType,
		"permissions": perms,
		"expires_at":  expiresAt,
	})
}
