package handlers

import (
	"net/http"
	"strings"

	"container_telemetry/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	ctxIdentity = "identity"
	ctxUserID   = "userId"
)

// identityMiddleware verifies the bearer token and stores who is calling.
func (h *Handler) identityMiddleware(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
		return
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header format"})
		return
	}

	id, err := h.services.ParseToken(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	c.Set(ctxIdentity, id)
	c.Set(ctxUserID, id.UserID)
	c.Next()
}

// requireOperator guards routes that change the session or feed frames.
// It must run after identityMiddleware.
func (h *Handler) requireOperator(c *gin.Context) {
	id, ok := identityFrom(c)
	if !ok || !id.Role.CanOperate() {
		if h.log != nil {
			h.log.Infow("operator_role_required", "user_id", id.UserID, "role", id.Role, "path", c.FullPath())
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "operator role required"})
		return
	}
	c.Next()
}

func identityFrom(c *gin.Context) (models.Identity, bool) {
	v, ok := c.Get(ctxIdentity)
	if !ok {
		return models.Identity{}, false
	}
	id, ok := v.(models.Identity)
	return id, ok
}
