package handlers

import (
	"errors"
	"net/http"

	"container_telemetry/internal/repository"
	"container_telemetry/internal/service"

	"github.com/gin-gonic/gin"
)

// credentials is the body of sign-up and sign-in; the auth service applies
// the account rules.
type credentials struct {
	Username string `json:"username" binding:"required,max=64"`
	Password string `json:"password" binding:"required,max=128"`
}

func (h *Handler) bindCredentials(c *gin.Context) (credentials, bool) {
	var in credentials
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return credentials{}, false
	}
	return in, true
}

// @Summary      Sign up
// @Tags         auth
// @Accept       json
// @Produce      json
// @Success      201  {object}  models.Identity
// @Failure      400  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /auth/sign-up [post]
func (h *Handler) signUp(c *gin.Context) {
	input, ok := h.bindCredentials(c)
	if !ok {
		return
	}

	id, err := h.services.SignUp(c.Request.Context(), input.Username, input.Password)
	switch {
	case err == nil:
		if h.log != nil {
			h.log.Infow("auth_signed_up", "user_id", id.UserID, "role", id.Role)
		}
		c.JSON(http.StatusCreated, id)
	case errors.Is(err, service.ErrInvalidUsername), errors.Is(err, service.ErrWeakPassword), errors.Is(err, service.ErrPasswordTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
	default:
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to create account", "auth_sign_up_failed", err)
	}
}

// @Summary      Sign in
// @Tags         auth
// @Accept       json
// @Produce      json
// @Success      200  {object}  service.Token
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Router       /auth/sign-in [post]
func (h *Handler) signIn(c *gin.Context) {
	input, ok := h.bindCredentials(c)
	if !ok {
		return
	}

	token, err := h.services.GenerateToken(c.Request.Context(), input.Username, input.Password)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, token)
	case errors.Is(err, service.ErrInvalidCredentials):
		if h.log != nil {
			h.log.Infow("auth_sign_in_rejected", "username", input.Username)
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	default:
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to sign in", "auth_sign_in_failed", err)
	}
}

// @Summary      Current identity
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  models.Identity
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/me [get]
func (h *Handler) whoAmI(c *gin.Context) {
	id, _ := identityFrom(c)
	c.JSON(http.StatusOK, id)
}
