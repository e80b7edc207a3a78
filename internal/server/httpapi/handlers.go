// Package httpapi is the HTTP surface of chatgate: registration, login, a
// bearer-protected profile endpoint and a health probe, served by gin.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/chatgate/internal/common"
	"github.com/dmitrijs2005/chatgate/internal/logging"
	"github.com/dmitrijs2005/chatgate/internal/server/auth"
	"github.com/dmitrijs2005/chatgate/internal/server/users"
)

// UserService is satisfied by *users.Service.
type UserService interface {
	Register(ctx context.Context, in users.RegisterInput) (*users.User, error)
	Login(ctx context.Context, in users.LoginInput) (*users.LoginResult, error)
	Health(ctx context.Context) (users.Health, error)
}

// TokenVerifier is satisfied by *auth.TokenService.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

type Handler struct {
	users  UserService
	logger logging.Logger
}

func NewHandler(us UserService, logger logging.Logger) *Handler {
	return &Handler{users: us, logger: logger}
}

func (h *Handler) Register(c *gin.Context) {
	var in users.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidBody})
		return
	}

	u, err := h.users.Register(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"user":    u.Public(),
	})
}

func (h *Handler) Login(c *gin.Context) {
	var in users.LoginInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidBody})
		return
	}

	res, err := h.users.Login(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"token":   res.Token,
		"user":    res.User.Public(),
	})
}

// Profile echoes the verified token claims. It must sit behind BearerAuth.
func (h *Handler) Profile(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		h.writeError(c, common.ErrorUnauthorized)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Profile data accessed successfully",
		"user":    claims,
	})
}

func (h *Handler) Healthz(c *gin.Context) {
	st, err := h.users.Health(c.Request.Context())
	if err != nil {
		h.logger.Warn(c.Request.Context(), "health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"users":        st.Users,
		"skippedLines": st.SkippedRecords,
	})
}
