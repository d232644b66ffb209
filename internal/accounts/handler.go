package accounts

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roomledger/backend/internal/middleware"
	"github.com/roomledger/backend/internal/models"
	"github.com/roomledger/backend/pkg/response"
)

// RegisterRequest is the body for POST /register/.
type RegisterRequest struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// LoginRequest is the body for POST /.
type LoginRequest struct {
	Username string `json:"username" form:"username" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

// TokenResponse is the login response with the session token.
type TokenResponse struct {
	Token string            `json:"token"`
	User  models.UserPublic `json:"user"`
}

// Handler handles account HTTP endpoints.
type Handler struct {
	svc          *Service
	sessionTTL   time.Duration
	secureCookie bool
	logger       *zap.Logger
}

// NewHandler creates an accounts handler.
func NewHandler(svc *Service, sessionTTL time.Duration, secureCookie bool, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, sessionTTL: sessionTTL, secureCookie: secureCookie, logger: logger}
}

// RegisterForm handles GET /register/.
func (h *Handler) RegisterForm(c *gin.Context) {
	response.Form(c, "username", "email", "password")
}

// Register handles POST /register/.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	user, err := h.svc.Register(c.Request.Context(), RegisterInput(req))
	if err != nil {
		h.fail(c, err, "registration failed, please try again later")
		return
	}
	response.Created(c, gin.H{
		"user":    user.ToPublic(),
		"message": "Please confirm your email address to complete the registration",
	})
}

// Activate handles GET /activate/:uid/:token/.
func (h *Handler) Activate(c *gin.Context) {
	token, user, err := h.svc.Activate(c.Request.Context(), c.Param("uid"), c.Param("token"))
	if err != nil {
		h.fail(c, err, "activation failed")
		return
	}
	h.setSession(c, token)
	response.OK(c, TokenResponse{Token: token, User: user.ToPublic()})
}

// LoginForm handles GET /.
func (h *Handler) LoginForm(c *gin.Context) {
	response.Form(c, "username", "password")
}

// Login handles POST /.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	token, user, err := h.svc.Login(c.Request.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInactive):
		response.Unauthorized(c, err.Error())
		return
	case err != nil:
		h.fail(c, err, "login failed")
		return
	}
	h.setSession(c, token)
	response.OK(c, TokenResponse{Token: token, User: user.ToPublic()})
}

// Logout handles GET /logout/. Call after Auth.
func (h *Handler) Logout(c *gin.Context) {
	if sess, ok := middleware.CurrentSession(c); ok {
		if err := h.svc.Logout(c.Request.Context(), sess); err != nil {
			h.fail(c, err, "logout failed")
			return
		}
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", h.secureCookie, true)
	response.OK(c, gin.H{"message": "logged out"})
}

// Forgot handles GET /forgot/.
func (h *Handler) Forgot(c *gin.Context) {
	response.OK(c, gin.H{"message": "Password reset is not available yet. Please contact an administrator."})
}

func (h *Handler) setSession(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, token, int(h.sessionTTL.Seconds()), "/", "", h.secureCookie, true)
}

func (h *Handler) fail(c *gin.Context, err error, msg string) {
	if response.StatusFor(err) >= 500 {
		h.logger.Error(msg, zap.Error(err), zap.String("path", c.Request.URL.Path))
	}
	response.Error(c, err, msg)
}
