package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/roomledger/backend/internal/models"
	"github.com/roomledger/backend/internal/policy"
	"github.com/roomledger/backend/pkg/idx"
	"github.com/roomledger/backend/pkg/response"
)

const (
	// ContextUser is the key for the authenticated *models.User in gin context.
	ContextUser = "user"
	// ContextSession is the key for the models.Session in gin context.
	ContextSession = "session"
	// SessionCookie is the cookie carrying the session token for browser clients.
	SessionCookie = "session"
)

// SessionVerifier validates a session token, including revocation.
type SessionVerifier interface {
	Verify(ctx context.Context, token string) (models.Session, error)
}

// UserLoader loads the user a session belongs to.
type UserLoader interface {
	GetUserByID(ctx context.Context, id idx.ID) (*models.User, error)
}

// Auth returns a middleware that requires a valid session from the
// Authorization bearer header or the session cookie, and loads its user.
func Auth(sessions SessionVerifier, users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			response.Unauthorized(c, "authentication required")
			c.Abort()
			return
		}
		sess, err := sessions.Verify(c.Request.Context(), token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired session")
			c.Abort()
			return
		}
		user, err := users.GetUserByID(c.Request.Context(), sess.UserID)
		if err != nil || !user.IsActive {
			response.Unauthorized(c, "invalid or expired session")
			c.Abort()
			return
		}
		c.Set(ContextSession, sess)
		c.Set(ContextUser, user)
		c.Next()
	}
}

// RequireStaff allows only staff users. Call after Auth.
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		if d := policy.IsStaff(CurrentUser(c)); !d.Allowed {
			response.Forbidden(c, d.Reason)
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user, or nil outside Auth.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(ContextUser)
	if !ok {
		return nil
	}
	u, _ := v.(*models.User)
	return u
}

// CurrentSession returns the session set by Auth.
func CurrentSession(c *gin.Context) (models.Session, bool) {
	v, ok := c.Get(ContextSession)
	if !ok {
		return models.Session{}, false
	}
	s, ok := v.(models.Session)
	return s, ok
}

func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	token, _ := c.Cookie(SessionCookie)
	return token
}
