package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roomledger/backend/internal/apperr"
	"github.com/roomledger/backend/internal/models"
	"github.com/roomledger/backend/pkg/idx"
)

type fakeSessions map[string]models.Session

func (f fakeSessions) Verify(_ context.Context, token string) (models.Session, error) {
	s, ok := f[token]
	if !ok {
		return models.Session{}, errors.New("invalid token")
	}
	return s, nil
}

type fakeUsers map[idx.ID]*models.User

func (f fakeUsers) GetUserByID(_ context.Context, id idx.ID) (*models.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	return u, nil
}

func TestAuth(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	active := &models.User{ID: idx.New(), Username: "alice", IsActive: true}
	inactive := &models.User{ID: idx.New(), Username: "bob"}
	staff := &models.User{ID: idx.New(), Username: "root", IsActive: true, IsStaff: true}
	sessions := fakeSessions{
		"good":     {UserID: active.ID, TokenID: "j1"},
		"inactive": {UserID: inactive.ID, TokenID: "j2"},
		"staff":    {UserID: staff.ID, TokenID: "j3"},
	}
	users := fakeUsers{active.ID: active, inactive.ID: inactive, staff.ID: staff}

	r := gin.New()
	authed := r.Group("/", Auth(sessions, users))
	authed.GET("/me", func(c *gin.Context) {
		sess, ok := CurrentSession(c)
		require.True(t, ok)
		c.String(http.StatusOK, CurrentUser(c).Username+":"+sess.TokenID)
	})
	authed.GET("/admin", RequireStaff(), func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(path string, mutate func(*http.Request)) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if mutate != nil {
			mutate(req)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}
	bearer := func(tok string) func(*http.Request) {
		return func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+tok) }
	}

	assert.Equal(t, http.StatusUnauthorized, do("/me", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do("/me", bearer("forged")).Code)
	assert.Equal(t, http.StatusUnauthorized, do("/me", bearer("inactive")).Code)
	assert.Equal(t, http.StatusUnauthorized, do("/me", func(req *http.Request) {
		req.Header.Set("Authorization", "Basic good")
	}).Code)

	w := do("/me", bearer("good"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice:j1", w.Body.String())

	w = do("/me", func(req *http.Request) { req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "good"}) })
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusForbidden, do("/admin", bearer("good")).Code)
	assert.Equal(t, http.StatusOK, do("/admin", bearer("staff")).Code)
}

func TestRateLimiter(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimitConfig{RequestsPerWindow: 2, Window: time.Minute}, nil)
	rl.now = func() time.Time { return now }

	r := gin.New()
	r.POST("/login", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	post := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, post("10.0.0.1"))
	assert.Equal(t, http.StatusOK, post("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, post("10.0.0.1"))
	assert.Equal(t, http.StatusOK, post("10.0.0.2"), "limits are per client")

	now = now.Add(31 * time.Second)
	assert.Equal(t, http.StatusOK, post("10.0.0.1"), "one token refills every half minute")
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(origins string) *gin.Engine {
		r := gin.New()
		r.Use(CORS(origins))
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}
	do := func(r *gin.Engine, method, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	t.Run("listed origin is echoed with credentials", func(t *testing.T) {
		w := do(newRouter("http://a.test, http://b.test"), http.MethodGet, "http://b.test")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "http://b.test", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("unlisted origin gets no headers and preflight is refused", func(t *testing.T) {
		r := newRouter("http://a.test")
		w := do(r, http.MethodGet, "http://evil.test")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

		w = do(r, http.MethodOptions, "http://evil.test")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("wildcard never allows credentials", func(t *testing.T) {
		w := do(newRouter("*"), http.MethodOptions, "http://any.test")
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	})
}

func TestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	user := &models.User{ID: idx.New(), Username: "alice", IsActive: true}

	r := gin.New()
	r.Use(Logger(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) {
		c.Set(ContextUser, user)
		c.Status(http.StatusOK)
	})
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	entries := logs.All()
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, zapcore.InfoLevel, first.Level)
	assert.Equal(t, "abc-123", first.ContextMap()["request_id"])
	assert.Equal(t, user.ID.String(), first.ContextMap()["user_id"])

	second := entries[1]
	assert.Equal(t, zapcore.WarnLevel, second.Level)
	assert.Equal(t, int64(http.StatusNotFound), second.ContextMap()["status"])
	_, hasUser := second.ContextMap()["user_id"]
	assert.False(t, hasUser)
}
