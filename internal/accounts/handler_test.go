package accounts

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomledger/backend/internal/middleware"
)

func TestHandlerFlow(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	svc, store, box := newService(t, Options{})
	h := NewHandler(svc, 24*time.Hour, false, nil)

	r := gin.New()
	r.POST("/register/", h.Register)
	r.GET("/activate/:uid/:token/", h.Activate)
	r.POST("/", h.Login)
	r.GET("/logout/", middleware.Auth(svc.sessions, store), h.Logout)

	form := func(path string, values url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}
	get := func(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		for _, c := range cookies {
			req.AddCookie(c)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}
	sessionCookie := func(w *httptest.ResponseRecorder) *http.Cookie {
		for _, c := range w.Result().Cookies() {
			if c.Name == middleware.SessionCookie {
				return c
			}
		}
		return nil
	}

	creds := url.Values{"username": {"alice"}, "email": {"alice@example.com"}, "password": {"correct horse"}}
	assert.Equal(t, http.StatusCreated, form("/register/", creds).Code)
	assert.Equal(t, http.StatusConflict, form("/register/", creds).Code)
	assert.Equal(t, http.StatusBadRequest, form("/register/", url.Values{"username": {"bob"}}).Code)

	login := url.Values{"username": {"alice"}, "password": {"correct horse"}}
	assert.Equal(t, http.StatusUnauthorized, form("/", login).Code, "inactive account")

	uid, token := box.link(t)
	assert.Equal(t, http.StatusBadRequest, get("/activate/"+uid+"/nope/").Code)
	w := get("/activate/" + uid + "/" + token + "/")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, sessionCookie(w))
	assert.True(t, sessionCookie(w).HttpOnly)

	w = form("/", login)
	require.Equal(t, http.StatusOK, w.Code)
	cookie := sessionCookie(w)
	require.NotNil(t, cookie)

	assert.Equal(t, http.StatusOK, get("/logout/", cookie).Code)
	assert.Equal(t, http.StatusUnauthorized, get("/logout/", cookie).Code, "session is revoked")
}
