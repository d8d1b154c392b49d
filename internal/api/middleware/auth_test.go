package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realty/site/internal/api/middleware"
	"realty/site/internal/auth"
)

const secret = "test-secret"

func adminEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", middleware.AuthMiddleware(secret), middleware.AdminMiddleware(), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(middleware.ContextKeyAdminEmail))
	})
	return r
}

func get(r http.Handler, path string, headers map[string]string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("GET", path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware_AdminToken(t *testing.T) {
	token, err := auth.GenerateJWT("admin@site.com", true, secret, time.Hour)
	require.NoError(t, err)

	w := get(adminEngine(), "/admin", map[string]string{"Authorization": "Bearer " + token})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin@site.com", w.Body.String())
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	r := adminEngine()
	nonAdmin, err := auth.GenerateJWT("someone@site.com", false, secret, time.Hour)
	require.NoError(t, err)
	otherSecret, err := auth.GenerateJWT("admin@site.com", true, "other", time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, get(r, "/admin", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/admin", map[string]string{"Authorization": "Token abc"}).Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/admin", map[string]string{"Authorization": "Bearer " + otherSecret}).Code)
	assert.Equal(t, http.StatusForbidden, get(r, "/admin", map[string]string{"Authorization": "Bearer " + nonAdmin}).Code)
}

func TestAuthMiddleware_QueryTokenOnlyForUpgrade(t *testing.T) {
	r := adminEngine()
	token, err := auth.GenerateJWT("admin@site.com", true, secret, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, get(r, "/admin?token="+token, nil).Code)
	assert.Equal(t, http.StatusOK, get(r, "/admin?token="+token, map[string]string{"Upgrade": "websocket"}).Code)
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.CORSMiddleware([]string{"https://site.com"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.OPTIONS("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := get(r, "/x", map[string]string{"Origin": "https://site.com"})
	assert.Equal(t, "https://site.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = get(r, "/x", map[string]string{"Origin": "https://evil.com"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req, _ := http.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://evil.com")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req, _ = http.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://site.com")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
