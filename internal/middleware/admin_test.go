package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testAdminKey = "test-admin-key"

func hashKey(t *testing.T, key string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func newAdminRouter(am *AdminMiddleware) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(am.RequireAdminAuth())
	router.POST("/admin/test", func(c *gin.Context) {
		subject, _ := c.Get("admin_subject")
		c.JSON(http.StatusOK, gin.H{"message": "admin access granted", "subject": subject})
	})
	return router
}

func TestAdminMiddleware_RequireAdminAuth(t *testing.T) {
	auth := NewAuthMiddleware("jwt-secret", time.Hour)
	am := NewAdminMiddleware(hashKey(t, testAdminKey), auth)
	router := newAdminRouter(am)

	adminToken, _, err := auth.GenerateToken("ops", RoleAdmin)
	require.NoError(t, err)
	viewerToken, _, err := auth.GenerateToken("ops", "viewer")
	require.NoError(t, err)
	foreignToken, _, err := NewAuthMiddleware("other-secret", time.Hour).GenerateToken("ops", RoleAdmin)
	require.NoError(t, err)

	tests := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{"valid API key", map[string]string{"X-API-Key": testAdminKey}, http.StatusOK},
		{"wrong API key", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"admin token", map[string]string{"Authorization": "Bearer " + adminToken}, http.StatusOK},
		{"lowercase scheme", map[string]string{"Authorization": "bearer " + adminToken}, http.StatusOK},
		{"token without admin role", map[string]string{"Authorization": "Bearer " + viewerToken}, http.StatusUnauthorized},
		{"token signed elsewhere", map[string]string{"Authorization": "Bearer " + foreignToken}, http.StatusUnauthorized},
		{"raw API key as bearer", map[string]string{"Authorization": "Bearer " + testAdminKey}, http.StatusUnauthorized},
		{"malformed header", map[string]string{"Authorization": "Token abc"}, http.StatusUnauthorized},
		{"no credentials", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin/test", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestAdminMiddleware_ExpiredToken(t *testing.T) {
	auth := NewAuthMiddleware("jwt-secret", time.Minute)
	auth.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, _, err := auth.GenerateToken("ops", RoleAdmin)
	require.NoError(t, err)
	auth.now = time.Now

	router := newAdminRouter(NewAdminMiddleware("", auth))
	req := httptest.NewRequest(http.MethodPost, "/admin/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Token expired")
}

func TestAdminMiddleware_NothingConfigured(t *testing.T) {
	am := NewAdminMiddleware("", nil)
	assert.False(t, am.ValidateAdminKey("anything"))

	router := newAdminRouter(am)
	req := httptest.NewRequest(http.MethodPost, "/admin/test", nil)
	req.Header.Set("X-API-Key", "")
	req.Header.Set("Authorization", "Bearer x")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_TokenRoundTrip(t *testing.T) {
	auth := NewAuthMiddleware("jwt-secret", 0)
	token, expiresAt, err := auth.GenerateToken("ops", RoleAdmin)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(DefaultTokenExpiry), expiresAt, time.Minute)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, RoleAdmin, claims.Role)

	_, err = auth.ValidateToken(token + "x")
	assert.Error(t, err)
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	auth := NewAuthMiddleware("", time.Hour)
	assert.False(t, auth.Enabled())

	_, _, err := auth.GenerateToken("ops", RoleAdmin)
	assert.ErrorIs(t, err, ErrAuthDisabled)
	_, err = auth.ValidateToken("abc")
	assert.ErrorIs(t, err, ErrAuthDisabled)
}
