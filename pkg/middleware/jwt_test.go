package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func setupJWTRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(JWTMiddleware(&JWTConfig{
		Secret:    testSecret,
		SkipPaths: []string{"/health"},
	}))
	router.GET("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/companies/:company_id/protected", RequireCompany(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":    c.GetString(ContextKeyUserID),
			"company_id": c.GetString(ContextKeyCompanyID),
		})
	})
	return router
}

func issueToken(t *testing.T, secret, userID, companyID string, ttlSeconds int64) string {
	t.Helper()
	token, err := GenerateToken(secret, "teemplot", userID, "owner@example.com", "admin", companyID, ttlSeconds)
	require.NoError(t, err)
	return token
}

func TestJWTMiddleware(t *testing.T) {
	router := setupJWTRouter(t)

	request := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/companies/company-1/protected", nil)
		if token != "" {
			req.Header.Set("Authorization", token)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("valid token passes and populates context", func(t *testing.T) {
		token := issueToken(t, testSecret, "user-1", "company-1", 60)
		w := request("Bearer " + token)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "user-1")
		assert.Contains(t, w.Body.String(), "company-1")
	})

	t.Run("missing header is rejected", func(t *testing.T) {
		w := request("")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "MISSING_TOKEN")
	})

	t.Run("non-bearer header is rejected", func(t *testing.T) {
		w := request("Basic dXNlcjpwYXNz")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "INVALID_TOKEN")
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		token := issueToken(t, testSecret, "user-1", "company-1", -60)
		w := request("Bearer " + token)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "TOKEN_EXPIRED")
	})

	t.Run("token signed with wrong secret is rejected", func(t *testing.T) {
		token := issueToken(t, "other-secret", "user-1", "company-1", 60)
		w := request("Bearer " + token)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("skip paths bypass validation", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRequireCompany(t *testing.T) {
	router := setupJWTRouter(t)

	t.Run("cross-company token is forbidden", func(t *testing.T) {
		token := issueToken(t, testSecret, "user-1", "company-2", 60)
		req := httptest.NewRequest(http.MethodGet, "/companies/company-1/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("matching company is allowed", func(t *testing.T) {
		token := issueToken(t, testSecret, "user-1", "company-1", 60)
		req := httptest.NewRequest(http.MethodGet, "/companies/company-1/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}
