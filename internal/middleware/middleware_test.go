package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sjperalta/pharmavault-api/internal/models"
	"github.com/sjperalta/pharmavault-api/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "middleware-secret"

func signToken(t *testing.T, claims Claims, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func validClaims(role string) Claims {
	return Claims{
		UserID: 7,
		Email:  "qm@example.com",
		Role:   role,
		Name:   "Quinn Quality",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/p", handlers...)
	return r
}

func TestAuth(t *testing.T) {
	var seen models.Principal
	r := newRouter(Auth(testSecret), func(c *gin.Context) {
		seen = GetPrincipal(c)
		c.Status(http.StatusOK)
	})

	expired := validClaims(models.RoleQualityManager)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	badRole := validClaims("Auditor")

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, validClaims(models.RoleQualityManager), "other"), http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, expired, testSecret), http.StatusUnauthorized},
		{"unknown role", "Bearer " + signToken(t, badRole, testSecret), http.StatusUnauthorized},
		{"valid", "Bearer " + signToken(t, validClaims(models.RoleQualityManager), testSecret), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/p", nil)
			req.Header.Set("User-Agent", "go-test")
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}

	assert.Equal(t, uint(7), seen.UserID)
	assert.Equal(t, models.RoleQualityManager, seen.Role)
	assert.Equal(t, "Quinn Quality", seen.Name)
	assert.Equal(t, "go-test", seen.UserAgent)
}

func TestRequireRole(t *testing.T) {
	r := newRouter(Auth(testSecret), RequireRole(models.RoleAdmin, models.RoleQualityManager), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for role, want := range map[string]int{
		models.RoleAdmin:          http.StatusOK,
		models.RoleQualityManager: http.StatusOK,
		models.RoleManufacturing:  http.StatusForbidden,
		models.RoleUser:           http.StatusForbidden,
	} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/p", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, validClaims(role), testSecret))
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, role)
	}
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS([]string{"https://app.example.com/"}))
	r.GET("/p", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/p", nil)
	req.Header.Set("Origin", "https://app.example.com")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestLogger_PropagatesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger())
	r.GET("/documents", func(c *gin.Context) {
		c.String(http.StatusOK, logger.RequestID(c.Request.Context()))
	})

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("X-Request-ID", "req-7")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-7", w.Body.String())
	assert.Equal(t, "req-7", w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents", nil))
	assert.NotEmpty(t, w.Body.String())
	assert.Equal(t, w.Header().Get("X-Request-ID"), w.Body.String())
}
