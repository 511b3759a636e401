package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go_maintenance/internal/auth"

	"github.com/gin-gonic/gin"
)

func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	auth.InitJWT("middleware-test-secret")

	r := gin.New()
	r.GET("/read", AuthRequired(), func(c *gin.Context) {
		c.String(http.StatusOK, "%d:%s", c.GetInt(KeyUID), c.GetString(KeyRole))
	})
	r.POST("/approve", AuthRequired(), RequireRole(auth.CanGovern), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func token(t *testing.T, role string, expireAt time.Time) string {
	t.Helper()
	tok, err := auth.GenerateToken(9, "oncall", role, expireAt, "go_maintenance")
	if err != nil {
		t.Fatalf("GenerateToken() failed: %v", err)
	}
	return tok
}

func TestAuthRequired(t *testing.T) {
	r := setupRouter()

	tests := []struct {
		name     string
		header   string
		wantCode int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"bad scheme", "Token abc", http.StatusUnauthorized},
		{"garbage token", "Bearer abc", http.StatusUnauthorized},
		{"expired token", "Bearer " + token(t, auth.RoleAdmin, time.Now().Add(-time.Minute)), http.StatusUnauthorized},
		{"valid token", "Bearer " + token(t, auth.RoleViewer, time.Now().Add(time.Hour)), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/read", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.wantCode {
				t.Errorf("Expected status %d, got %d (%s)", tt.wantCode, w.Code, w.Body.String())
			}
		})
	}
}

func TestAuthRequired_SetsClaims(t *testing.T) {
	r := setupRouter()
	req := httptest.NewRequest(http.MethodGet, "/read", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, auth.RoleOperator, time.Now().Add(time.Hour)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Body.String() != "9:operator" {
		t.Errorf("Expected claims in context, got %q", w.Body.String())
	}
}

func TestRequireRole(t *testing.T) {
	r := setupRouter()

	for role, want := range map[string]int{
		auth.RoleAdmin:    http.StatusNoContent,
		auth.RoleOperator: http.StatusForbidden,
		auth.RoleViewer:   http.StatusForbidden,
	} {
		t.Run(role, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/approve", nil)
			req.Header.Set("Authorization", "Bearer "+token(t, role, time.Now().Add(time.Hour)))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != want {
				t.Errorf("Expected status %d for %s, got %d", want, role, w.Code)
			}
		})
	}
}
