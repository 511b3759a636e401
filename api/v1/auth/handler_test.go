package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go_maintenance/internal/auth"
	"go_maintenance/internal/config"
	"go_maintenance/internal/httpx"
	"go_maintenance/internal/maintenance/store"
	"go_maintenance/internal/model"
	"go_maintenance/internal/testutil"

	"github.com/gin-gonic/gin"
)

func setup(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	auth.InitJWT("login-test-secret")

	conn := testutil.NewDB(t)
	hash, err := auth.HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("HashPassword() failed: %v", err)
	}
	users := []model.User{
		{Username: "oncall", PasswordHash: hash, Role: auth.RoleAdmin, Status: model.UserStatusActive},
		{Username: "former", PasswordHash: hash, Role: auth.RoleOperator, Status: model.UserStatusInactive},
	}
	if err := conn.Create(&users).Error; err != nil {
		t.Fatalf("seed users: %v", err)
	}

	cfg := &config.Config{JWT: config.JWTConfig{ExpireMinutes: 30, Issuer: "go_maintenance"}}
	r := gin.New()
	r.POST("/login", LoginHandler(store.New(conn), cfg))
	return r
}

func login(r *gin.Engine, username, password string) (*httptest.ResponseRecorder, httpx.Response) {
	body, _ := json.Marshal(LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp httpx.Response
	json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestLogin(t *testing.T) {
	r := setup(t)

	tests := []struct {
		name     string
		username string
		password string
		wantHTTP int
		wantCode int
	}{
		{"success", "oncall", "correct-horse", http.StatusOK, httpx.CodeSuccess},
		{"wrong password", "oncall", "battery-staple", http.StatusUnauthorized, httpx.CodeInvalidToken},
		{"unknown user", "ghost", "correct-horse", http.StatusUnauthorized, httpx.CodeInvalidToken},
		{"inactive user", "former", "correct-horse", http.StatusForbidden, httpx.CodeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := login(r, tt.username, tt.password)
			if w.Code != tt.wantHTTP {
				t.Errorf("Expected status %d, got %d", tt.wantHTTP, w.Code)
			}
			if resp.Code != tt.wantCode {
				t.Errorf("Expected code %d, got %d", tt.wantCode, resp.Code)
			}
		})
	}
}

func TestLogin_TokenIsUsable(t *testing.T) {
	r := setup(t)
	_, resp := login(r, "oncall", "correct-horse")

	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected data object, got %T", resp.Data)
	}
	claims, err := auth.ParseToken(data["token"].(string))
	if err != nil {
		t.Fatalf("ParseToken() failed: %v", err)
	}
	if claims.Username != "oncall" || claims.Role != auth.RoleAdmin {
		t.Errorf("Unexpected claims %+v", claims)
	}
}

func TestLogin_BadBody(t *testing.T) {
	r := setup(t)
	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"missing password", `{"username":"admin"}`, httpx.CodeParamMissing},
		{"empty username", `{"username":"","password":"whatever1"}`, httpx.CodeParamMissing},
		{"not json", `{"username":`, httpx.CodeParamInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader([]byte(tt.body)))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d", w.Code)
			}
			var resp httpx.Response
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid body: %v", err)
			}
			if resp.Code != tt.wantCode {
				t.Errorf("Expected code %d, got %d", tt.wantCode, resp.Code)
			}
		})
	}
}
