package auth

import (
	"errors"
	"time"

	"go_maintenance/internal/auth"
	"go_maintenance/internal/config"
	"go_maintenance/internal/httpx"
	"go_maintenance/internal/maintenance/store"
	"go_maintenance/internal/model"

	"github.com/gin-gonic/gin"
)

// LoginRequest represents login request body
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse represents login response data
type LoginResponse struct {
	Token    string   `json:"token"`
	ExpireAt string   `json:"expireAt"`
	User     UserInfo `json:"user"`
}

// UserInfo represents user information in response
type UserInfo struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// LoginHandler handles operator login
func LoginHandler(s *store.Store, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.FailErr(c, httpx.ErrParamInvalid("invalid request body"))
			return
		}
		if req.Username == "" || req.Password == "" {
			httpx.FailErr(c, httpx.ErrParamMissing("username and password are required"))
			return
		}

		user, err := s.FindUserByUsername(c.Request.Context(), req.Username)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// same answer as a wrong password
				httpx.FailErr(c, httpx.ErrInvalidToken("invalid credentials"))
				return
			}
			httpx.FailErr(c, httpx.ErrDatabaseError("database error", err))
			return
		}

		if user.Status == model.UserStatusInactive {
			httpx.FailErr(c, httpx.ErrForbidden("user is inactive"))
			return
		}

		if err := auth.ComparePassword(user.PasswordHash, req.Password); err != nil {
			httpx.FailErr(c, httpx.ErrInvalidToken("invalid credentials"))
			return
		}

		expireAt := time.Now().Add(time.Duration(cfg.JWT.ExpireMinutes) * time.Minute)
		token, err := auth.GenerateToken(user.ID, user.Username, user.Role, expireAt, cfg.JWT.Issuer)
		if err != nil {
			httpx.FailErr(c, httpx.ErrInternalError("failed to generate token", err))
			return
		}

		httpx.OK(c, LoginResponse{
			Token:    token,
			ExpireAt: expireAt.Format(time.RFC3339),
			User: UserInfo{
				ID:       user.ID,
				Username: user.Username,
				Role:     user.Role,
			},
		})
	}
}
