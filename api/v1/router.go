package v1

import (
	"strings"

	"go_maintenance/api/v1/auth"
	"go_maintenance/api/v1/middleware"
	"go_maintenance/api/v1/windows"
	iauth "go_maintenance/internal/auth"
	"go_maintenance/internal/config"
	"go_maintenance/internal/httpx"
	"go_maintenance/internal/maintenance/lifecycle"

	"github.com/gin-gonic/gin"
)

// SetupRouter mounts the admin API under <admin prefix>api/v1
func SetupRouter(r *gin.Engine, engine *lifecycle.Engine, cfg *config.Config) {
	v1 := r.Group(strings.TrimRight(cfg.Maintenance.AdminURL, "/") + "/api/v1")
	{
		// Public routes (no authentication required)
		v1.GET("/ping", pingHandler)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", auth.LoginHandler(engine.Store(), cfg))
		}

		// Protected routes (authentication required)
		protected := v1.Group("")
		protected.Use(middleware.AuthRequired())
		{
			protected.GET("/me", meHandler)

			h := windows.NewHandler(engine)
			protected.GET("/audit-logs", h.AuditLogs)

			windowsGroup := protected.Group("/windows")
			{
				windowsGroup.GET("", h.List)
				windowsGroup.GET("/:id", h.Get)

				propose := windowsGroup.Group("")
				propose.Use(middleware.RequireRole(iauth.CanPropose))
				{
					propose.POST("/create", h.Create)
					propose.POST("/update", h.Update)
					propose.POST("/delete", h.Delete)
					propose.POST("/exceptions/add", h.AddException)
					propose.POST("/exceptions/delete", h.DeleteException)
				}

				govern := windowsGroup.Group("")
				govern.Use(middleware.RequireRole(iauth.CanGovern))
				{
					govern.POST("/approve", h.Approve)
					govern.POST("/reject", h.Reject)
					govern.POST("/enable", h.Enable)
					govern.POST("/disable", h.Disable)
					govern.POST("/disable-all", h.DisableAll)
					govern.POST("/abort", h.Abort)
					govern.POST("/complete", h.Complete)
				}
			}
		}
	}
}

// pingHandler handles the ping request using unified response
func pingHandler(c *gin.Context) {
	httpx.OK(c, gin.H{
		"pong": true,
	})
}

// meHandler returns current user information
func meHandler(c *gin.Context) {
	httpx.OK(c, gin.H{
		"uid":      c.GetInt(middleware.KeyUID),
		"username": c.GetString(middleware.KeyUsername),
		"role":     c.GetString(middleware.KeyRole),
	})
}
