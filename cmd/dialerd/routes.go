package main

import (
	"net/http"

	"dialer-platform/internal/ami"
	"dialer-platform/internal/httpapi"
	"dialer-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc, amiClient *ami.Client) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "ami_connected": amiClient.Connected()})
	})

	r.POST("/v1/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	v1.Use(rbac.RequireTenant())
	{
		// CAMPAIGN routes
		campaigns := v1.Group("/campaigns")
		campaigns.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleOperator, rbac.RoleAnalyst, rbac.RoleSuperAdmin))
		{
			campaigns.GET("", h.ListCampaigns)
			campaigns.GET("/:campaign_id", h.GetCampaign)
			campaigns.GET("/:campaign_id/summary", h.CampaignSummary)
		}

		// Lifecycle commands are operator-level.
		ops := v1.Group("/campaigns")
		ops.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleOperator, rbac.RoleSuperAdmin))
		{
			ops.POST("", h.CreateCampaign)
			ops.POST("/:campaign_id/pause", h.PauseCampaign)
			ops.POST("/:campaign_id/resume", h.ResumeCampaign)
			ops.POST("/:campaign_id/cancel", h.CancelCampaign)
		}

		// BILLING routes
		accounts := v1.Group("/accounts")
		accounts.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleOperator, rbac.RoleAnalyst, rbac.RoleSuperAdmin))
		{
			accounts.GET("/:account_id", h.GetAccount)
		}

		// Manual credits are owner-level.
		admin := v1.Group("/accounts")
		admin.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleSuperAdmin))
		{
			admin.POST("/:account_id/credit", h.CreditAccount)
		}
	}
}
