package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"dialer-platform/internal/auth"
	"dialer-platform/internal/campaign"
	"dialer-platform/internal/reporting"

	"github.com/gin-gonic/gin"
)

func summaryRouter(h Handlers, tenantID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if tenantID != "" {
			ctx := auth.WithIdentity(c.Request.Context(), "u1", tenantID, "operator")
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	})
	r.GET("/campaigns/:campaign_id/summary", h.CampaignSummary)
	return r
}

func TestCampaignSummaryHandler(t *testing.T) {
	repo := reporting.NewMemoryRepo()
	repo.Campaigns["c1"] = campaign.Campaign{ID: "c1", TenantID: "t1", Name: "launch", Status: campaign.StatusCompleted}
	h := Handlers{Reporting: reporting.NewService(repo)}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/campaigns/c1/summary", nil)
	summaryRouter(h, "t1").ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var got reporting.CampaignSummary
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Name != "launch" || got.CampaignID != "c1" {
		t.Fatalf("summary = %+v", got)
	}
}

func TestCampaignSummaryHandler_WrongTenant(t *testing.T) {
	repo := reporting.NewMemoryRepo()
	repo.Campaigns["c1"] = campaign.Campaign{ID: "c1", TenantID: "t1"}
	h := Handlers{Reporting: reporting.NewService(repo)}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/campaigns/c1/summary", nil)
	summaryRouter(h, "t2").ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestCampaignSummaryHandler_NoIdentity(t *testing.T) {
	h := Handlers{Reporting: reporting.NewService(reporting.NewMemoryRepo())}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/campaigns/c1/summary", nil)
	summaryRouter(h, "").ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}
