package httpapi

import (
	"errors"
	"net/http"
	"time"

	"dialer-platform/internal/audit"
	"dialer-platform/internal/auth"
	"dialer-platform/internal/billing"
	"dialer-platform/internal/campaign"
	"dialer-platform/internal/reporting"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth      *auth.Manager
	Campaigns *campaign.Repository
	Scheduler *campaign.Scheduler
	Billing   *billing.Service
	Reporting *reporting.Service
	Audit     *audit.Service
}

// --- Auth ---

type loginRequest struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.TenantID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, tenant_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.TenantID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Campaigns ---

type createCampaignRequest struct {
	AccountID      string `json:"account_id"`
	Name           string `json:"name"`
	ScheduledAt    string `json:"scheduled_at"`
	ScheduledEndAt string `json:"scheduled_end_at"`
	Timezone       string `json:"timezone"`

	Numbers []string `json:"numbers"`

	CallerID   string `json:"caller_id"`
	DialPrefix string `json:"dial_prefix"`

	RoutingType string `json:"routing_type"`
	Trunk       string `json:"trunk"`

	IVRContext   string `json:"ivr_context"`
	IVRExtension string `json:"ivr_extension"`

	DigitOfInterest  string `json:"digit_of_interest"`
	ConcurrencyLimit int    `json:"concurrency_limit"`
	NotifyRecipient  string `json:"notify_recipient"`
}

func (h Handlers) CreateCampaign(c *gin.Context) {
	if h.Campaigns == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "campaigns not configured"})
		return
	}
	tenantID, err := auth.TenantID(c.Request.Context())
	if err != nil || tenantID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return
	}

	var req createCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Name == "" || req.AccountID == "" || len(req.Numbers) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "name, account_id, numbers required"})
		return
	}
	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "scheduled_at must be RFC3339"})
		return
	}
	var scheduledEndAt *time.Time
	if req.ScheduledEndAt != "" {
		end, err := time.Parse(time.RFC3339, req.ScheduledEndAt)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "scheduled_end_at must be RFC3339"})
			return
		}
		if !end.After(scheduledAt) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "scheduled_end_at must be after scheduled_at"})
			return
		}
		scheduledEndAt = &end
	}
	routing := campaign.RoutingType(req.RoutingType)
	switch routing {
	case "", campaign.RoutingSIPTrunk:
		routing = campaign.RoutingSIPTrunk
	case campaign.RoutingQueue:
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "routing_type must be sip_trunk or queue"})
		return
	}

	created, err := h.Campaigns.Create(c.Request.Context(), campaign.Campaign{
		TenantID:         tenantID,
		AccountID:        req.AccountID,
		Name:             req.Name,
		ScheduledAt:      scheduledAt,
		ScheduledEndAt:   scheduledEndAt,
		Timezone:         req.Timezone,
		NumberList:       req.Numbers,
		CallerID:         req.CallerID,
		DialPrefix:       req.DialPrefix,
		RoutingType:      routing,
		Trunk:            req.Trunk,
		IVRContext:       req.IVRContext,
		IVRExtension:     req.IVRExtension,
		DigitOfInterest:  req.DigitOfInterest,
		ConcurrencyLimit: req.ConcurrencyLimit,
		NotifyRecipient:  req.NotifyRecipient,
	})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "campaign creation failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": created.ID, "status": created.Status})
}

func (h Handlers) GetCampaign(c *gin.Context) {
	if h.Campaigns == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "campaigns not configured"})
		return
	}
	tenantID, err := auth.TenantID(c.Request.Context())
	if err != nil || tenantID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return
	}
	id := c.Param("campaign_id")
	cmp, ok, err := h.Campaigns.Get(c.Request.Context(), tenantID, id)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "campaign lookup failed"})
		return
	}
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
		return
	}
	c.JSON(http.StatusOK, cmp)
}

func (h Handlers) ListCampaigns(c *gin.Context) {
	if h.Campaigns == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "campaigns not configured"})
		return
	}
	tenantID, err := auth.TenantID(c.Request.Context())
	if err != nil || tenantID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return
	}
	list, err := h.Campaigns.ListByTenant(c.Request.Context(), tenantID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "campaign list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": list})
}

// lifecycleAction runs one operator command against the scheduler and audits
// it.
func (h Handlers) lifecycleAction(c *gin.Context, action string, run func(c *gin.Context, tenantID, id string) error) {
	if h.Scheduler == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "scheduler not configured"})
		return
	}
	tenantID, err := auth.TenantID(c.Request.Context())
	if err != nil || tenantID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return
	}
	id := c.Param("campaign_id")

	if err := run(c, tenantID, id); err != nil {
		if errors.Is(err, campaign.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "campaign not found or not in a valid state"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": action + " failed"})
		return
	}

	if h.Audit != nil {
		userID, _ := auth.UserID(c.Request.Context())
		role, _ := auth.Role(c.Request.Context())
		_ = h.Audit.LogCampaignAction(c.Request.Context(), tenantID, userID, role, c.ClientIP(), id, action+" campaign")
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h Handlers) PauseCampaign(c *gin.Context) {
	h.lifecycleAction(c, "pause", func(c *gin.Context, tenantID, id string) error {
		return h.Scheduler.Pause(c.Request.Context(), tenantID, id)
	})
}

func (h Handlers) ResumeCampaign(c *gin.Context) {
	h.lifecycleAction(c, "resume", func(c *gin.Context, tenantID, id string) error {
		return h.Scheduler.Resume(c.Request.Context(), tenantID, id)
	})
}

func (h Handlers) CancelCampaign(c *gin.Context) {
	h.lifecycleAction(c, "cancel", func(c *gin.Context, tenantID, id string) error {
		return h.Scheduler.Cancel(c.Request.Context(), tenantID, id)
	})
}

// --- Reporting ---

func (h Handlers) CampaignSummary(c *gin.Context) {
	if h.Reporting == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	tenantID, err := auth.TenantID(c.Request.Context())
	if err != nil || tenantID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return
	}
	summary, err := h.Reporting.CampaignSummary(c.Request.Context(), reporting.CampaignSummaryRequest{
		TenantID:   tenantID,
		CampaignID: c.Param("campaign_id"),
	})
	if err != nil {
		if errors.Is(err, reporting.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
			return
		}
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "campaign_id required"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// --- Billing ---

func (h Handlers) GetAccount(c *gin.Context) {
	if h.Billing == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	tenantID, err := auth.TenantID(c.Request.Context())
	if err != nil || tenantID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return
	}
	acct, err := h.Billing.GetAccount(c.Request.Context(), tenantID, c.Param("account_id"))
	if err != nil {
		if errors.Is(err, billing.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "account lookup failed"})
		return
	}
	c.JSON(http.StatusOK, acct)
}

type creditRequest struct {
	AmountMinor int64  `json:"amount_minor"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Reference   string `json:"reference"`
}

// CreditAccount performs a manual balance credit.
// RBAC: owner or super_admin.
func (h Handlers) CreditAccount(c *gin.Context) {
	if h.Billing == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	tenantID, err := auth.TenantID(c.Request.Context())
	if err != nil || tenantID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return
	}
	accountID := c.Param("account_id")

	var req creditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	txn, acct, err := h.Billing.Credit(c.Request.Context(), tenantID, accountID, billing.CreditRequest{
		AmountMinor: req.AmountMinor,
		Type:        billing.TransactionType(req.Type),
		Description: req.Description,
		Reference:   req.Reference,
	})
	if err != nil {
		if errors.Is(err, billing.ErrInvalidArgument) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "amount_minor and reference required"})
			return
		}
		if errors.Is(err, billing.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "credit failed"})
		return
	}

	if h.Audit != nil {
		userID, _ := auth.UserID(c.Request.Context())
		role, _ := auth.Role(c.Request.Context())
		_ = h.Audit.LogCredit(c.Request.Context(), tenantID, userID, role, c.ClientIP(), accountID, req.Description)
	}
	c.JSON(http.StatusOK, gin.H{"transaction_id": txn.ID, "balance_minor": acct.BalanceMinor})
}
