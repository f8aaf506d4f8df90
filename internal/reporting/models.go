package reporting

// CampaignSummaryRequest requests aggregated outcome and spend metrics for
// one campaign. TenantID is required for isolation.
type CampaignSummaryRequest struct {
	TenantID   string `json:"tenant_id"`
	CampaignID string `json:"campaign_id"`
}

type CampaignSummary struct {
	TenantID   string `json:"tenant_id"`
	CampaignID string `json:"campaign_id"`
	Name       string `json:"name"`
	Status     string `json:"status"`

	TotalNumbers int `json:"total_numbers"`
	Pending      int `json:"pending"`
	Dialed       int `json:"dialed"`
	Answered     int `json:"answered"`
	Pressed      int `json:"pressed"`
	Failed       int `json:"failed"`

	AnswerRate float64 `json:"answer_rate"`
	PressRate  float64 `json:"press_rate"`

	// Spend figures come from the immutable call detail ledger.
	BillableSeconds int   `json:"billable_seconds"`
	SpendMinor      int64 `json:"spend_minor"`
	CostMinor       int64 `json:"cost_minor"`
	ProfitMinor     int64 `json:"profit_minor"`
	BilledCalls     int   `json:"billed_calls"`
	UnbillableCalls int   `json:"unbillable_calls"`
}
