package reporting

import (
	"context"
	"errors"

	"dialer-platform/internal/campaign"
)

var (
	ErrInvalidRequest = errors.New("reporting: invalid request")
	ErrNotFound       = errors.New("reporting: not found")
)

// Spend is the billing aggregate for one campaign, sourced from the immutable
// call detail ledger.
type Spend struct {
	BillableSeconds int
	ChargeMinor     int64
	CostMinor       int64
	ProfitMinor     int64
	BilledCalls     int
	UnbillableCalls int
}

// Repository abstracts data access for reporting. Implementations must
// enforce tenant filtering and should read immutable sources where possible.
type Repository interface {
	GetCampaign(ctx context.Context, tenantID, campaignID string) (campaign.Campaign, bool, error)
	ListRecords(ctx context.Context, campaignID string) ([]campaign.CallRecord, error)
	CampaignSpend(ctx context.Context, tenantID, campaignID string) (Spend, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

// CampaignSummary aggregates call outcomes and ledger spend for one campaign.
func (s *Service) CampaignSummary(ctx context.Context, req CampaignSummaryRequest) (CampaignSummary, error) {
	if req.TenantID == "" || req.CampaignID == "" {
		return CampaignSummary{}, ErrInvalidRequest
	}

	c, ok, err := s.repo.GetCampaign(ctx, req.TenantID, req.CampaignID)
	if err != nil {
		return CampaignSummary{}, err
	}
	if !ok {
		return CampaignSummary{}, ErrNotFound
	}

	out := CampaignSummary{
		TenantID:     req.TenantID,
		CampaignID:   req.CampaignID,
		Name:         c.Name,
		Status:       string(c.Status),
		TotalNumbers: c.TotalNumbers,
	}

	records, err := s.repo.ListRecords(ctx, req.CampaignID)
	if err != nil {
		return CampaignSummary{}, err
	}
	for _, rec := range records {
		switch rec.Status {
		case campaign.RecordPending:
			out.Pending++
		case campaign.RecordSuccess:
			out.Dialed++
		case campaign.RecordFailed:
			out.Dialed++
			out.Failed++
		case campaign.RecordCalling:
			out.Dialed++
		}
		if rec.Pressed {
			out.Pressed++
		}
	}
	// Answered is tracked on the campaign counters rather than per record.
	out.Answered = c.AnsweredCount

	if out.Dialed > 0 {
		out.AnswerRate = float64(out.Answered) / float64(out.Dialed)
		out.PressRate = float64(out.Pressed) / float64(out.Dialed)
	}

	spend, err := s.repo.CampaignSpend(ctx, req.TenantID, req.CampaignID)
	if err != nil {
		return CampaignSummary{}, err
	}
	out.BillableSeconds = spend.BillableSeconds
	out.SpendMinor = spend.ChargeMinor
	out.CostMinor = spend.CostMinor
	out.ProfitMinor = spend.ProfitMinor
	out.BilledCalls = spend.BilledCalls
	out.UnbillableCalls = spend.UnbillableCalls

	return out, nil
}
