package reporting

import (
	"context"

	"dialer-platform/internal/campaign"
)

// MemoryRepo backs reporting tests.
type MemoryRepo struct {
	Campaigns map[string]campaign.Campaign
	Records   map[string][]campaign.CallRecord
	Spends    map[string]Spend
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		Campaigns: map[string]campaign.Campaign{},
		Records:   map[string][]campaign.CallRecord{},
		Spends:    map[string]Spend{},
	}
}

func (r *MemoryRepo) GetCampaign(_ context.Context, tenantID, campaignID string) (campaign.Campaign, bool, error) {
	c, ok := r.Campaigns[campaignID]
	if !ok || c.TenantID != tenantID {
		return campaign.Campaign{}, false, nil
	}
	return c, true, nil
}

func (r *MemoryRepo) ListRecords(_ context.Context, campaignID string) ([]campaign.CallRecord, error) {
	return r.Records[campaignID], nil
}

func (r *MemoryRepo) CampaignSpend(_ context.Context, _, campaignID string) (Spend, error) {
	return r.Spends[campaignID], nil
}
