package reporting

import (
	"context"
	"database/sql"
	"fmt"

	"dialer-platform/internal/campaign"
)

// PostgresRepo serves reporting queries. Campaign and record reads are
// delegated to the campaign repository; spend is aggregated straight from
// call_details.
type PostgresRepo struct {
	db        *sql.DB
	campaigns *campaign.Repository
}

func NewPostgresRepo(db *sql.DB, campaigns *campaign.Repository) *PostgresRepo {
	return &PostgresRepo{db: db, campaigns: campaigns}
}

func (r *PostgresRepo) GetCampaign(ctx context.Context, tenantID, campaignID string) (campaign.Campaign, bool, error) {
	return r.campaigns.Get(ctx, tenantID, campaignID)
}

func (r *PostgresRepo) ListRecords(ctx context.Context, campaignID string) ([]campaign.CallRecord, error) {
	return r.campaigns.ListRecords(ctx, campaignID)
}

const campaignSpendSQL = `
SELECT
	COALESCE(SUM(billable_seconds), 0),
	COALESCE(SUM(total_charge_minor), 0),
	COALESCE(SUM(total_cost_minor), 0),
	COALESCE(SUM(profit_minor), 0),
	COUNT(*) FILTER (WHERE total_charge_minor > 0),
	COUNT(*) FILTER (WHERE processed_reason IS NOT NULL)
FROM call_details
WHERE tenant_id = $1 AND campaign_id = $2`

func (r *PostgresRepo) CampaignSpend(ctx context.Context, tenantID, campaignID string) (Spend, error) {
	var s Spend
	err := r.db.QueryRowContext(ctx, campaignSpendSQL, tenantID, campaignID).Scan(
		&s.BillableSeconds, &s.ChargeMinor, &s.CostMinor, &s.ProfitMinor, &s.BilledCalls, &s.UnbillableCalls,
	)
	if err != nil {
		return Spend{}, fmt.Errorf("campaign spend: %w", err)
	}
	return s, nil
}
