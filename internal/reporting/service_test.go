package reporting

import (
	"context"
	"errors"
	"testing"

	"dialer-platform/internal/campaign"
)

func TestCampaignSummary_Validation(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	ctx := context.Background()

	if _, err := svc.CampaignSummary(ctx, CampaignSummaryRequest{}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("empty request: err = %v", err)
	}
	if _, err := svc.CampaignSummary(ctx, CampaignSummaryRequest{TenantID: "t1"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("missing campaign: err = %v", err)
	}
	if _, err := svc.CampaignSummary(ctx, CampaignSummaryRequest{TenantID: "t1", CampaignID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown campaign: err = %v", err)
	}
}

func TestCampaignSummary_TenantIsolation(t *testing.T) {
	repo := NewMemoryRepo()
	repo.Campaigns["c1"] = campaign.Campaign{ID: "c1", TenantID: "t1", Name: "launch"}
	svc := NewService(repo)

	if _, err := svc.CampaignSummary(context.Background(), CampaignSummaryRequest{TenantID: "t2", CampaignID: "c1"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant read: err = %v", err)
	}
}

func TestCampaignSummary_Aggregates(t *testing.T) {
	repo := NewMemoryRepo()
	repo.Campaigns["c1"] = campaign.Campaign{
		ID:            "c1",
		TenantID:      "t1",
		Name:          "launch",
		Status:        campaign.StatusCompleted,
		TotalNumbers:  4,
		AnsweredCount: 2,
	}
	repo.Records["c1"] = []campaign.CallRecord{
		{Number: "14155550100", Status: campaign.RecordSuccess, Pressed: true},
		{Number: "14155550101", Status: campaign.RecordSuccess},
		{Number: "14155550102", Status: campaign.RecordFailed},
		{Number: "14155550103", Status: campaign.RecordPending},
	}
	repo.Spends["c1"] = Spend{
		BillableSeconds: 180,
		ChargeMinor:     300,
		CostMinor:       150,
		ProfitMinor:     150,
		BilledCalls:     2,
		UnbillableCalls: 1,
	}

	svc := NewService(repo)
	got, err := svc.CampaignSummary(context.Background(), CampaignSummaryRequest{TenantID: "t1", CampaignID: "c1"})
	if err != nil {
		t.Fatalf("CampaignSummary: %v", err)
	}
	if got.Dialed != 3 || got.Pending != 1 || got.Failed != 1 || got.Pressed != 1 {
		t.Fatalf("counts = %+v", got)
	}
	if got.Answered != 2 {
		t.Fatalf("answered = %d", got.Answered)
	}
	if got.SpendMinor != 300 || got.ProfitMinor != 150 || got.BillableSeconds != 180 {
		t.Fatalf("spend = %+v", got)
	}
	if got.AnswerRate < 0.66 || got.AnswerRate > 0.67 {
		t.Fatalf("answer rate = %f", got.AnswerRate)
	}
}
