package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAppend_Validation(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	ctx := context.Background()

	if err := svc.Append(ctx, Event{}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("missing tenant: err = %v", err)
	}
	if err := svc.Append(ctx, Event{TenantID: "t1"}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("missing type: err = %v", err)
	}
}

func TestAppend_FillsDefaults(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	fixed := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc.clock = func() time.Time { return fixed }

	err := svc.LogCampaignAction(context.Background(), "t1", "u1", "operator", "10.0.0.1", "c1", "paused campaign")
	if err != nil {
		t.Fatalf("LogCampaignAction: %v", err)
	}

	events := repo.Events()
	if len(events) != 1 {
		t.Fatalf("events = %d", len(events))
	}
	e := events[0]
	if e.ID == "" {
		t.Fatalf("id not assigned")
	}
	if !e.CreatedAt.Equal(fixed) {
		t.Fatalf("created_at = %v", e.CreatedAt)
	}
	if e.Type != EventTypeCampaignAction || e.CampaignID != "c1" || e.ActorRole != "operator" {
		t.Fatalf("event = %+v", e)
	}
}

func TestLogCredit(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogCredit(context.Background(), "t1", "u1", "owner", "", "a1", "topped up 50000"); err != nil {
		t.Fatalf("LogCredit: %v", err)
	}
	events := repo.Events()
	if len(events) != 1 || events[0].Type != EventTypeBillingCredit || events[0].AccountID != "a1" {
		t.Fatalf("events = %+v", events)
	}
}
