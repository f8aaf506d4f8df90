package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"dialer-platform/internal/rating"
)

func TestAccountAvailableMinor(t *testing.T) {
	a := Account{BalanceMinor: 50000, CreditLimitMinor: 20000}
	if got := a.AvailableMinor(); got != 70000 {
		t.Fatalf("AvailableMinor = %d, want 70000", got)
	}
}

func TestAmountForSeconds_RoundsHalfUp(t *testing.T) {
	cases := []struct {
		perMinute int64
		sec       int
		want      int64
	}{
		{50, 60, 50},   // exactly one minute at 0.005/min
		{100, 60, 100}, // one minute at 0.01/min
		{100, 90, 150}, // 1.5 minutes
		{100, 61, 102}, // 101.67 rounds to 102
		{50, 61, 51},   // 50.83 rounds to 51
		{1, 30, 1},     // 0.5 rounds up
		{1, 29, 0},     // 0.483 rounds down
		{0, 600, 0},
		{100, 0, 0},
	}
	for _, c := range cases {
		if got := amountForSeconds(c.perMinute, c.sec); got != c.want {
			t.Errorf("amountForSeconds(%d, %d) = %d, want %d", c.perMinute, c.sec, got, c.want)
		}
	}
}

func TestComputeCharges(t *testing.T) {
	rate := rating.Rate{
		CostPerMinuteMinor: 50,
		SellPerMinuteMinor: 100,
		MinimumSeconds:     60,
		IncrementSeconds:   60,
	}

	// 45s answered call bills the 60s minimum.
	sec, cost, charge, profit := computeCharges(rate, true, 45)
	if sec != 60 || cost != 50 || charge != 100 || profit != 50 {
		t.Fatalf("45s: got sec=%d cost=%d charge=%d profit=%d", sec, cost, charge, profit)
	}

	// 125s rounds up to 180s.
	sec, cost, charge, profit = computeCharges(rate, true, 125)
	if sec != 180 || cost != 150 || charge != 300 || profit != 150 {
		t.Fatalf("125s: got sec=%d cost=%d charge=%d profit=%d", sec, cost, charge, profit)
	}

	// Unanswered calls cost nothing regardless of duration.
	sec, cost, charge, profit = computeCharges(rate, false, 120)
	if sec != 0 || cost != 0 || charge != 0 || profit != 0 {
		t.Fatalf("unanswered: got sec=%d cost=%d charge=%d profit=%d", sec, cost, charge, profit)
	}

	// Zero duration means the call never connected.
	sec, _, charge, _ = computeCharges(rate, true, 0)
	if sec != 0 || charge != 0 {
		t.Fatalf("zero duration: got sec=%d charge=%d", sec, charge)
	}
}

func TestRateAndBill_Validation(t *testing.T) {
	svc := NewService(nil, nil, nil, nil)
	ctx := context.Background()

	cases := []CallOutcome{
		{},
		{TenantID: "t1"},
		{TenantID: "t1", AccountID: "a1"},
		{TenantID: "t1", AccountID: "a1", Number: "14155550100", DurationSeconds: -1},
	}
	for i, c := range cases {
		c.EndedAt = time.Now()
		if _, err := svc.RateAndBill(ctx, c); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("case %d: err = %v, want ErrInvalidArgument", i, err)
		}
	}
}

func TestCredit_Validation(t *testing.T) {
	svc := NewService(nil, nil, nil, nil)
	ctx := context.Background()

	if _, _, err := svc.Credit(ctx, "", "a1", CreditRequest{AmountMinor: 100, Reference: "r1"}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("missing tenant: err = %v", err)
	}
	if _, _, err := svc.Credit(ctx, "t1", "a1", CreditRequest{AmountMinor: 0, Reference: "r1"}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("zero amount: err = %v", err)
	}
	if _, _, err := svc.Credit(ctx, "t1", "a1", CreditRequest{AmountMinor: -5, Reference: "r1"}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("negative amount: err = %v", err)
	}
	if _, _, err := svc.Credit(ctx, "t1", "a1", CreditRequest{AmountMinor: 100}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("missing reference: err = %v", err)
	}
	if _, _, err := svc.Credit(ctx, "t1", "a1", CreditRequest{AmountMinor: 100, Reference: "r1", Type: "bogus"}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("bad type: err = %v", err)
	}
}
