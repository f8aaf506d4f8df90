package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const lockAccountSQL = `
SELECT id, tenant_id, balance_minor, credit_limit_minor, COALESCE(rate_card_id, ''), currency, status, created_at, updated_at
FROM billing_accounts
WHERE tenant_id = $1 AND id = $2
FOR UPDATE`

func lockAccount(ctx context.Context, tx *sql.Tx, tenantID, accountID string) (Account, error) {
	var a Account
	err := tx.QueryRowContext(ctx, lockAccountSQL, tenantID, accountID).Scan(
		&a.ID, &a.TenantID, &a.BalanceMinor, &a.CreditLimitMinor, &a.RateCardID, &a.Currency, &a.Status, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("lock account: %w", err)
	}
	return a, nil
}

const getAccountSQL = `
SELECT id, tenant_id, balance_minor, credit_limit_minor, COALESCE(rate_card_id, ''), currency, status, created_at, updated_at
FROM billing_accounts
WHERE tenant_id = $1 AND id = $2`

func getAccount(ctx context.Context, db *sql.DB, tenantID, accountID string) (Account, error) {
	var a Account
	err := db.QueryRowContext(ctx, getAccountSQL, tenantID, accountID).Scan(
		&a.ID, &a.TenantID, &a.BalanceMinor, &a.CreditLimitMinor, &a.RateCardID, &a.Currency, &a.Status, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

const updateBalanceSQL = `
UPDATE billing_accounts
SET balance_minor = $3, updated_at = $4
WHERE tenant_id = $1 AND id = $2`

func updateAccountBalance(ctx context.Context, tx *sql.Tx, tenantID, accountID string, balanceMinor int64, at time.Time) error {
	res, err := tx.ExecContext(ctx, updateBalanceSQL, tenantID, accountID, balanceMinor, at)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const insertTransactionSQL = `
INSERT INTO billing_transactions
	(id, tenant_id, account_id, type, amount_minor, balance_before_minor, balance_after_minor, description, reference, call_detail_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11)`

func insertTransaction(ctx context.Context, tx *sql.Tx, t Transaction) error {
	_, err := tx.ExecContext(ctx, insertTransactionSQL,
		t.ID, t.TenantID, t.AccountID, t.Type, t.AmountMinor,
		t.BalanceBeforeMinor, t.BalanceAfterMinor, t.Description, t.Reference, t.CallDetailID, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

const findTransactionByReferenceSQL = `
SELECT id, tenant_id, account_id, type, amount_minor, balance_before_minor, balance_after_minor, description, COALESCE(reference, ''), COALESCE(call_detail_id, ''), created_at
FROM billing_transactions
WHERE tenant_id = $1 AND account_id = $2 AND reference = $3`

func findTransactionByReference(ctx context.Context, tx *sql.Tx, tenantID, accountID, reference string) (Transaction, bool, error) {
	var t Transaction
	err := tx.QueryRowContext(ctx, findTransactionByReferenceSQL, tenantID, accountID, reference).Scan(
		&t.ID, &t.TenantID, &t.AccountID, &t.Type, &t.AmountMinor,
		&t.BalanceBeforeMinor, &t.BalanceAfterMinor, &t.Description, &t.Reference, &t.CallDetailID, &t.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, false, nil
	}
	if err != nil {
		return Transaction{}, false, fmt.Errorf("find transaction by reference: %w", err)
	}
	return t, true, nil
}

const insertCallDetailSQL = `
INSERT INTO call_details
	(id, tenant_id, account_id, campaign_id, call_record_id, number, destination_id, rate_card_id, rate_id,
	 started_at, answered_at, ended_at, duration_seconds, billable_seconds,
	 cost_per_minute_minor, sell_per_minute_minor, total_cost_minor, total_charge_minor, profit_minor,
	 processed, processed_reason, created_at)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''),
	$10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, NULLIF($21, ''), $22)`

func insertCallDetail(ctx context.Context, tx *sql.Tx, d CallDetail) error {
	_, err := tx.ExecContext(ctx, insertCallDetailSQL,
		d.ID, d.TenantID, d.AccountID, d.CampaignID, d.CallRecordID, d.Number, d.DestinationID, d.RateCardID, d.RateID,
		d.StartedAt, d.AnsweredAt, d.EndedAt, d.DurationSeconds, d.BillableSeconds,
		d.CostPerMinuteMinor, d.SellPerMinuteMinor, d.TotalCostMinor, d.TotalChargeMinor, d.ProfitMinor,
		d.Processed, d.ProcessedReason, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert call detail: %w", err)
	}
	return nil
}
