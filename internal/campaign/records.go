package campaign

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const recordColumns = `
	id, campaign_id, number, COALESCE(source_line, ''), status, pressed, COALESCE(pressed_digit, ''),
	attempts, called_at, answered_at, ended_at, COALESCE(cause, ''), created_at, updated_at`

func scanRecord(row interface{ Scan(...any) error }) (CallRecord, error) {
	var rec CallRecord
	err := row.Scan(
		&rec.ID, &rec.CampaignID, &rec.Number, &rec.SourceLine, &rec.Status, &rec.Pressed, &rec.PressedDigit,
		&rec.Attempts, &rec.CalledAt, &rec.AnsweredAt, &rec.EndedAt, &rec.Cause, &rec.CreatedAt, &rec.UpdatedAt,
	)
	return rec, err
}

// PurgeRecords deletes every call record of the campaign. Called on campaign
// start so a rerun never inherits stale outcomes.
func (r *Repository) PurgeRecords(ctx context.Context, campaignID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM call_records WHERE campaign_id = $1`, campaignID)
	if err != nil {
		return fmt.Errorf("purge call records: %w", err)
	}
	return nil
}

// BulkInsertRecords seeds one pending record per number-list line, preserving
// list order. The number is stored normalized with the raw line alongside it;
// lines that normalize to the same number collapse to a single record.
func (r *Repository) BulkInsertRecords(ctx context.Context, campaignID string, lines []string, at time.Time) (int, error) {
	const q = `
INSERT INTO call_records (id, campaign_id, number, source_line, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
ON CONFLICT (campaign_id, number) DO NOTHING`

	inserted := 0
	for _, line := range lines {
		num := NormalizeNumber(line)
		if num == "" {
			continue
		}
		res, err := r.db.ExecContext(ctx, q, uuid.NewString(), campaignID, num, line, RecordPending, at)
		if err != nil {
			return inserted, fmt.Errorf("insert call record: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			inserted++
		}
	}
	return inserted, nil
}

// ListPendingRecords returns every undialed record in dial order.
func (r *Repository) ListPendingRecords(ctx context.Context, campaignID string) ([]CallRecord, error) {
	q := `SELECT ` + recordColumns + ` FROM call_records
WHERE campaign_id = $1 AND status = $2
ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, q, campaignID, RecordPending)
	if err != nil {
		return nil, fmt.Errorf("list pending records: %w", err)
	}
	defer rows.Close()

	var out []CallRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list pending records: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// NextPendingRecord returns the oldest undialed record, if any.
func (r *Repository) NextPendingRecord(ctx context.Context, campaignID string) (CallRecord, bool, error) {
	q := `SELECT ` + recordColumns + ` FROM call_records
WHERE campaign_id = $1 AND status = $2
ORDER BY created_at, id
LIMIT 1`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, q, campaignID, RecordPending))
	if errors.Is(err, sql.ErrNoRows) {
		return CallRecord{}, false, nil
	}
	if err != nil {
		return CallRecord{}, false, fmt.Errorf("next pending record: %w", err)
	}
	return rec, true, nil
}

func (r *Repository) MarkRecordCalling(ctx context.Context, recordID string, at time.Time) error {
	q := `UPDATE call_records
SET status = $2, attempts = attempts + 1, called_at = $3, updated_at = $3
WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, recordID, RecordCalling, at)
	if err != nil {
		return fmt.Errorf("mark record calling: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark record calling: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) MarkRecordAnswered(ctx context.Context, recordID string, at time.Time) error {
	q := `UPDATE call_records SET answered_at = $2, updated_at = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, recordID, at)
	if err != nil {
		return fmt.Errorf("mark record answered: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark record answered: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) MarkRecordResult(ctx context.Context, recordID string, status RecordStatus, cause string, at time.Time) error {
	q := `UPDATE call_records
SET status = $2, cause = NULLIF($3, ''), ended_at = $4, updated_at = $4
WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, recordID, status, cause, at)
	if err != nil {
		return fmt.Errorf("mark record result: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark record result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkRecordPressed stamps the digit the callee pressed onto the record.
// Returns false when no record matches.
func (r *Repository) MarkRecordPressed(ctx context.Context, campaignID, number, digit string, at time.Time) (bool, error) {
	q := `UPDATE call_records
SET pressed = TRUE, pressed_digit = $3, updated_at = $4
WHERE campaign_id = $1 AND number = $2`
	res, err := r.db.ExecContext(ctx, q, campaignID, number, digit, at)
	if err != nil {
		return false, fmt.Errorf("mark record pressed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark record pressed: %w", err)
	}
	return n > 0, nil
}

func (r *Repository) FindRecordByNumber(ctx context.Context, campaignID, number string) (CallRecord, bool, error) {
	q := `SELECT ` + recordColumns + ` FROM call_records WHERE campaign_id = $1 AND number = $2`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, q, campaignID, number))
	if errors.Is(err, sql.ErrNoRows) {
		return CallRecord{}, false, nil
	}
	if err != nil {
		return CallRecord{}, false, fmt.Errorf("find record by number: %w", err)
	}
	return rec, true, nil
}

func (r *Repository) ListRecords(ctx context.Context, campaignID string) ([]CallRecord, error) {
	q := `SELECT ` + recordColumns + ` FROM call_records WHERE campaign_id = $1 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, q, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list call records: %w", err)
	}
	defer rows.Close()

	var out []CallRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list call records: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountPendingRecords reports how many numbers remain undialed.
func (r *Repository) CountPendingRecords(ctx context.Context, campaignID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM call_records WHERE campaign_id = $1 AND status = $2`,
		campaignID, RecordPending,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending records: %w", err)
	}
	return n, nil
}

// ReconcileCall stamps the billing outcome onto the matching call record.
// Success here means the call was answered; digit-of-interest success is
// tracked separately via MarkRecordPressed.
func (r *Repository) ReconcileCall(ctx context.Context, campaignID, number string, endedAt time.Time, success bool) error {
	status := RecordFailed
	if success {
		status = RecordSuccess
	}
	q := `UPDATE call_records
SET status = $3, ended_at = $4, updated_at = $4
WHERE campaign_id = $1 AND number = $2 AND status = $5`
	_, err := r.db.ExecContext(ctx, q, campaignID, number, status, endedAt.UTC(), RecordCalling)
	if err != nil {
		return fmt.Errorf("reconcile call record: %w", err)
	}
	return nil
}
