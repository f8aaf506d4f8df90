package campaign

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("campaign: not found")

// Repository persists campaigns and their call records.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Number lists are stored newline-joined. Numbers never contain newlines
// after normalization.
func encodeNumbers(numbers []string) string {
	return strings.Join(numbers, "\n")
}

func decodeNumbers(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

const campaignColumns = `
	id, tenant_id, account_id, name, status, scheduled_at, scheduled_end_at, COALESCE(timezone, ''),
	started_at, completed_at, COALESCE(number_list, ''),
	COALESCE(caller_id, ''), COALESCE(dial_prefix, ''), routing_type, COALESCE(trunk, ''),
	COALESCE(ivr_context, ''), COALESCE(ivr_extension, ''), COALESCE(digit_of_interest, ''),
	concurrency_limit, COALESCE(notify_recipient, ''), call_seq,
	total_numbers, dialed_count, answered_count, pressed_count, failed_count,
	last_activity_at, COALESCE(last_error, ''), created_at, updated_at`

func scanCampaign(row interface{ Scan(...any) error }) (Campaign, error) {
	var c Campaign
	var numbers string
	err := row.Scan(
		&c.ID, &c.TenantID, &c.AccountID, &c.Name, &c.Status, &c.ScheduledAt, &c.ScheduledEndAt, &c.Timezone,
		&c.StartedAt, &c.CompletedAt, &numbers,
		&c.CallerID, &c.DialPrefix, &c.RoutingType, &c.Trunk,
		&c.IVRContext, &c.IVRExtension, &c.DigitOfInterest,
		&c.ConcurrencyLimit, &c.NotifyRecipient, &c.CallSeq,
		&c.TotalNumbers, &c.DialedCount, &c.AnsweredCount, &c.PressedCount, &c.FailedCount,
		&c.LastActivityAt, &c.LastError, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return Campaign{}, err
	}
	c.NumberList = decodeNumbers(numbers)
	return c, nil
}

const createCampaignSQL = `
INSERT INTO campaigns
	(id, tenant_id, account_id, name, status, scheduled_at, scheduled_end_at, timezone, number_list,
	 caller_id, dial_prefix, routing_type, trunk, ivr_context, ivr_extension,
	 digit_of_interest, concurrency_limit, notify_recipient,
	 total_numbers, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9,
	NULLIF($10, ''), NULLIF($11, ''), $12, NULLIF($13, ''), NULLIF($14, ''), NULLIF($15, ''),
	NULLIF($16, ''), $17, NULLIF($18, ''), $19, $20, $20)`

func (r *Repository) Create(ctx context.Context, c Campaign) (Campaign, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = StatusScheduled
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	c.TotalNumbers = len(c.NumberList)

	_, err := r.db.ExecContext(ctx, createCampaignSQL,
		c.ID, c.TenantID, c.AccountID, c.Name, c.Status, c.ScheduledAt, c.ScheduledEndAt, c.Timezone, encodeNumbers(c.NumberList),
		c.CallerID, c.DialPrefix, c.RoutingType, c.Trunk, c.IVRContext, c.IVRExtension,
		c.DigitOfInterest, c.ConcurrencyLimit, c.NotifyRecipient, c.TotalNumbers, now,
	)
	if err != nil {
		return Campaign{}, fmt.Errorf("create campaign: %w", err)
	}
	return c, nil
}

func (r *Repository) Get(ctx context.Context, tenantID, id string) (Campaign, bool, error) {
	q := `SELECT ` + campaignColumns + ` FROM campaigns WHERE tenant_id = $1 AND id = $2`
	c, err := scanCampaign(r.db.QueryRowContext(ctx, q, tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Campaign{}, false, nil
	}
	if err != nil {
		return Campaign{}, false, fmt.Errorf("get campaign: %w", err)
	}
	return c, true, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (Campaign, bool, error) {
	q := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`
	c, err := scanCampaign(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Campaign{}, false, nil
	}
	if err != nil {
		return Campaign{}, false, fmt.Errorf("get campaign: %w", err)
	}
	return c, true, nil
}

func (r *Repository) listByStatus(ctx context.Context, status Status) ([]Campaign, error) {
	q := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status = $1 ORDER BY scheduled_at`
	rows, err := r.db.QueryContext(ctx, q, status)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("list campaigns: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) ListScheduled(ctx context.Context) ([]Campaign, error) {
	return r.listByStatus(ctx, StatusScheduled)
}

func (r *Repository) ListRunning(ctx context.Context) ([]Campaign, error) {
	return r.listByStatus(ctx, StatusRunning)
}

func (r *Repository) ListByTenant(ctx context.Context, tenantID string) ([]Campaign, error) {
	q := `SELECT ` + campaignColumns + ` FROM campaigns WHERE tenant_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("list campaigns: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateStatus moves a campaign between states, guarded by the set of states
// the move is legal from. Returns ErrNotFound when the campaign is not in an
// allowed state.
func (r *Repository) UpdateStatus(ctx context.Context, id string, to Status, from ...Status) error {
	if len(from) == 0 {
		return errors.New("campaign: UpdateStatus requires at least one from state")
	}
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}
	q := `UPDATE campaigns SET status = $2, updated_at = $3 WHERE id = $1 AND status = ANY(string_to_array($4, ','))`
	res, err := r.db.ExecContext(ctx, q, id, to, time.Now().UTC(), strings.Join(allowed, ","))
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const markStartedSQL = `
UPDATE campaigns
SET status = $2, started_at = $3, completed_at = NULL, last_activity_at = $3,
	call_seq = 0, dialed_count = 0, answered_count = 0, pressed_count = 0, failed_count = 0,
	last_error = NULL, updated_at = $3
WHERE id = $1 AND status = $4`

// MarkStarted flips a scheduled campaign to running and resets its progress
// counters. Restarting a campaign always begins from a clean slate.
func (r *Repository) MarkStarted(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, markStartedSQL, id, StatusRunning, at, StatusScheduled)
	if err != nil {
		return fmt.Errorf("mark campaign started: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark campaign started: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	q := `UPDATE campaigns SET status = $2, completed_at = $3, updated_at = $3 WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, q, id, StatusCompleted, at, StatusRunning)
	if err != nil {
		return fmt.Errorf("mark campaign completed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark campaign completed: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) MarkFailed(ctx context.Context, id, reason string, at time.Time) error {
	q := `UPDATE campaigns SET status = $2, last_error = $3, updated_at = $4 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id, StatusFailed, reason, at)
	if err != nil {
		return fmt.Errorf("mark campaign failed: %w", err)
	}
	return nil
}

func (r *Repository) TouchActivity(ctx context.Context, id string, at time.Time) error {
	q := `UPDATE campaigns SET last_activity_at = $2, updated_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id, at)
	if err != nil {
		return fmt.Errorf("touch campaign activity: %w", err)
	}
	return nil
}

// NextCallSeq atomically advances and returns the campaign's origination
// sequence number. The first call of a run returns 1.
func (r *Repository) NextCallSeq(ctx context.Context, id string) (int64, error) {
	q := `UPDATE campaigns SET call_seq = call_seq + 1, updated_at = $2 WHERE id = $1 RETURNING call_seq`
	var seq int64
	err := r.db.QueryRowContext(ctx, q, id, time.Now().UTC()).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("next call seq: %w", err)
	}
	return seq, nil
}

type Counter string

const (
	CounterDialed   Counter = "dialed_count"
	CounterAnswered Counter = "answered_count"
	CounterPressed  Counter = "pressed_count"
	CounterFailed   Counter = "failed_count"
)

func (r *Repository) IncrementCounter(ctx context.Context, id string, counter Counter) error {
	var q string
	switch counter {
	case CounterDialed:
		q = `UPDATE campaigns SET dialed_count = dialed_count + 1, updated_at = $2 WHERE id = $1`
	case CounterAnswered:
		q = `UPDATE campaigns SET answered_count = answered_count + 1, updated_at = $2 WHERE id = $1`
	case CounterPressed:
		q = `UPDATE campaigns SET pressed_count = pressed_count + 1, updated_at = $2 WHERE id = $1`
	case CounterFailed:
		q = `UPDATE campaigns SET failed_count = failed_count + 1, updated_at = $2 WHERE id = $1`
	default:
		return fmt.Errorf("campaign: unknown counter %q", counter)
	}
	_, err := r.db.ExecContext(ctx, q, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("increment %s: %w", counter, err)
	}
	return nil
}
