package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRepo appends audit events to the audit_events table. The table is
// INSERT-only; nothing here updates or deletes.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const appendEventSQL = `
INSERT INTO audit_events
	(id, tenant_id, type, actor_user_id, actor_role, ip_address, campaign_id, account_id, message, created_at)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), $10)`

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, appendEventSQL,
		e.ID, e.TenantID, e.Type, e.ActorUserID, e.ActorRole, e.IPAddress,
		e.CampaignID, e.AccountID, e.Message, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}
