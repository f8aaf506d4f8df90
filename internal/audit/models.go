package audit

import "time"

// Event is an immutable, append-only audit record.
//
// Invariants:
// - Events are never updated or deleted.
// - tenant_id is required for tenancy isolation.
// - Audit writes are best-effort; operational flows never block on them.
type Event struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated user causing the event.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// Target identifiers, depending on the event type.
	CampaignID string `json:"campaign_id,omitempty" db:"campaign_id"`
	AccountID  string `json:"account_id,omitempty" db:"account_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	// EventTypeCampaignAction covers operator lifecycle commands: pause,
	// resume, cancel.
	EventTypeCampaignAction EventType = "campaign_action"
	// EventTypeBillingCredit covers manual balance changes.
	EventTypeBillingCredit EventType = "billing_credit"
)
