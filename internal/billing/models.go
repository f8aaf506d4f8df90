package billing

import "time"

// Money invariants:
// - No balance updates without a ledger Transaction
// - The transaction log is append-only (immutable)
// - All money operations must be executed in a DB transaction
//
// Amounts are int64 minor units; one minor unit is 1/10000 of a currency
// unit, so call charges computed from per-minute rates are exact to four
// decimal places.

// Account holds the tenant's prepaid balance. Mutated only inside a billing
// transaction.
type Account struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	BalanceMinor     int64 `json:"balance_minor" db:"balance_minor"`
	CreditLimitMinor int64 `json:"credit_limit_minor" db:"credit_limit_minor"`

	// RateCardID selects the price list for this account. Empty means calls
	// are recorded but never billed.
	RateCardID string `json:"rate_card_id,omitempty" db:"rate_card_id"`

	Currency string        `json:"currency" db:"currency"`
	Status   AccountStatus `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusDisabled AccountStatus = "disabled"
)

// AvailableMinor is how much the account can still spend: balance plus the
// allowed credit overdraft.
func (a Account) AvailableMinor() int64 {
	return a.BalanceMinor + a.CreditLimitMinor
}

// Transaction is an immutable ledger entry.
//
// Invariant: BalanceAfterMinor == BalanceBeforeMinor + AmountMinor for
// credits/refunds and BalanceBeforeMinor - AmountMinor for debits; the
// account's live balance always equals the latest entry's BalanceAfterMinor.
type Transaction struct {
	ID        string `json:"id" db:"id"`
	TenantID  string `json:"tenant_id" db:"tenant_id"`
	AccountID string `json:"account_id" db:"account_id"`

	Type TransactionType `json:"type" db:"type"`

	// AmountMinor is always positive; Type carries the direction.
	AmountMinor        int64 `json:"amount_minor" db:"amount_minor"`
	BalanceBeforeMinor int64 `json:"balance_before_minor" db:"balance_before_minor"`
	BalanceAfterMinor  int64 `json:"balance_after_minor" db:"balance_after_minor"`

	Description string `json:"description,omitempty" db:"description"`

	// Reference is optional: payment id, operator note, etc. Used for
	// idempotent top-ups.
	Reference string `json:"reference,omitempty" db:"reference"`

	// CallDetailID links to the call that produced this entry, if any.
	CallDetailID string `json:"call_detail_id,omitempty" db:"call_detail_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type TransactionType string

const (
	TransactionTypeCredit     TransactionType = "credit"
	TransactionTypeDebit      TransactionType = "debit"
	TransactionTypeRefund     TransactionType = "refund"
	TransactionTypeAdjustment TransactionType = "adjustment"
)

// CallDetail is the billing-grade record of one call. Prices are snapshotted
// at bill time; later rate changes never alter history.
type CallDetail struct {
	ID        string `json:"id" db:"id"`
	TenantID  string `json:"tenant_id" db:"tenant_id"`
	AccountID string `json:"account_id" db:"account_id"`

	CampaignID   string `json:"campaign_id,omitempty" db:"campaign_id"`
	CallRecordID string `json:"call_record_id,omitempty" db:"call_record_id"`

	Number        string `json:"number" db:"number"`
	DestinationID string `json:"destination_id,omitempty" db:"destination_id"`
	RateCardID    string `json:"rate_card_id,omitempty" db:"rate_card_id"`
	RateID        string `json:"rate_id,omitempty" db:"rate_id"`

	StartedAt  *time.Time `json:"started_at,omitempty" db:"started_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty" db:"answered_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	DurationSeconds int `json:"duration_seconds" db:"duration_seconds"`
	BillableSeconds int `json:"billable_seconds" db:"billable_seconds"`

	CostPerMinuteMinor int64 `json:"cost_per_minute_minor" db:"cost_per_minute_minor"`
	SellPerMinuteMinor int64 `json:"sell_per_minute_minor" db:"sell_per_minute_minor"`

	TotalCostMinor   int64 `json:"total_cost_minor" db:"total_cost_minor"`
	TotalChargeMinor int64 `json:"total_charge_minor" db:"total_charge_minor"`
	ProfitMinor      int64 `json:"profit_minor" db:"profit_minor"`

	// Processed is set exactly once, after either a charge was applied or a
	// no-charge decision was finalized. ProcessedReason records why a call
	// was not billed.
	Processed       bool   `json:"processed" db:"processed"`
	ProcessedReason string `json:"processed_reason,omitempty" db:"processed_reason"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// No-charge reasons retained on CallDetail.
const (
	ReasonNoRateCard          = "no rate card"
	ReasonNoDestination       = "destination not found"
	ReasonNoRate              = "no rate available"
	ReasonNotAnswered         = "not answered"
	ReasonInsufficientBalance = "insufficient balance"
)
