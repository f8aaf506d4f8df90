package rating

import "time"

// Amounts are expressed in minor units using int64. One minor unit is 1/10000
// of a currency unit, so per-minute telco rates ($0.0050/min) and computed
// charges are exact to four decimal places.

// Destination maps a dialing prefix to a country/region. Immutable reference
// data; queried read-only by the resolver.
type Destination struct {
	ID     string `json:"id" db:"id"`
	Prefix string `json:"prefix" db:"prefix"`
	Name   string `json:"name" db:"name"`

	// CountryISO2 is the country of the prefix (e.g., "GB", "PK").
	CountryISO2 string `json:"country_iso2" db:"country_iso2"`

	Status DestinationStatus `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type DestinationStatus string

const (
	DestinationStatusActive   DestinationStatus = "active"
	DestinationStatusInactive DestinationStatus = "inactive"
)

// Rate prices one destination on one rate card. Multiple rows may exist per
// (rate card, destination) pair; only the one with the latest effectiveFrom
// not exceeding "now", and an unexpired or null effectiveTo, is active.
type Rate struct {
	ID            string `json:"id" db:"id"`
	RateCardID    string `json:"rate_card_id" db:"rate_card_id"`
	DestinationID string `json:"destination_id" db:"destination_id"`

	// CostPerMinuteMinor is what the platform pays per minute.
	CostPerMinuteMinor int64 `json:"cost_per_minute_minor" db:"cost_per_minute_minor"`

	// SellPerMinuteMinor is what the account is charged per minute.
	SellPerMinuteMinor int64 `json:"sell_per_minute_minor" db:"sell_per_minute_minor"`

	// MinimumSeconds enforces a minimum billable duration.
	MinimumSeconds int `json:"minimum_seconds" db:"minimum_seconds"`

	// IncrementSeconds is the rounding quantum for billable time
	// (e.g., 60 for per-minute, 1 for per-second billing).
	IncrementSeconds int `json:"increment_seconds" db:"increment_seconds"`

	EffectiveFrom time.Time  `json:"effective_from" db:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty" db:"effective_to"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ActiveAt reports whether the rate applies at the given instant.
func (r Rate) ActiveAt(at time.Time) bool {
	if at.Before(r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && at.After(*r.EffectiveTo) {
		return false
	}
	return true
}
