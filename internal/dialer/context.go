package dialer

import "time"

// DialContext is the per-call snapshot of everything a call needs for the
// rest of its life: routing, billing identity and notification targets. It is
// captured at origination time, so a call keeps billing and notifying
// correctly even if the campaign is paused, cancelled or edited while the
// call is up.
type DialContext struct {
	CampaignID   string
	CampaignName string
	TenantID     string
	AccountID    string

	RecordID string
	// Number is normalized, digits only, without the dial prefix.
	Number string

	CallerID        string
	DigitOfInterest string
	NotifyRecipient string

	// Seq is the campaign's origination sequence number for this call.
	Seq int64

	OriginatedAt time.Time
	AnsweredAt   *time.Time

	// Pressed is set once the digit of interest has been counted for this
	// call.
	Pressed bool
}
