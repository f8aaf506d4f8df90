package campaign

import "time"

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

type RoutingType string

const (
	RoutingSIPTrunk RoutingType = "sip_trunk"
	RoutingQueue    RoutingType = "queue"
)

// Campaign is one outbound dialing run over a number list.
type Campaign struct {
	ID       string
	TenantID string

	// AccountID is the billing account every call in the campaign charges.
	AccountID string

	Name   string
	Status Status

	// ScheduledAt and ScheduledEndAt are interpreted in Timezone when
	// deciding whether the campaign is due or over. ScheduledEndAt is
	// optional; campaigns without one run until the number list drains.
	ScheduledAt    time.Time
	ScheduledEndAt *time.Time
	Timezone       string

	StartedAt   *time.Time
	CompletedAt *time.Time

	// NumberList holds the raw numbers to dial, one per entry, in order.
	NumberList []string

	CallerID   string
	DialPrefix string

	RoutingType RoutingType
	// Trunk is the SIP trunk name for sip_trunk routing, or the queue
	// extension for queue routing.
	Trunk string

	// IVRContext and IVRExtension locate the dialplan entry an answered
	// call lands in.
	IVRContext   string
	IVRExtension string

	// DigitOfInterest marks a call successful when the callee presses it.
	DigitOfInterest string

	// ConcurrencyLimit caps simultaneous originations. Zero means the
	// platform default.
	ConcurrencyLimit int

	// NotifyRecipient receives per-press and summary notifications.
	// Empty disables notifications for the campaign.
	NotifyRecipient string

	// CallSeq counts originations since start and drives caller ID
	// rotation.
	CallSeq int64

	TotalNumbers  int
	DialedCount   int
	AnsweredCount int
	PressedCount  int
	FailedCount   int

	// LastActivityAt advances on every origination and event.
	LastActivityAt *time.Time

	LastError string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c Campaign) Active() bool {
	return c.Status == StatusRunning
}

// NormalizeNumber strips everything but digits.
func NormalizeNumber(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return string(out)
}

type RecordStatus string

const (
	RecordPending RecordStatus = "pending"
	RecordCalling RecordStatus = "calling"
	RecordSuccess RecordStatus = "success"
	RecordFailed  RecordStatus = "failed"
)

// CallRecord is one number's outcome within a campaign.
type CallRecord struct {
	ID         string
	CampaignID string

	// Number is stored normalized, digits only. SourceLine keeps the raw
	// number-list entry it was parsed from.
	Number     string
	SourceLine string

	Status RecordStatus

	Pressed      bool
	PressedDigit string

	Attempts int

	CalledAt   *time.Time
	AnsweredAt *time.Time
	EndedAt    *time.Time

	// Cause is the hangup cause text of the last attempt.
	Cause string

	CreatedAt time.Time
	UpdatedAt time.Time
}
