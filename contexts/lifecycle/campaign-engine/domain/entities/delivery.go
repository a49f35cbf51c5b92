package entities

import "time"

type DeliveryStatus string

const (
	DeliveryQueued     DeliveryStatus = "queued"
	DeliverySent       DeliveryStatus = "sent"
	DeliverySuppressed DeliveryStatus = "suppressed"
	DeliveryFailed     DeliveryStatus = "failed"
)

// Delivery is one queued/sent/suppressed/failed attempt to message one user
// via one campaign/variant/channel. It is the engine's single point of shared
// mutable state: scheduler inserts, workers transition status, the attribution
// tracker fills the attributed_* fields.
type Delivery struct {
	DeliveryID             string
	CampaignID             string
	UserID                 string
	VariantKey             string
	Channel                Channel
	Status                 DeliveryStatus
	Reason                 string
	Context                map[string]any
	ExternalID             string
	Attempts               int
	NextAttemptAt          time.Time
	LockedBy               string
	LockedUntil            *time.Time
	SentAt                 *time.Time
	ClickedAt              *time.Time
	AttributedPurchaseAt   *time.Time
	AttributedRevenueCents *int64
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Terminal reports whether the delivery can no longer transition status.
// Attribution fields on sent deliveries may still be populated within the
// attribution window.
func (d Delivery) Terminal() bool {
	switch d.Status {
	case DeliverySent, DeliverySuppressed, DeliveryFailed:
		return true
	default:
		return false
	}
}

// Attributable reports whether a conversion at the given time can credit this
// delivery under the supplied window.
func (d Delivery) Attributable(at time.Time, window time.Duration) bool {
	if d.Status != DeliverySent || d.SentAt == nil || d.AttributedPurchaseAt != nil {
		return false
	}
	elapsed := at.Sub(*d.SentAt)
	return elapsed >= 0 && elapsed <= window
}
