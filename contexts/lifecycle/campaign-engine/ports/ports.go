package ports

import (
	"context"
	"time"

	"everreach/contexts/lifecycle/campaign-engine/domain/entities"
)

// EventRepository is the append-only behavioral event log.
type EventRepository interface {
	// InsertEvent appends the event. When the idempotency key already exists
	// it returns inserted=false and no error; a duplicate is never a second row.
	InsertEvent(ctx context.Context, event entities.Event) (inserted bool, err error)

	// HasEventSince reports whether the user has an event with the given name
	// occurring strictly after the cutoff.
	HasEventSince(ctx context.Context, userID, eventName string, after time.Time) (bool, error)
}

// TraitsRepository stores the per-user rollup maintained by the aggregator.
type TraitsRepository interface {
	GetTraits(ctx context.Context, userID string) (entities.UserTraits, bool, error)
	UpsertTraits(ctx context.Context, traits entities.UserTraits) error
	ListTraits(ctx context.Context) ([]entities.UserTraits, error)
}

// ProfileRepository is the engine's view of the contact/consent store.
// UpdateConsent is the only engine-originated write (STOP keywords, bounces).
type ProfileRepository interface {
	GetProfile(ctx context.Context, userID string) (entities.Profile, error)
	UpdateConsent(ctx context.Context, userID string, channel entities.Channel, granted bool) error
}

// CampaignRepository reads the externally-owned campaign config snapshot.
type CampaignRepository interface {
	ListEnabledCampaigns(ctx context.Context) ([]entities.Campaign, error)
	GetCampaign(ctx context.Context, campaignID string) (entities.Campaign, error)
}

// TemplateRepository reads campaign variants.
type TemplateRepository interface {
	GetTemplate(ctx context.Context, campaignID, variantKey string) (entities.Template, error)
	ListVariantKeys(ctx context.Context, campaignID string) ([]string, error)
}

// DeliveryFilter narrows delivery projections for the read API.
type DeliveryFilter struct {
	UserID     string
	CampaignID string
	Status     entities.DeliveryStatus
	Limit      int
}

// DeliveryRepository owns the delivery queue. All cross-component
// coordination flows through conditional writes here, never shared memory.
type DeliveryRepository interface {
	// InsertDeliveryIfAbsent atomically inserts the delivery unless the same
	// (user, campaign) already has a queued delivery or a recorded holdout
	// suppression. Returns inserted=false when the guard blocked it.
	InsertDeliveryIfAbsent(ctx context.Context, delivery entities.Delivery) (inserted bool, err error)

	GetDelivery(ctx context.Context, deliveryID string) (entities.Delivery, error)
	ListDeliveries(ctx context.Context, filter DeliveryFilter) ([]entities.Delivery, error)

	// LastSentAt returns the sent_at of the newest sent delivery for the
	// (user, campaign) pair, or nil.
	LastSentAt(ctx context.Context, userID, campaignID string) (*time.Time, error)

	// CountChannelSends counts sends to the user on the channel across all
	// campaigns since the cutoff.
	CountChannelSends(ctx context.Context, userID string, channel entities.Channel, since time.Time) (int, error)

	// ClaimQueued atomically leases up to limit queued deliveries for the
	// channel, oldest first, skipping rows whose next attempt is in the
	// future or whose lease has not expired. Two concurrent claims never
	// return the same row.
	ClaimQueued(ctx context.Context, channel entities.Channel, workerID string, now time.Time, leaseFor time.Duration, limit int) ([]entities.Delivery, error)

	// MarkSent transitions a claimed delivery to sent.
	MarkSent(ctx context.Context, deliveryID, workerID, externalID string, at time.Time) error

	// MarkSuppressed transitions a claimed delivery to suppressed.
	MarkSuppressed(ctx context.Context, deliveryID, workerID, reason string, at time.Time) error

	// MarkFailed transitions a claimed delivery to failed.
	MarkFailed(ctx context.Context, deliveryID, workerID, reason string, at time.Time) error

	// ReleaseForRetry returns a claimed delivery to the queue with an
	// incremented attempt count and the next attempt time.
	ReleaseForRetry(ctx context.Context, deliveryID, workerID string, nextAttemptAt time.Time) error

	// SetClicked stamps clicked_at once; later calls are no-ops.
	SetClicked(ctx context.Context, deliveryID string, at time.Time) error

	// ListAttributable returns sent, not-yet-attributed deliveries for the
	// user whose sent_at falls inside [since, until].
	ListAttributable(ctx context.Context, userID string, since, until time.Time) ([]entities.Delivery, error)

	// SetAttributedIfNull fills the attribution fields only when still null.
	// Returns updated=false when the delivery was already attributed.
	SetAttributedIfNull(ctx context.Context, deliveryID string, at time.Time, revenueCents int64) (updated bool, err error)
}

// Transport is the opaque provider contract: send one rendered message,
// return the provider's message id, or fail with a typed transport error.
type Transport interface {
	Send(ctx context.Context, to string, subject string, body string) (providerMessageID string, err error)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// OutcomePublisher broadcasts delivery lifecycle envelopes for dashboards and
// downstream consumers. Best effort; publish failures never fail a pass.
type OutcomePublisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}
