package entities

import "time"

// UserTraits is the per-user denormalized rollup maintained by the trait
// aggregator. Every field is a function of the event log and can be rebuilt
// by replay; no other component writes this row.
type UserTraits struct {
	UserID   string
	LastSeen time.Time
	// Sessions7d and Sessions30d are monotonic fold totals, not decaying
	// windows: without a sweep job there is no event that subtracts. They
	// over-count relative to their names and no segment rule reads them;
	// windowed activity questions go through DaysActive28d, which IS pruned.
	Sessions7d              int
	Sessions30d             int
	OnboardingStage         string
	OnboardingCompletedAt   *time.Time
	PaywallLastSeen         *time.Time
	PaywallImpressionsTotal int
	SubscriptionStatus      string
	ActiveDates             []string
	DaysActive28d           int
	IsHeavyUser             bool
	UpdatedAt               time.Time
}

const activeDateLayout = "2006-01-02"

// Apply folds one event into the rollup. Counter updates are monotonic
// increments so replay order does not matter; timestamp fields take
// max(current, occurred_at) and never regress on out-of-order delivery.
func (t *UserTraits) Apply(event Event, heavyUserThreshold int) {
	occurred := event.OccurredAt.UTC()
	if occurred.After(t.LastSeen) {
		t.LastSeen = occurred
	}

	switch event.Name {
	case EventSessionStarted:
		t.Sessions7d++
		t.Sessions30d++
		t.markActiveDate(occurred)
	case EventPaywallPresented:
		if t.PaywallLastSeen == nil || occurred.After(*t.PaywallLastSeen) {
			t.PaywallLastSeen = &occurred
		}
		t.PaywallImpressionsTotal++
	case EventOnboardingStep:
		if step := event.StringProperty("step_id"); step != "" {
			t.OnboardingStage = step
		}
	case EventOnboardingCompleted:
		if t.OnboardingCompletedAt == nil {
			t.OnboardingCompletedAt = &occurred
		}
	case EventPurchaseSucceeded:
		t.SubscriptionStatus = SubscriptionActive
	case EventPaymentFailed:
		t.SubscriptionStatus = SubscriptionPastDue
	case EventSubscriptionCancelled:
		t.SubscriptionStatus = SubscriptionCancelled
	}

	t.IsHeavyUser = t.DaysActive28d >= heavyUserThreshold
}

// markActiveDate records the event's UTC calendar date, prunes dates older
// than 28 days relative to the newest known date, and refreshes the count.
func (t *UserTraits) markActiveDate(occurred time.Time) {
	date := occurred.Format(activeDateLayout)
	for _, existing := range t.ActiveDates {
		if existing == date {
			return
		}
	}
	t.ActiveDates = append(t.ActiveDates, date)

	newest := date
	for _, existing := range t.ActiveDates {
		if existing > newest {
			newest = existing
		}
	}
	edge, _ := time.Parse(activeDateLayout, newest)
	cutoff := edge.AddDate(0, 0, -28).Format(activeDateLayout)

	kept := t.ActiveDates[:0]
	for _, existing := range t.ActiveDates {
		if existing > cutoff {
			kept = append(kept, existing)
		}
	}
	t.ActiveDates = kept
	t.DaysActive28d = len(kept)
}

// Subscription status values mirrored from the billing webhook feed.
const (
	SubscriptionActive    = "active"
	SubscriptionPastDue   = "past_due"
	SubscriptionCancelled = "cancelled"
)
