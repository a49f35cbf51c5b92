package entities

import "time"

// Well-known behavioral event names the engine reacts to.
const (
	EventSessionStarted        = "session_started"
	EventPaywallPresented      = "paywall_presented"
	EventOnboardingStep        = "onboarding_step_completed"
	EventOnboardingCompleted   = "onboarding_completed"
	EventPurchaseSucceeded     = "purchase_succeeded"
	EventPaymentFailed         = "payment_failed"
	EventSubscriptionCancelled = "subscription_cancelled"
)

// Event is one append-only row in the behavioral event log.
// Rows are immutable once written; duplicate idempotency keys are no-ops.
type Event struct {
	EventID        string
	UserID         string
	AnonymousID    string
	Name           string
	Properties     map[string]any
	OccurredAt     time.Time
	Source         string
	IdempotencyKey string
	ReceivedAt     time.Time
}

func (e Event) IntProperty(key string) (int64, bool) {
	raw, ok := e.Properties[key]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

func (e Event) StringProperty(key string) string {
	raw, ok := e.Properties[key]
	if !ok {
		return ""
	}
	value, _ := raw.(string)
	return value
}
