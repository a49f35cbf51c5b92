package entities

import "time"

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

func IsSupportedChannel(value Channel) bool {
	return value == ChannelEmail || value == ChannelSMS
}

// SegmentRuleKind enumerates the closed set of entry rules the engine can
// evaluate. Rules are tagged variants rather than free-form query strings so
// the catalog stays type-checked and unit-testable.
type SegmentRuleKind string

const (
	RuleOnboardingStuck  SegmentRuleKind = "onboarding_stuck"
	RulePaywallAbandoned SegmentRuleKind = "paywall_abandoned"
	RuleEventWithin      SegmentRuleKind = "event_within"
	RuleInactivity       SegmentRuleKind = "inactivity"
	RuleHeavyUsers       SegmentRuleKind = "heavy_users"
)

// SegmentRule parameterizes one rule kind. Only the fields relevant to the
// kind are set; the evaluator ignores the rest.
type SegmentRule struct {
	Kind SegmentRuleKind

	// RuleOnboardingStuck: stuck when last_seen older than StaleHours and an
	// onboarding step exists but completion does not.
	// RulePaywallAbandoned: paywall seen more than StaleHours ago with no
	// purchase after it.
	StaleHours int

	// RuleEventWithin: EventName occurred within WindowHours.
	EventName   string
	WindowHours int

	// RuleInactivity: last_seen older than Days with an active subscription.
	Days int

	// RuleHeavyUsers: days_active_28d at or above Threshold.
	Threshold int
}

// Campaign is the externally-owned config snapshot the scheduler reads each
// tick. The engine never mutates campaigns.
type Campaign struct {
	CampaignID    string
	Name          string
	Channel       Channel
	Segment       string
	Rule          SegmentRule
	CooldownHours int
	HoldoutPct    int
	Enabled       bool
	CreatedAt     time.Time
}

// SegmentMember is one row returned by live segment evaluation.
type SegmentMember struct {
	UserID     string
	VariantKey string
	Reason     string
}

// CatalogSegments returns the built-in segment catalog keyed by name,
// mirroring the lifecycle views the product ships with.
func CatalogSegments() map[string]SegmentRule {
	return map[string]SegmentRule{
		"onboarding_stuck":  {Kind: RuleOnboardingStuck, StaleHours: 24},
		"paywall_abandoned": {Kind: RulePaywallAbandoned, StaleHours: 2},
		"payment_failed":    {Kind: RuleEventWithin, EventName: EventPaymentFailed, WindowHours: 48},
		"inactive_7d":       {Kind: RuleInactivity, Days: 7},
		"heavy_users":       {Kind: RuleHeavyUsers, Threshold: 16},
	}
}

// SeedCampaigns returns the default campaign catalog used for local runs and
// seeding: one campaign per built-in segment with the product's cooldowns.
func SeedCampaigns(now time.Time) []Campaign {
	segments := CatalogSegments()
	return []Campaign{
		{
			CampaignID:    "onboarding-stuck-email",
			Name:          "Onboarding Stuck Nudge",
			Channel:       ChannelEmail,
			Segment:       "onboarding_stuck",
			Rule:          segments["onboarding_stuck"],
			CooldownHours: 48,
			HoldoutPct:    10,
			Enabled:       true,
			CreatedAt:     now,
		},
		{
			CampaignID:    "paywall-abandoned-email",
			Name:          "Paywall Abandoned Recovery",
			Channel:       ChannelEmail,
			Segment:       "paywall_abandoned",
			Rule:          segments["paywall_abandoned"],
			CooldownHours: 72,
			HoldoutPct:    10,
			Enabled:       true,
			CreatedAt:     now,
		},
		{
			CampaignID:    "payment-failed-email",
			Name:          "Payment Failed Win-back",
			Channel:       ChannelEmail,
			Segment:       "payment_failed",
			Rule:          segments["payment_failed"],
			CooldownHours: 48,
			HoldoutPct:    0,
			Enabled:       true,
			CreatedAt:     now,
		},
		{
			CampaignID:    "inactive-7d-sms",
			Name:          "Inactive 7 Days Re-engage",
			Channel:       ChannelSMS,
			Segment:       "inactive_7d",
			Rule:          segments["inactive_7d"],
			CooldownHours: 168,
			HoldoutPct:    20,
			Enabled:       true,
			CreatedAt:     now,
		},
		{
			CampaignID:    "heavy-users-email",
			Name:          "VIP Nurture",
			Channel:       ChannelEmail,
			Segment:       "heavy_users",
			Rule:          segments["heavy_users"],
			CooldownHours: 336,
			HoldoutPct:    50,
			Enabled:       true,
			CreatedAt:     now,
		},
	}
}
