package entities

// Template is one renderable variant of a campaign message. Variants are
// immutable once a sent delivery references them; new copy gets a new key.
type Template struct {
	CampaignID     string
	VariantKey     string
	Subject        string
	Body           string
	SMSText        string
	DeepLinkPath   string
	DeepLinkParams map[string]string
}

// SeedTemplates returns A/B variant pairs for the seed campaign catalog.
func SeedTemplates() []Template {
	return []Template{
		{
			CampaignID:   "onboarding-stuck-email",
			VariantKey:   "A",
			Subject:      "Pick up where you left off",
			Body:         "Hi {name},\n\nYou're a couple of steps away from finishing setup.\n\n[Continue setup]({deep_link})",
			DeepLinkPath: "/onboarding",
		},
		{
			CampaignID:   "onboarding-stuck-email",
			VariantKey:   "B",
			Subject:      "Need a hand getting started?",
			Body:         "Hi {name},\n\nMost people finish setup in under two minutes.\n\n[Finish now]({deep_link})",
			DeepLinkPath: "/onboarding",
		},
		{
			CampaignID:   "paywall-abandoned-email",
			VariantKey:   "A",
			Subject:      "Complete your purchase",
			Body:         "Hi {name},\n\nWe noticed you were interested in EverReach Pro.\n\n[Complete Purchase]({deep_link})",
			DeepLinkPath: "/upgrade",
		},
		{
			CampaignID:     "paywall-abandoned-email",
			VariantKey:     "B",
			Subject:        "Your upgrade is waiting",
			Body:           "Hi {name},\n\nPro unlocks unlimited contacts and reminders.\n\n[See plans]({deep_link})",
			DeepLinkPath:   "/upgrade",
			DeepLinkParams: map[string]string{"offer": "annual"},
		},
		{
			CampaignID:   "payment-failed-email",
			VariantKey:   "A",
			Subject:      "There was a problem with your payment",
			Body:         "Hi {name},\n\nYour last payment didn't go through. Update your card to keep Pro.\n\n[Update payment]({deep_link})",
			DeepLinkPath: "/settings/billing",
		},
		{
			CampaignID:   "payment-failed-email",
			VariantKey:   "B",
			Subject:      "Action needed: payment failed",
			Body:         "Hi {name},\n\nWe couldn't charge your card. Fix it in one tap.\n\n[Fix payment]({deep_link})",
			DeepLinkPath: "/settings/billing",
		},
		{
			CampaignID:   "inactive-7d-sms",
			VariantKey:   "A",
			SMSText:      "Hi {name}, your contacts miss you. Jump back in: {deep_link}",
			DeepLinkPath: "/home",
		},
		{
			CampaignID:   "inactive-7d-sms",
			VariantKey:   "B",
			SMSText:      "{name}, 3 relationships need attention this week. {deep_link}",
			DeepLinkPath: "/home",
		},
		{
			CampaignID:   "heavy-users-email",
			VariantKey:   "A",
			Subject:      "You're in the top 10% of users",
			Body:         "Hi {name},\n\nThanks for being a power user. Here's what's new.\n\n[See what's new]({deep_link})",
			DeepLinkPath: "/whats-new",
		},
		{
			CampaignID:   "heavy-users-email",
			VariantKey:   "B",
			Subject:      "A thank-you from the team",
			Body:         "Hi {name},\n\nYou get early access to our newest features.\n\n[Try them first]({deep_link})",
			DeepLinkPath: "/whats-new",
		},
	}
}
