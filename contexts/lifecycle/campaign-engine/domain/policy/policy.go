package policy

import (
	"hash/fnv"
	"time"

	"everreach/contexts/lifecycle/campaign-engine/domain/entities"
)

// Deny reasons, in check order. The first failing check wins.
const (
	ReasonNoConsent     = "no_consent"
	ReasonNoDestination = "no_destination"
	ReasonCooldown      = "cooldown"
	ReasonFrequencyCap  = "frequency_cap"
	ReasonQuietHours    = "quiet_hours"
	ReasonHoldout       = "holdout"
)

// Config carries the global sending policy knobs.
type Config struct {
	// FrequencyCap is the maximum sends per channel per user inside
	// FrequencyWindow, across all campaigns.
	FrequencyCap    int
	FrequencyWindow time.Duration

	// QuietStartHour/QuietEndHour bound the local-time do-not-disturb window.
	// The window may wrap midnight (start 21, end 8).
	QuietStartHour int
	QuietEndHour   int
}

// Input is everything CanSend needs, gathered by the caller so the decision
// itself stays pure and clock-free.
type Input struct {
	Profile  entities.Profile
	Campaign entities.Campaign
	Channel  entities.Channel
	Now      time.Time

	// LastCampaignSend is the sent_at of the newest sent/clicked delivery for
	// this (user, campaign), nil when none exists.
	LastCampaignSend *time.Time

	// ChannelSendsInWindow counts sends to this user on this channel across
	// all campaigns inside Config.FrequencyWindow.
	ChannelSendsInWindow int

	Config Config
}

type Decision struct {
	Allow  bool
	Reason string
}

func allow() Decision {
	return Decision{Allow: true}
}

func deny(reason string) Decision {
	return Decision{Allow: false, Reason: reason}
}

// CanSend applies the sending policy checks in fixed order: consent, cooldown,
// frequency cap, quiet hours, holdout. It is side-effect-free so it can be
// driven exhaustively with synthetic clocks and time zones.
func CanSend(in Input) Decision {
	switch in.Channel {
	case entities.ChannelEmail:
		if !in.Profile.ConsentEmail {
			return deny(ReasonNoConsent)
		}
		if !in.Profile.HasEmail() {
			return deny(ReasonNoDestination)
		}
	case entities.ChannelSMS:
		if !in.Profile.ConsentSMS {
			return deny(ReasonNoConsent)
		}
		if !in.Profile.HasValidPhone() {
			return deny(ReasonNoDestination)
		}
	default:
		return deny(ReasonNoDestination)
	}

	if in.LastCampaignSend != nil {
		cooldown := time.Duration(in.Campaign.CooldownHours) * time.Hour
		if in.Now.Sub(*in.LastCampaignSend) < cooldown {
			return deny(ReasonCooldown)
		}
	}

	if in.Config.FrequencyCap > 0 && in.ChannelSendsInWindow >= in.Config.FrequencyCap {
		return deny(ReasonFrequencyCap)
	}

	if inQuietHours(in.Now, in.Profile.Timezone, in.Config.QuietStartHour, in.Config.QuietEndHour) {
		return deny(ReasonQuietHours)
	}

	if InHoldout(in.Profile.UserID, in.Campaign.CampaignID, in.Campaign.HoldoutPct) {
		return deny(ReasonHoldout)
	}

	return allow()
}

// InHoldout deterministically assigns the user to the campaign's holdout
// bucket: FNV-1a of "user:campaign" mod 100 compared against holdout_pct.
// Stable across processes and restarts.
func InHoldout(userID, campaignID string, holdoutPct int) bool {
	if holdoutPct <= 0 {
		return false
	}
	if holdoutPct >= 100 {
		return true
	}
	return HoldoutBucket(userID, campaignID) < holdoutPct
}

// HoldoutBucket returns the user's stable bucket in [0,100) for a campaign.
func HoldoutBucket(userID, campaignID string) int {
	h := fnv.New64a()
	h.Write([]byte(userID))
	h.Write([]byte(":"))
	h.Write([]byte(campaignID))
	return int(h.Sum64() % 100)
}

// VariantKey deterministically splits users across the campaign's A/B
// variants when the segment does not pin one.
func VariantKey(userID, campaignID string, variants []string) string {
	if len(variants) == 0 {
		return "A"
	}
	if len(variants) == 1 {
		return variants[0]
	}
	h := fnv.New64a()
	h.Write([]byte("variant:"))
	h.Write([]byte(userID))
	h.Write([]byte(":"))
	h.Write([]byte(campaignID))
	return variants[h.Sum64()%uint64(len(variants))]
}

func inQuietHours(now time.Time, timezone string, startHour, endHour int) bool {
	if startHour == endHour {
		return false
	}
	loc := time.UTC
	if timezone != "" {
		if parsed, err := time.LoadLocation(timezone); err == nil {
			loc = parsed
		}
	}
	hour := now.In(loc).Hour()
	if startHour < endHour {
		return hour >= startHour && hour < endHour
	}
	// Window wraps midnight, e.g. 21:00-08:00.
	return hour >= startHour || hour < endHour
}
