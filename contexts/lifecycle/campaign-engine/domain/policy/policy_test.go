package policy

import (
	"testing"
	"time"

	"everreach/contexts/lifecycle/campaign-engine/domain/entities"
)

func basePolicyInput() Input {
	return Input{
		Profile: entities.Profile{
			UserID:       "user-1",
			Email:        "ada@example.com",
			Phone:        "+15551230001",
			ConsentEmail: true,
			ConsentSMS:   true,
		},
		Campaign: entities.Campaign{
			CampaignID:    "paywall-abandoned-email",
			CooldownHours: 72,
			HoldoutPct:    0,
		},
		Channel: entities.ChannelEmail,
		Now:     time.Date(2026, time.March, 10, 14, 0, 0, 0, time.UTC),
		Config: Config{
			FrequencyCap:    2,
			FrequencyWindow: 24 * time.Hour,
			QuietStartHour:  21,
			QuietEndHour:    9,
		},
	}
}

func TestCanSendAllowsWhenAllChecksPass(t *testing.T) {
	decision := CanSend(basePolicyInput())
	if !decision.Allow {
		t.Fatalf("expected allow, got deny with reason %q", decision.Reason)
	}
}

func TestCanSendDeniesWithoutEmailConsent(t *testing.T) {
	in := basePolicyInput()
	in.Profile.ConsentEmail = false
	decision := CanSend(in)
	if decision.Allow || decision.Reason != ReasonNoConsent {
		t.Fatalf("expected deny %q, got %+v", ReasonNoConsent, decision)
	}
}

func TestCanSendDeniesWithoutEmailDestination(t *testing.T) {
	in := basePolicyInput()
	in.Profile.Email = "not-an-address"
	decision := CanSend(in)
	if decision.Allow || decision.Reason != ReasonNoDestination {
		t.Fatalf("expected deny %q, got %+v", ReasonNoDestination, decision)
	}
}

func TestCanSendDeniesSMSWithoutE164Phone(t *testing.T) {
	in := basePolicyInput()
	in.Channel = entities.ChannelSMS
	in.Profile.Phone = "555-1234"
	decision := CanSend(in)
	if decision.Allow || decision.Reason != ReasonNoDestination {
		t.Fatalf("expected deny %q, got %+v", ReasonNoDestination, decision)
	}
}

func TestCanSendDeniesInsideCampaignCooldown(t *testing.T) {
	in := basePolicyInput()
	last := in.Now.Add(-24 * time.Hour)
	in.LastCampaignSend = &last
	decision := CanSend(in)
	if decision.Allow || decision.Reason != ReasonCooldown {
		t.Fatalf("expected deny %q, got %+v", ReasonCooldown, decision)
	}
}

func TestCanSendAllowsAfterCooldownElapses(t *testing.T) {
	in := basePolicyInput()
	last := in.Now.Add(-73 * time.Hour)
	in.LastCampaignSend = &last
	decision := CanSend(in)
	if !decision.Allow {
		t.Fatalf("expected allow after cooldown, got %+v", decision)
	}
}

func TestCanSendDeniesAtFrequencyCap(t *testing.T) {
	in := basePolicyInput()
	in.ChannelSendsInWindow = 2
	decision := CanSend(in)
	if decision.Allow || decision.Reason != ReasonFrequencyCap {
		t.Fatalf("expected deny %q, got %+v", ReasonFrequencyCap, decision)
	}
}

func TestCanSendIgnoresFrequencyCapWhenDisabled(t *testing.T) {
	in := basePolicyInput()
	in.Config.FrequencyCap = 0
	in.ChannelSendsInWindow = 50
	decision := CanSend(in)
	if !decision.Allow {
		t.Fatalf("expected allow with cap disabled, got %+v", decision)
	}
}

func TestCanSendDeniesDuringQuietHours(t *testing.T) {
	in := basePolicyInput()
	in.Now = time.Date(2026, time.March, 10, 23, 0, 0, 0, time.UTC)
	decision := CanSend(in)
	if decision.Allow || decision.Reason != ReasonQuietHours {
		t.Fatalf("expected deny %q, got %+v", ReasonQuietHours, decision)
	}
}

func TestCanSendEvaluatesQuietHoursInProfileTimezone(t *testing.T) {
	in := basePolicyInput()
	// 14:00 UTC is 23:00 in Tokyo, inside the 21:00-09:00 window.
	in.Profile.Timezone = "Asia/Tokyo"
	decision := CanSend(in)
	if decision.Allow || decision.Reason != ReasonQuietHours {
		t.Fatalf("expected deny %q in profile timezone, got %+v", ReasonQuietHours, decision)
	}
}

func TestCanSendChecksConsentBeforeCooldown(t *testing.T) {
	in := basePolicyInput()
	in.Profile.ConsentEmail = false
	last := in.Now.Add(-time.Hour)
	in.LastCampaignSend = &last
	in.ChannelSendsInWindow = 10
	decision := CanSend(in)
	if decision.Reason != ReasonNoConsent {
		t.Fatalf("expected first failing check %q to win, got %q", ReasonNoConsent, decision.Reason)
	}
}

func TestInQuietHoursWrapsMidnight(t *testing.T) {
	cases := []struct {
		hour int
		want bool
	}{
		{hour: 20, want: false},
		{hour: 21, want: true},
		{hour: 23, want: true},
		{hour: 0, want: true},
		{hour: 8, want: true},
		{hour: 9, want: false},
		{hour: 12, want: false},
	}
	for _, tc := range cases {
		now := time.Date(2026, time.March, 10, tc.hour, 30, 0, 0, time.UTC)
		got := inQuietHours(now, "", 21, 9)
		if got != tc.want {
			t.Fatalf("hour %d: expected quiet=%v, got %v", tc.hour, tc.want, got)
		}
	}
}

func TestInQuietHoursDisabledWhenStartEqualsEnd(t *testing.T) {
	now := time.Date(2026, time.March, 10, 23, 0, 0, 0, time.UTC)
	if inQuietHours(now, "", 9, 9) {
		t.Fatal("expected equal start/end to disable quiet hours")
	}
}

func TestHoldoutBucketIsStableAndBounded(t *testing.T) {
	first := HoldoutBucket("user-1", "heavy-users-email")
	for i := 0; i < 10; i++ {
		if got := HoldoutBucket("user-1", "heavy-users-email"); got != first {
			t.Fatalf("bucket changed between calls: %d vs %d", first, got)
		}
	}
	if first < 0 || first >= 100 {
		t.Fatalf("bucket out of range: %d", first)
	}
}

func TestInHoldoutBoundaryPercents(t *testing.T) {
	if InHoldout("user-1", "camp", 0) {
		t.Fatal("0% holdout should never suppress")
	}
	if !InHoldout("user-1", "camp", 100) {
		t.Fatal("100% holdout should always suppress")
	}
	bucket := HoldoutBucket("user-1", "camp")
	if got := InHoldout("user-1", "camp", bucket); got {
		t.Fatalf("bucket %d should be outside a %d%% holdout", bucket, bucket)
	}
	if got := InHoldout("user-1", "camp", bucket+1); !got {
		t.Fatalf("bucket %d should be inside a %d%% holdout", bucket, bucket+1)
	}
}

func TestVariantKeyDeterministicAndValid(t *testing.T) {
	variants := []string{"A", "B"}
	first := VariantKey("user-1", "paywall-abandoned-email", variants)
	if first != "A" && first != "B" {
		t.Fatalf("unexpected variant %q", first)
	}
	for i := 0; i < 10; i++ {
		if got := VariantKey("user-1", "paywall-abandoned-email", variants); got != first {
			t.Fatalf("variant changed between calls: %q vs %q", first, got)
		}
	}
}

func TestVariantKeyDegenerateInputs(t *testing.T) {
	if got := VariantKey("user-1", "camp", nil); got != "A" {
		t.Fatalf("expected default variant A, got %q", got)
	}
	if got := VariantKey("user-1", "camp", []string{"B"}); got != "B" {
		t.Fatalf("expected sole variant B, got %q", got)
	}
}
