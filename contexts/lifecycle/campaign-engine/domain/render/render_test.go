package render

import (
	"strings"
	"testing"
	"unicode/utf8"

	"everreach/contexts/lifecycle/campaign-engine/domain/entities"
)

func TestDeepLinkCarriesTrackingParams(t *testing.T) {
	r := Renderer{BaseURL: "https://app.everreach.io/"}
	tmpl := entities.Template{
		CampaignID:     "paywall-abandoned-email",
		VariantKey:     "B",
		DeepLinkPath:   "/upgrade",
		DeepLinkParams: map[string]string{"offer": "annual"},
	}
	delivery := entities.Delivery{
		DeliveryID: "del-1",
		CampaignID: "paywall-abandoned-email",
		VariantKey: "B",
	}

	got := r.DeepLink(tmpl, delivery)
	want := "https://app.everreach.io/upgrade?d=del-1&offer=annual&utm_campaign=paywall-abandoned-email&utm_source=lifecycle&utm_variant=B"
	if got != want {
		t.Fatalf("deep link mismatch:\n got %s\nwant %s", got, want)
	}
}

func TestDeepLinkNormalizesPath(t *testing.T) {
	r := Renderer{BaseURL: "https://app.everreach.io"}
	delivery := entities.Delivery{DeliveryID: "del-2", CampaignID: "c", VariantKey: "A"}

	got := r.DeepLink(entities.Template{DeepLinkPath: ""}, delivery)
	if !strings.HasPrefix(got, "https://app.everreach.io/?") {
		t.Fatalf("empty path should fall back to /: %s", got)
	}

	got = r.DeepLink(entities.Template{DeepLinkPath: "home"}, delivery)
	if !strings.HasPrefix(got, "https://app.everreach.io/home?") {
		t.Fatalf("bare path should gain a leading slash: %s", got)
	}
}

func TestEmailSubstitutesTokens(t *testing.T) {
	r := Renderer{BaseURL: "https://app.everreach.io"}
	tmpl := entities.Template{
		CampaignID:   "onboarding-stuck-email",
		VariantKey:   "A",
		Subject:      "Hey {name}",
		Body:         "Hi {name}, finish up: {deep_link}",
		DeepLinkPath: "/onboarding",
	}
	profile := entities.Profile{UserID: "user-1", Email: "ada@example.com"}
	delivery := entities.Delivery{DeliveryID: "del-3", CampaignID: "onboarding-stuck-email", VariantKey: "A"}

	msg := r.Email(tmpl, profile, delivery)
	if msg.To != "ada@example.com" {
		t.Fatalf("unexpected recipient %q", msg.To)
	}
	if msg.Subject != "Hey ada" {
		t.Fatalf("name token should use the email local part: %q", msg.Subject)
	}
	if !strings.Contains(msg.Body, msg.DeepLink) {
		t.Fatalf("body should embed the deep link: %q", msg.Body)
	}
}

func TestEmailFallsBackToUserIDWithoutEmailLocalPart(t *testing.T) {
	r := Renderer{BaseURL: "https://app.everreach.io"}
	tmpl := entities.Template{Subject: "Hey {name}"}
	profile := entities.Profile{UserID: "user-9"}
	msg := r.Email(tmpl, profile, entities.Delivery{DeliveryID: "del-4"})
	if msg.Subject != "Hey user-9" {
		t.Fatalf("expected user id fallback, got %q", msg.Subject)
	}
}

func TestRenderLeavesUnknownTokensIntact(t *testing.T) {
	r := Renderer{BaseURL: "https://app.everreach.io"}
	tmpl := entities.Template{Body: "Hi {name}, see {promo_code}"}
	profile := entities.Profile{UserID: "user-1", Email: "ada@example.com"}
	msg := r.Email(tmpl, profile, entities.Delivery{DeliveryID: "del-5"})
	if !strings.Contains(msg.Body, "{promo_code}") {
		t.Fatalf("unknown token should survive rendering: %q", msg.Body)
	}
}

func TestSMSTruncatesToSingleSegment(t *testing.T) {
	r := Renderer{BaseURL: "https://app.everreach.io"}
	tmpl := entities.Template{
		SMSText:      strings.Repeat("x", 200),
		DeepLinkPath: "/home",
	}
	profile := entities.Profile{UserID: "user-1", Phone: "+15551230001"}
	msg := r.SMS(tmpl, profile, entities.Delivery{DeliveryID: "del-6"})
	if len(msg.Body) != SMSSegmentLimit {
		t.Fatalf("expected body truncated to %d chars, got %d", SMSSegmentLimit, len(msg.Body))
	}
	if msg.To != "+15551230001" {
		t.Fatalf("unexpected recipient %q", msg.To)
	}
}

func TestSMSTruncationKeepsRuneBoundary(t *testing.T) {
	r := Renderer{BaseURL: "https://app.everreach.io"}
	// 159 ASCII bytes followed by multi-byte runes puts the cut inside "é".
	tmpl := entities.Template{SMSText: strings.Repeat("x", 159) + "été fini"}
	profile := entities.Profile{UserID: "user-1", Phone: "+15551230001"}
	msg := r.SMS(tmpl, profile, entities.Delivery{DeliveryID: "del-8"})
	if len(msg.Body) > SMSSegmentLimit {
		t.Fatalf("body exceeds segment limit: %d bytes", len(msg.Body))
	}
	if !utf8.ValidString(msg.Body) {
		t.Fatalf("truncation split a rune: %q", msg.Body)
	}
	if !strings.HasSuffix(msg.Body, "x") {
		t.Fatalf("expected cut before the two-byte rune, got %q", msg.Body[len(msg.Body)-4:])
	}
}

func TestSMSUnderLimitUntouched(t *testing.T) {
	r := Renderer{BaseURL: "https://app.everreach.io"}
	tmpl := entities.Template{SMSText: "Hi {name}"}
	profile := entities.Profile{UserID: "user-1", Phone: "+15551230001"}
	msg := r.SMS(tmpl, profile, entities.Delivery{DeliveryID: "del-7"})
	if msg.Body != "Hi user-1" {
		t.Fatalf("unexpected body %q", msg.Body)
	}
}
