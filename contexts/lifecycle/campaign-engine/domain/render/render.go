package render

import (
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"

	"everreach/contexts/lifecycle/campaign-engine/domain/entities"
)

// SMSSegmentLimit is the single-segment GSM-7 character budget. Longer bodies
// are truncated rather than split into multiple billable segments.
const SMSSegmentLimit = 160

// Message is the channel-agnostic rendered output handed to a transport.
type Message struct {
	To       string
	Subject  string
	Body     string
	DeepLink string
}

// Renderer substitutes {token} placeholders and assembles tracked deep links.
// Pure by construction: same inputs, same message.
type Renderer struct {
	// BaseURL fronts all deep links, e.g. https://app.everreach.io.
	BaseURL string
}

// Email renders the subject/body variant for a delivery. Unknown tokens are
// left intact so broken copy is visible in provider previews instead of
// silently blanked.
func (r Renderer) Email(tmpl entities.Template, profile entities.Profile, delivery entities.Delivery) Message {
	link := r.DeepLink(tmpl, delivery)
	tokens := tokenValues(profile, link)
	return Message{
		To:       profile.Email,
		Subject:  substitute(tmpl.Subject, tokens),
		Body:     substitute(tmpl.Body, tokens),
		DeepLink: link,
	}
}

// SMS renders the sms text variant, truncated to a single segment.
func (r Renderer) SMS(tmpl entities.Template, profile entities.Profile, delivery entities.Delivery) Message {
	link := r.DeepLink(tmpl, delivery)
	tokens := tokenValues(profile, link)
	body := substitute(tmpl.SMSText, tokens)
	if len(body) > SMSSegmentLimit {
		// Substituted profile data can be multi-byte; never cut mid-rune.
		cut := SMSSegmentLimit
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut]
	}
	return Message{
		To:       profile.Phone,
		Body:     body,
		DeepLink: link,
	}
}

// DeepLink builds the tracked link for a delivery: base + template path,
// template params, UTM attribution params, and the delivery id so clicks can
// be tied back to the exact send.
func (r Renderer) DeepLink(tmpl entities.Template, delivery entities.Delivery) string {
	base := strings.TrimRight(r.BaseURL, "/")
	path := tmpl.DeepLinkPath
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	params := url.Values{}
	keys := make([]string, 0, len(tmpl.DeepLinkParams))
	for key := range tmpl.DeepLinkParams {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		params.Set(key, tmpl.DeepLinkParams[key])
	}
	params.Set("utm_source", "lifecycle")
	params.Set("utm_campaign", delivery.CampaignID)
	params.Set("utm_variant", delivery.VariantKey)
	params.Set("d", delivery.DeliveryID)

	return base + path + "?" + params.Encode()
}

func tokenValues(profile entities.Profile, deepLink string) map[string]string {
	name := profile.UserID
	if at := strings.Index(profile.Email, "@"); at > 0 {
		name = profile.Email[:at]
	}
	return map[string]string{
		"name":      name,
		"deep_link": deepLink,
	}
}

func substitute(text string, tokens map[string]string) string {
	out := text
	for token, value := range tokens {
		out = strings.ReplaceAll(out, "{"+token+"}", value)
	}
	return out
}
