package unit

import (
	"context"
	"strings"
	"testing"
	"time"

	campaignengine "everreach/contexts/lifecycle/campaign-engine"
	"everreach/contexts/lifecycle/campaign-engine/application/commands"
	"everreach/contexts/lifecycle/campaign-engine/domain/entities"
	httptransport "everreach/contexts/lifecycle/campaign-engine/transport/http"
)

func TestClickRedirectStampsDeliveryOnce(t *testing.T) {
	module := newEngine(t)
	delivery := queuePaymentFailed(t, module, "user-1")
	if _, err := module.Handler.SendEmailHandler(context.Background()); err != nil {
		t.Fatalf("send pass failed: %v", err)
	}

	clickAt := engineNow.Add(2 * time.Hour)
	module.Store.SetNow(clickAt)
	destination, err := module.Handler.RedirectHandler(context.Background(), delivery.DeliveryID)
	if err != nil {
		t.Fatalf("redirect failed: %v", err)
	}
	if !strings.Contains(destination, "utm_campaign=payment-failed-email") ||
		!strings.Contains(destination, "d="+delivery.DeliveryID) {
		t.Fatalf("destination is missing tracking params: %s", destination)
	}

	module.Store.SetNow(clickAt.Add(time.Hour))
	if _, err := module.Handler.RedirectHandler(context.Background(), delivery.DeliveryID); err != nil {
		t.Fatalf("second redirect failed: %v", err)
	}

	row, err := module.Handler.GetDeliveryHandler(context.Background(), delivery.DeliveryID)
	if err != nil {
		t.Fatalf("get delivery failed: %v", err)
	}
	if row.ClickedAt != clickAt.Format(time.RFC3339) {
		t.Fatalf("first click should win, got %s", row.ClickedAt)
	}
}

func TestRedirectUnknownDeliveryFails(t *testing.T) {
	module := newEngine(t)
	if _, err := module.Handler.RedirectHandler(context.Background(), "missing"); err == nil {
		t.Fatal("expected unknown delivery error")
	}
}

func TestConversionAttributesLastTouchWithinWindow(t *testing.T) {
	module := newEngine(t)
	delivery := queuePaymentFailed(t, module, "user-1")
	if _, err := module.Handler.SendEmailHandler(context.Background()); err != nil {
		t.Fatalf("send pass failed: %v", err)
	}

	module.Store.SetNow(engineNow.Add(48 * time.Hour))
	resp := ingestEvent(t, module, httptransport.IngestEventRequest{
		UserID:     "user-1",
		Name:       entities.EventPurchaseSucceeded,
		Properties: map[string]any{"revenue_cents": float64(2999)},
	})
	if !resp.Attributed {
		t.Fatalf("conversion inside the window should attribute: %+v", resp)
	}

	row, err := module.Handler.GetDeliveryHandler(context.Background(), delivery.DeliveryID)
	if err != nil {
		t.Fatalf("get delivery failed: %v", err)
	}
	if row.AttributedPurchaseAt == "" || row.AttributedRevenueCents == nil || *row.AttributedRevenueCents != 2999 {
		t.Fatalf("unexpected attribution state: %+v", row)
	}

	// A replayed conversion cannot double-attribute.
	resp = ingestEvent(t, module, httptransport.IngestEventRequest{
		UserID:     "user-1",
		Name:       entities.EventPurchaseSucceeded,
		Properties: map[string]any{"revenue_cents": float64(4999)},
	})
	if resp.Attributed {
		t.Fatal("second conversion should find no unattributed delivery")
	}
	row, _ = module.Handler.GetDeliveryHandler(context.Background(), delivery.DeliveryID)
	if *row.AttributedRevenueCents != 2999 {
		t.Fatalf("original attribution should be retained, got %d", *row.AttributedRevenueCents)
	}
}

func TestConversionOutsideWindowIsNotAttributed(t *testing.T) {
	module := newEngine(t)
	queuePaymentFailed(t, module, "user-1")
	if _, err := module.Handler.SendEmailHandler(context.Background()); err != nil {
		t.Fatalf("send pass failed: %v", err)
	}

	module.Store.SetNow(engineNow.Add(8 * 24 * time.Hour))
	resp := ingestEvent(t, module, httptransport.IngestEventRequest{
		UserID: "user-1",
		Name:   entities.EventPurchaseSucceeded,
	})
	if resp.Attributed {
		t.Fatal("conversion past the window should not attribute")
	}
}

// seedTwoSends drives two sent deliveries for the same user through two
// campaigns, a day apart, and returns them oldest first.
func seedTwoSends(t *testing.T, module campaignengine.Module) (first, second httptransport.DeliveryDTO) {
	t.Helper()
	for _, campaign := range entities.SeedCampaigns(engineNow) {
		campaign.Enabled = false
		module.Store.SeedCampaign(campaign)
	}
	for _, id := range []string{"touch-1", "touch-2"} {
		module.Store.SeedTemplate(entities.Template{
			CampaignID: id,
			VariantKey: "A",
			Subject:    "Hello {name}",
			Body:       "Hi {name}: {deep_link}",
		})
	}
	seedEmailProfile(module, "user-1", "ada@example.com")
	if err := module.Store.UpsertTraits(context.Background(), entities.UserTraits{
		UserID:        "user-1",
		LastSeen:      engineNow,
		DaysActive28d: 3,
	}); err != nil {
		t.Fatalf("seed traits: %v", err)
	}

	sendVia := func(campaignID string, at time.Time) httptransport.DeliveryDTO {
		module.Store.SeedCampaign(entities.Campaign{
			CampaignID:    campaignID,
			Name:          campaignID,
			Channel:       entities.ChannelEmail,
			Segment:       "heavy_users",
			Rule:          entities.SegmentRule{Kind: entities.RuleHeavyUsers, Threshold: 1},
			CooldownHours: 720,
			Enabled:       true,
		})
		module.Store.SetNow(at)
		report, err := module.Handler.RunCampaignsHandler(context.Background())
		if err != nil || report.TotalQueued != 1 {
			t.Fatalf("scheduling %s: report=%+v err=%v", campaignID, report, err)
		}
		if _, err := module.Handler.SendEmailHandler(context.Background()); err != nil {
			t.Fatalf("sending %s: %v", campaignID, err)
		}
		rows := userDeliveries(t, module, "user-1")
		row := rows[len(rows)-1]
		if row.CampaignID != campaignID || row.Status != "sent" {
			t.Fatalf("unexpected delivery for %s: %+v", campaignID, row)
		}
		return row
	}

	first = sendVia("touch-1", engineNow)
	second = sendVia("touch-2", engineNow.Add(24*time.Hour))
	return first, second
}

func TestLastTouchPicksNewestDelivery(t *testing.T) {
	module := newEngine(t)
	first, second := seedTwoSends(t, module)

	module.Store.SetNow(engineNow.Add(48 * time.Hour))
	resp := ingestEvent(t, module, httptransport.IngestEventRequest{
		UserID:     "user-1",
		Name:       entities.EventPurchaseSucceeded,
		Properties: map[string]any{"revenue_cents": float64(1500)},
	})
	if !resp.Attributed {
		t.Fatalf("expected attribution: %+v", resp)
	}

	newest, _ := module.Handler.GetDeliveryHandler(context.Background(), second.DeliveryID)
	oldest, _ := module.Handler.GetDeliveryHandler(context.Background(), first.DeliveryID)
	if newest.AttributedPurchaseAt == "" {
		t.Fatal("last touch should credit the newest send")
	}
	if oldest.AttributedPurchaseAt != "" {
		t.Fatal("older send should stay unattributed")
	}
}

func TestFirstTouchPicksOldestDelivery(t *testing.T) {
	settings := engineSettings()
	settings.AttributionMode = commands.AttributionFirstTouch
	module := newEngineWith(t, settings)
	first, second := seedTwoSends(t, module)

	module.Store.SetNow(engineNow.Add(48 * time.Hour))
	resp := ingestEvent(t, module, httptransport.IngestEventRequest{
		UserID: "user-1",
		Name:   entities.EventPurchaseSucceeded,
	})
	if !resp.Attributed {
		t.Fatalf("expected attribution: %+v", resp)
	}

	oldest, _ := module.Handler.GetDeliveryHandler(context.Background(), first.DeliveryID)
	newest, _ := module.Handler.GetDeliveryHandler(context.Background(), second.DeliveryID)
	if oldest.AttributedPurchaseAt == "" {
		t.Fatal("first touch should credit the oldest send")
	}
	if newest.AttributedPurchaseAt != "" {
		t.Fatal("newer send should stay unattributed")
	}
}
