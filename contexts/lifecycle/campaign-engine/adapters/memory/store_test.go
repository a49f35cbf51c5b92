package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"everreach/contexts/lifecycle/campaign-engine/domain/entities"
	domainerrors "everreach/contexts/lifecycle/campaign-engine/domain/errors"
	"everreach/contexts/lifecycle/campaign-engine/ports"
)

var storeNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func queuedDelivery(id string, createdAt time.Time) entities.Delivery {
	return entities.Delivery{
		DeliveryID:    id,
		CampaignID:    "paywall-abandoned-email",
		UserID:        "user-1",
		VariantKey:    "A",
		Channel:       entities.ChannelEmail,
		Status:        entities.DeliveryQueued,
		NextAttemptAt: createdAt,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

func TestInsertEventDeduplicatesByIdempotencyKey(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	event := entities.Event{EventID: "evt-1", UserID: "user-1", Name: "session_started", IdempotencyKey: "key-1"}
	inserted, err := store.InsertEvent(ctx, event)
	if err != nil || !inserted {
		t.Fatalf("expected first insert, got inserted=%v err=%v", inserted, err)
	}

	event.EventID = "evt-2"
	inserted, err = store.InsertEvent(ctx, event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inserted {
		t.Fatal("duplicate idempotency key should be a no-op")
	}
	if store.EventCount() != 1 {
		t.Fatalf("expected one stored event, got %d", store.EventCount())
	}
}

func TestInsertEventWithoutKeyAlwaysAppends(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		inserted, err := store.InsertEvent(ctx, entities.Event{EventID: "evt", UserID: "user-1", Name: "session_started"})
		if err != nil || !inserted {
			t.Fatalf("insert %d failed: inserted=%v err=%v", i, inserted, err)
		}
	}
	if store.EventCount() != 3 {
		t.Fatalf("expected 3 events, got %d", store.EventCount())
	}
}

func TestInsertDeliveryIfAbsentBlocksQueuedRow(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	inserted, err := store.InsertDeliveryIfAbsent(ctx, queuedDelivery("del-1", storeNow))
	if err != nil || !inserted {
		t.Fatalf("expected first insert, got inserted=%v err=%v", inserted, err)
	}

	inserted, err = store.InsertDeliveryIfAbsent(ctx, queuedDelivery("del-2", storeNow.Add(time.Minute)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inserted {
		t.Fatal("second queued row for same user/campaign should be rejected")
	}
}

func TestInsertDeliveryIfAbsentBlocksHoldoutRow(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	holdout := queuedDelivery("del-1", storeNow)
	holdout.Status = entities.DeliverySuppressed
	holdout.Reason = "holdout"
	if inserted, err := store.InsertDeliveryIfAbsent(ctx, holdout); err != nil || !inserted {
		t.Fatalf("seed insert failed: inserted=%v err=%v", inserted, err)
	}

	inserted, err := store.InsertDeliveryIfAbsent(ctx, queuedDelivery("del-2", storeNow.Add(time.Hour)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inserted {
		t.Fatal("holdout membership row should block re-queueing")
	}
}

func TestInsertDeliveryIfAbsentAllowsAfterTerminalNonHoldout(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	suppressed := queuedDelivery("del-1", storeNow)
	suppressed.Status = entities.DeliverySuppressed
	suppressed.Reason = "consent_revoked"
	if inserted, _ := store.InsertDeliveryIfAbsent(ctx, suppressed); !inserted {
		t.Fatal("seed insert failed")
	}

	inserted, err := store.InsertDeliveryIfAbsent(ctx, queuedDelivery("del-2", storeNow.Add(time.Hour)))
	if err != nil || !inserted {
		t.Fatalf("re-queue after non-holdout suppression should insert, got inserted=%v err=%v", inserted, err)
	}
}

func TestClaimQueuedRespectsChannelReadinessAndOrder(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	second := queuedDelivery("del-2", storeNow.Add(-time.Minute))
	second.UserID = "user-2"
	first := queuedDelivery("del-1", storeNow.Add(-2*time.Minute))

	future := queuedDelivery("del-3", storeNow.Add(-3*time.Minute))
	future.UserID = "user-3"
	future.NextAttemptAt = storeNow.Add(time.Hour)

	sms := queuedDelivery("del-4", storeNow.Add(-4*time.Minute))
	sms.UserID = "user-4"
	sms.Channel = entities.ChannelSMS

	for _, d := range []entities.Delivery{second, first, future, sms} {
		if inserted, err := store.InsertDeliveryIfAbsent(ctx, d); err != nil || !inserted {
			t.Fatalf("seed %s failed: inserted=%v err=%v", d.DeliveryID, inserted, err)
		}
	}

	claimed, err := store.ClaimQueued(ctx, entities.ChannelEmail, "worker-a", storeNow, 5*time.Minute, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected 2 claims, got %d", len(claimed))
	}
	if claimed[0].DeliveryID != "del-1" || claimed[1].DeliveryID != "del-2" {
		t.Fatalf("expected oldest-first order, got %s then %s", claimed[0].DeliveryID, claimed[1].DeliveryID)
	}
	for _, d := range claimed {
		if d.LockedBy != "worker-a" || d.LockedUntil == nil || !d.LockedUntil.Equal(storeNow.Add(5*time.Minute)) {
			t.Fatalf("claim %s missing lease fields: %+v", d.DeliveryID, d)
		}
	}
}

func TestClaimQueuedExcludesHeldLeases(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if inserted, _ := store.InsertDeliveryIfAbsent(ctx, queuedDelivery("del-1", storeNow)); !inserted {
		t.Fatal("seed insert failed")
	}
	if _, err := store.ClaimQueued(ctx, entities.ChannelEmail, "worker-a", storeNow, 5*time.Minute, 10); err != nil {
		t.Fatalf("first claim failed: %v", err)
	}

	claimed, err := store.ClaimQueued(ctx, entities.ChannelEmail, "worker-b", storeNow.Add(time.Minute), 5*time.Minute, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(claimed) != 0 {
		t.Fatalf("held lease should not be reclaimed, got %d", len(claimed))
	}

	claimed, err = store.ClaimQueued(ctx, entities.ChannelEmail, "worker-b", storeNow.Add(10*time.Minute), 5*time.Minute, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(claimed) != 1 || claimed[0].LockedBy != "worker-b" {
		t.Fatalf("expired lease should be reclaimable, got %+v", claimed)
	}
}

func TestClaimQueuedHonorsLimit(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d := queuedDelivery("del-"+string(rune('a'+i)), storeNow.Add(time.Duration(i)*time.Second))
		d.UserID = "user-" + string(rune('a'+i))
		if inserted, _ := store.InsertDeliveryIfAbsent(ctx, d); !inserted {
			t.Fatalf("seed %d failed", i)
		}
	}
	claimed, err := store.ClaimQueued(ctx, entities.ChannelEmail, "worker-a", storeNow.Add(time.Minute), 5*time.Minute, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(claimed))
	}
}

func TestMarkSentRequiresClaim(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if inserted, _ := store.InsertDeliveryIfAbsent(ctx, queuedDelivery("del-1", storeNow)); !inserted {
		t.Fatal("seed insert failed")
	}

	err := store.MarkSent(ctx, "del-1", "worker-a", "msg-1", storeNow)
	if !errors.Is(err, domainerrors.ErrDeliveryNotClaimed) {
		t.Fatalf("unclaimed delivery should reject transition, got %v", err)
	}

	if _, err := store.ClaimQueued(ctx, entities.ChannelEmail, "worker-a", storeNow, 5*time.Minute, 10); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	err = store.MarkSent(ctx, "del-1", "worker-b", "msg-1", storeNow)
	if !errors.Is(err, domainerrors.ErrDeliveryNotClaimed) {
		t.Fatalf("wrong worker should reject transition, got %v", err)
	}

	if err := store.MarkSent(ctx, "del-1", "worker-a", "msg-1", storeNow); err != nil {
		t.Fatalf("owning worker should transition: %v", err)
	}

	delivery, err := store.GetDelivery(ctx, "del-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if delivery.Status != entities.DeliverySent || delivery.ExternalID != "msg-1" || delivery.SentAt == nil {
		t.Fatalf("unexpected sent state: %+v", delivery)
	}

	err = store.MarkSent(ctx, "del-1", "worker-a", "msg-2", storeNow)
	if !errors.Is(err, domainerrors.ErrDeliveryNotClaimed) {
		t.Fatalf("terminal delivery should reject further transitions, got %v", err)
	}
}

func TestReleaseForRetryClearsLeaseAndBumpsAttempts(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if inserted, _ := store.InsertDeliveryIfAbsent(ctx, queuedDelivery("del-1", storeNow)); !inserted {
		t.Fatal("seed insert failed")
	}
	if _, err := store.ClaimQueued(ctx, entities.ChannelEmail, "worker-a", storeNow, 5*time.Minute, 10); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	next := storeNow.Add(2 * time.Minute)
	if err := store.ReleaseForRetry(ctx, "del-1", "worker-a", next); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	delivery, _ := store.GetDelivery(ctx, "del-1")
	if delivery.Status != entities.DeliveryQueued || delivery.Attempts != 1 {
		t.Fatalf("unexpected state after release: %+v", delivery)
	}
	if delivery.LockedBy != "" || delivery.LockedUntil != nil {
		t.Fatalf("lease should be cleared: %+v", delivery)
	}
	if !delivery.NextAttemptAt.Equal(next) {
		t.Fatalf("expected next attempt %v, got %v", next, delivery.NextAttemptAt)
	}

	claimed, err := store.ClaimQueued(ctx, entities.ChannelEmail, "worker-b", next.Add(time.Second), 5*time.Minute, 10)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("released delivery should be claimable again, got %d err=%v", len(claimed), err)
	}
}

func TestSetClickedFirstClickWins(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if inserted, _ := store.InsertDeliveryIfAbsent(ctx, queuedDelivery("del-1", storeNow)); !inserted {
		t.Fatal("seed insert failed")
	}

	// Clicks on a queued delivery are ignored.
	if err := store.SetClicked(ctx, "del-1", storeNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	delivery, _ := store.GetDelivery(ctx, "del-1")
	if delivery.ClickedAt != nil {
		t.Fatal("queued delivery should not record a click")
	}

	if _, err := store.ClaimQueued(ctx, entities.ChannelEmail, "worker-a", storeNow, 5*time.Minute, 10); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := store.MarkSent(ctx, "del-1", "worker-a", "msg-1", storeNow); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}

	first := storeNow.Add(time.Hour)
	if err := store.SetClicked(ctx, "del-1", first); err != nil {
		t.Fatalf("click failed: %v", err)
	}
	if err := store.SetClicked(ctx, "del-1", first.Add(time.Hour)); err != nil {
		t.Fatalf("second click failed: %v", err)
	}

	delivery, _ = store.GetDelivery(ctx, "del-1")
	if delivery.ClickedAt == nil || !delivery.ClickedAt.Equal(first) {
		t.Fatalf("first click should win, got %v", delivery.ClickedAt)
	}
}

func TestSetAttributedIfNullIsOneShot(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if inserted, _ := store.InsertDeliveryIfAbsent(ctx, queuedDelivery("del-1", storeNow)); !inserted {
		t.Fatal("seed insert failed")
	}
	if _, err := store.ClaimQueued(ctx, entities.ChannelEmail, "worker-a", storeNow, 5*time.Minute, 10); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := store.MarkSent(ctx, "del-1", "worker-a", "msg-1", storeNow); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}

	at := storeNow.Add(24 * time.Hour)
	attributed, err := store.SetAttributedIfNull(ctx, "del-1", at, 2999)
	if err != nil || !attributed {
		t.Fatalf("expected first attribution, got attributed=%v err=%v", attributed, err)
	}
	attributed, err = store.SetAttributedIfNull(ctx, "del-1", at.Add(time.Hour), 4999)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attributed {
		t.Fatal("second attribution should be a no-op")
	}

	delivery, _ := store.GetDelivery(ctx, "del-1")
	if delivery.AttributedRevenueCents == nil || *delivery.AttributedRevenueCents != 2999 {
		t.Fatalf("first attribution should be retained: %+v", delivery)
	}
}

func TestListAttributableWindowAndOrder(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	sendAt := func(id string, campaign string, sentAt time.Time) {
		d := queuedDelivery(id, sentAt.Add(-time.Minute))
		d.CampaignID = campaign
		if inserted, _ := store.InsertDeliveryIfAbsent(ctx, d); !inserted {
			t.Fatalf("seed %s failed", id)
		}
		if _, err := store.ClaimQueued(ctx, entities.ChannelEmail, "worker-a", sentAt, time.Minute, 10); err != nil {
			t.Fatalf("claim %s failed: %v", id, err)
		}
		if err := store.MarkSent(ctx, id, "worker-a", "msg-"+id, sentAt); err != nil {
			t.Fatalf("mark %s failed: %v", id, err)
		}
	}

	sendAt("del-old", "campaign-a", storeNow.Add(-10*24*time.Hour))
	sendAt("del-early", "campaign-b", storeNow.Add(-3*24*time.Hour))
	sendAt("del-late", "campaign-c", storeNow.Add(-time.Hour))

	since := storeNow.Add(-7 * 24 * time.Hour)
	rows, err := store.ListAttributable(ctx, "user-1", since, storeNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 deliveries in window, got %d", len(rows))
	}
	if rows[0].DeliveryID != "del-early" || rows[1].DeliveryID != "del-late" {
		t.Fatalf("expected oldest-first order, got %s then %s", rows[0].DeliveryID, rows[1].DeliveryID)
	}
}

func TestCountChannelSendsWindow(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	seedSent := func(id, campaign string, sentAt time.Time) {
		d := queuedDelivery(id, sentAt)
		d.CampaignID = campaign
		d.Status = entities.DeliverySent
		sent := sentAt
		d.SentAt = &sent
		store.deliveries[d.DeliveryID] = d
	}
	seedSent("del-1", "campaign-a", storeNow.Add(-time.Hour))
	seedSent("del-2", "campaign-b", storeNow.Add(-2*time.Hour))
	seedSent("del-3", "campaign-c", storeNow.Add(-48*time.Hour))

	count, err := store.CountChannelSends(ctx, "user-1", entities.ChannelEmail, storeNow.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 sends inside window, got %d", count)
	}
}

func TestLastSentAtPicksNewest(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	older := storeNow.Add(-48 * time.Hour)
	newer := storeNow.Add(-2 * time.Hour)
	for i, sentAt := range []time.Time{older, newer} {
		d := queuedDelivery("del-"+string(rune('1'+i)), sentAt)
		d.Status = entities.DeliverySent
		sent := sentAt
		d.SentAt = &sent
		store.deliveries[d.DeliveryID] = d
	}

	last, err := store.LastSentAt(ctx, "user-1", "paywall-abandoned-email")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if last == nil || !last.Equal(newer) {
		t.Fatalf("expected newest sent_at %v, got %v", newer, last)
	}

	last, err = store.LastSentAt(ctx, "user-9", "paywall-abandoned-email")
	if err != nil || last != nil {
		t.Fatalf("expected nil for unknown user, got %v err=%v", last, err)
	}
}

func TestListDeliveriesFilters(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	a := queuedDelivery("del-1", storeNow)
	b := queuedDelivery("del-2", storeNow.Add(time.Minute))
	b.UserID = "user-2"
	c := queuedDelivery("del-3", storeNow.Add(2*time.Minute))
	c.UserID = "user-2"
	c.CampaignID = "heavy-users-email"
	c.Status = entities.DeliverySent
	for _, d := range []entities.Delivery{a, b, c} {
		store.deliveries[d.DeliveryID] = d
	}

	rows, err := store.ListDeliveries(ctx, ports.DeliveryFilter{UserID: "user-2"})
	if err != nil || len(rows) != 2 {
		t.Fatalf("expected 2 rows for user-2, got %d err=%v", len(rows), err)
	}

	rows, _ = store.ListDeliveries(ctx, ports.DeliveryFilter{Status: entities.DeliverySent})
	if len(rows) != 1 || rows[0].DeliveryID != "del-3" {
		t.Fatalf("status filter mismatch: %+v", rows)
	}

	rows, _ = store.ListDeliveries(ctx, ports.DeliveryFilter{Limit: 1})
	if len(rows) != 1 || rows[0].DeliveryID != "del-1" {
		t.Fatalf("limit should keep oldest row, got %+v", rows)
	}
}

func TestUpdateConsentByChannel(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	store.SeedProfile(entities.Profile{UserID: "user-1", ConsentEmail: true, ConsentSMS: true})

	if err := store.UpdateConsent(ctx, "user-1", entities.ChannelSMS, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	profile, err := store.GetProfile(ctx, "user-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if profile.ConsentSMS || !profile.ConsentEmail {
		t.Fatalf("only sms consent should be revoked: %+v", profile)
	}

	err = store.UpdateConsent(ctx, "user-9", entities.ChannelEmail, false)
	if !errors.Is(err, domainerrors.ErrProfileNotFound) {
		t.Fatalf("expected profile not found, got %v", err)
	}
}

func TestStoreClockPinning(t *testing.T) {
	store := NewStore()
	store.SetNow(storeNow)
	if !store.Now().Equal(storeNow) {
		t.Fatalf("expected pinned clock %v, got %v", storeNow, store.Now())
	}
	store.SetNow(time.Time{})
	if store.Now().IsZero() {
		t.Fatal("unpinned clock should fall back to the system clock")
	}
}
