package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"everreach/contexts/lifecycle/campaign-engine/domain/entities"
	domainerrors "everreach/contexts/lifecycle/campaign-engine/domain/errors"
	"everreach/contexts/lifecycle/campaign-engine/ports"

	"github.com/google/uuid"
)

// Store is the in-memory implementation of every engine port. It backs unit
// tests and local runs; the conditional-write semantics (insert-if-absent,
// lease claims, set-if-null) mirror the postgres adapter under one mutex.
type Store struct {
	mu sync.RWMutex

	events       []entities.Event
	eventsByIdem map[string]string
	traits       map[string]entities.UserTraits
	profiles     map[string]entities.Profile
	campaigns    map[string]entities.Campaign
	templates    []entities.Template
	deliveries   map[string]entities.Delivery

	now time.Time
}

func NewStore() *Store {
	return &Store{
		eventsByIdem: make(map[string]string),
		traits:       make(map[string]entities.UserTraits),
		profiles:     make(map[string]entities.Profile),
		campaigns:    make(map[string]entities.Campaign),
		deliveries:   make(map[string]entities.Delivery),
	}
}

// SetNow pins the store clock for deterministic tests. Zero restores the
// system clock.
func (s *Store) SetNow(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.now.IsZero() {
		return time.Now().UTC()
	}
	return s.now
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

// SeedProfile registers a contact row.
func (s *Store) SeedProfile(profile entities.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.UserID] = profile
}

// SeedCampaign registers a campaign config row.
func (s *Store) SeedCampaign(campaign entities.Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[campaign.CampaignID] = campaign
}

// SeedTemplate registers a campaign variant.
func (s *Store) SeedTemplate(tmpl entities.Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates = append(s.templates, tmpl)
}

// --- EventRepository ---

func (s *Store) InsertEvent(_ context.Context, event entities.Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key := event.IdempotencyKey; key != "" {
		if _, exists := s.eventsByIdem[key]; exists {
			return false, nil
		}
		s.eventsByIdem[key] = event.EventID
	}
	s.events = append(s.events, event)
	return true, nil
}

func (s *Store) HasEventSince(_ context.Context, userID, eventName string, after time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, event := range s.events {
		if event.UserID == userID && event.Name == eventName && event.OccurredAt.After(after) {
			return true, nil
		}
	}
	return false, nil
}

// EventCount reports stored rows; test helper.
func (s *Store) EventCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// --- TraitsRepository ---

func (s *Store) GetTraits(_ context.Context, userID string) (entities.UserTraits, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	traits, found := s.traits[userID]
	return traits, found, nil
}

func (s *Store) UpsertTraits(_ context.Context, traits entities.UserTraits) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traits[traits.UserID] = traits
	return nil
}

func (s *Store) ListTraits(_ context.Context) ([]entities.UserTraits, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]entities.UserTraits, 0, len(s.traits))
	for _, traits := range s.traits {
		rows = append(rows, traits)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].UserID < rows[j].UserID
	})
	return rows, nil
}

// --- ProfileRepository ---

func (s *Store) GetProfile(_ context.Context, userID string) (entities.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, found := s.profiles[userID]
	if !found {
		return entities.Profile{}, domainerrors.ErrProfileNotFound
	}
	return profile, nil
}

func (s *Store) UpdateConsent(_ context.Context, userID string, channel entities.Channel, granted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, found := s.profiles[userID]
	if !found {
		return domainerrors.ErrProfileNotFound
	}
	switch channel {
	case entities.ChannelEmail:
		profile.ConsentEmail = granted
	case entities.ChannelSMS:
		profile.ConsentSMS = granted
	}
	s.profiles[userID] = profile
	return nil
}

// --- CampaignRepository ---

func (s *Store) ListEnabledCampaigns(_ context.Context) ([]entities.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]entities.Campaign, 0, len(s.campaigns))
	for _, campaign := range s.campaigns {
		if campaign.Enabled {
			rows = append(rows, campaign)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].CampaignID < rows[j].CampaignID
	})
	return rows, nil
}

func (s *Store) GetCampaign(_ context.Context, campaignID string) (entities.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	campaign, found := s.campaigns[campaignID]
	if !found {
		return entities.Campaign{}, domainerrors.ErrCampaignNotFound
	}
	return campaign, nil
}

// --- TemplateRepository ---

func (s *Store) GetTemplate(_ context.Context, campaignID, variantKey string) (entities.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tmpl := range s.templates {
		if tmpl.CampaignID == campaignID && tmpl.VariantKey == variantKey {
			return tmpl, nil
		}
	}
	return entities.Template{}, domainerrors.ErrTemplateNotFound
}

func (s *Store) ListVariantKeys(_ context.Context, campaignID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, 2)
	for _, tmpl := range s.templates {
		if tmpl.CampaignID == campaignID {
			keys = append(keys, tmpl.VariantKey)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// --- DeliveryRepository ---

func (s *Store) InsertDeliveryIfAbsent(_ context.Context, delivery entities.Delivery) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A queued row blocks re-queueing; a holdout row blocks re-recording the
	// same (deterministic) holdout membership every pass.
	for _, existing := range s.deliveries {
		if existing.UserID != delivery.UserID || existing.CampaignID != delivery.CampaignID {
			continue
		}
		if existing.Status == entities.DeliveryQueued {
			return false, nil
		}
		if existing.Status == entities.DeliverySuppressed && existing.Reason == "holdout" {
			return false, nil
		}
	}
	s.deliveries[delivery.DeliveryID] = delivery
	return true, nil
}

func (s *Store) GetDelivery(_ context.Context, deliveryID string) (entities.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	delivery, found := s.deliveries[deliveryID]
	if !found {
		return entities.Delivery{}, domainerrors.ErrDeliveryNotFound
	}
	return delivery, nil
}

func (s *Store) ListDeliveries(_ context.Context, filter ports.DeliveryFilter) ([]entities.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]entities.Delivery, 0)
	for _, delivery := range s.deliveries {
		if filter.UserID != "" && delivery.UserID != filter.UserID {
			continue
		}
		if filter.CampaignID != "" && delivery.CampaignID != filter.CampaignID {
			continue
		}
		if filter.Status != "" && delivery.Status != filter.Status {
			continue
		}
		rows = append(rows, delivery)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
	if filter.Limit > 0 && len(rows) > filter.Limit {
		rows = rows[:filter.Limit]
	}
	return rows, nil
}

func (s *Store) LastSentAt(_ context.Context, userID, campaignID string) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last *time.Time
	for _, delivery := range s.deliveries {
		if delivery.UserID != userID || delivery.CampaignID != campaignID || delivery.SentAt == nil {
			continue
		}
		if last == nil || delivery.SentAt.After(*last) {
			sentAt := *delivery.SentAt
			last = &sentAt
		}
	}
	return last, nil
}

func (s *Store) CountChannelSends(_ context.Context, userID string, channel entities.Channel, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, delivery := range s.deliveries {
		if delivery.UserID == userID && delivery.Channel == channel &&
			delivery.SentAt != nil && delivery.SentAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (s *Store) ClaimQueued(_ context.Context, channel entities.Channel, workerID string, now time.Time, leaseFor time.Duration, limit int) ([]entities.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]entities.Delivery, 0)
	for _, delivery := range s.deliveries {
		if delivery.Status != entities.DeliveryQueued || delivery.Channel != channel {
			continue
		}
		if delivery.NextAttemptAt.After(now) {
			continue
		}
		if delivery.LockedUntil != nil && delivery.LockedUntil.After(now) {
			continue
		}
		candidates = append(candidates, delivery)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	until := now.Add(leaseFor)
	claimed := make([]entities.Delivery, 0, len(candidates))
	for _, delivery := range candidates {
		delivery.LockedBy = workerID
		lockedUntil := until
		delivery.LockedUntil = &lockedUntil
		delivery.UpdatedAt = now
		s.deliveries[delivery.DeliveryID] = delivery
		claimed = append(claimed, delivery)
	}
	return claimed, nil
}

func (s *Store) MarkSent(_ context.Context, deliveryID, workerID, externalID string, at time.Time) error {
	return s.transition(deliveryID, workerID, func(delivery *entities.Delivery) {
		delivery.Status = entities.DeliverySent
		delivery.ExternalID = externalID
		sentAt := at
		delivery.SentAt = &sentAt
	}, at)
}

func (s *Store) MarkSuppressed(_ context.Context, deliveryID, workerID, reason string, at time.Time) error {
	return s.transition(deliveryID, workerID, func(delivery *entities.Delivery) {
		delivery.Status = entities.DeliverySuppressed
		delivery.Reason = reason
	}, at)
}

func (s *Store) MarkFailed(_ context.Context, deliveryID, workerID, reason string, at time.Time) error {
	return s.transition(deliveryID, workerID, func(delivery *entities.Delivery) {
		delivery.Status = entities.DeliveryFailed
		delivery.Reason = reason
	}, at)
}

func (s *Store) ReleaseForRetry(_ context.Context, deliveryID, workerID string, nextAttemptAt time.Time) error {
	return s.transition(deliveryID, workerID, func(delivery *entities.Delivery) {
		delivery.Attempts++
		delivery.NextAttemptAt = nextAttemptAt
		delivery.LockedBy = ""
		delivery.LockedUntil = nil
	}, nextAttemptAt)
}

func (s *Store) transition(deliveryID, workerID string, mutate func(*entities.Delivery), at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delivery, found := s.deliveries[deliveryID]
	if !found {
		return domainerrors.ErrDeliveryNotFound
	}
	if delivery.Status != entities.DeliveryQueued {
		return domainerrors.ErrDeliveryNotClaimed
	}
	if strings.TrimSpace(workerID) != "" && delivery.LockedBy != workerID {
		return domainerrors.ErrDeliveryNotClaimed
	}
	mutate(&delivery)
	delivery.UpdatedAt = at
	s.deliveries[deliveryID] = delivery
	return nil
}

func (s *Store) SetClicked(_ context.Context, deliveryID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delivery, found := s.deliveries[deliveryID]
	if !found {
		return domainerrors.ErrDeliveryNotFound
	}
	if delivery.Status != entities.DeliverySent || delivery.ClickedAt != nil {
		return nil
	}
	clickedAt := at
	delivery.ClickedAt = &clickedAt
	delivery.UpdatedAt = at
	s.deliveries[deliveryID] = delivery
	return nil
}

func (s *Store) ListAttributable(_ context.Context, userID string, since, until time.Time) ([]entities.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]entities.Delivery, 0)
	for _, delivery := range s.deliveries {
		if delivery.UserID != userID || delivery.Status != entities.DeliverySent {
			continue
		}
		if delivery.SentAt == nil || delivery.AttributedPurchaseAt != nil {
			continue
		}
		if delivery.SentAt.Before(since) || delivery.SentAt.After(until) {
			continue
		}
		rows = append(rows, delivery)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].SentAt.Before(*rows[j].SentAt)
	})
	return rows, nil
}

func (s *Store) SetAttributedIfNull(_ context.Context, deliveryID string, at time.Time, revenueCents int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delivery, found := s.deliveries[deliveryID]
	if !found {
		return false, domainerrors.ErrDeliveryNotFound
	}
	if delivery.AttributedPurchaseAt != nil {
		return false, nil
	}
	attributedAt := at
	delivery.AttributedPurchaseAt = &attributedAt
	delivery.AttributedRevenueCents = &revenueCents
	delivery.UpdatedAt = at
	s.deliveries[deliveryID] = delivery
	return true, nil
}
