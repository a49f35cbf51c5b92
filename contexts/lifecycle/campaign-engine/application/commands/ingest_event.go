package commands

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	application "everreach/contexts/lifecycle/campaign-engine/application"
	"everreach/contexts/lifecycle/campaign-engine/domain/entities"
	domainerrors "everreach/contexts/lifecycle/campaign-engine/domain/errors"
	"everreach/contexts/lifecycle/campaign-engine/ports"
)

// AttributionMode selects which candidate delivery a conversion credits when
// several fall inside the window.
type AttributionMode string

const (
	AttributionLastTouch  AttributionMode = "last_touch"
	AttributionFirstTouch AttributionMode = "first_touch"
)

type IngestEventCommand struct {
	UserID         string
	AnonymousID    string
	Name           string
	Properties     map[string]any
	OccurredAt     time.Time
	Source         string
	IdempotencyKey string
}

type IngestEventResult struct {
	EventID      string
	Deduplicated bool
	Attributed   bool
}

// IngestEventUseCase appends the event, folds it into the user's trait
// rollup, and runs conversion attribution. A duplicate idempotency key is an
// accepted no-op, never an error and never a second row or trait update.
type IngestEventUseCase struct {
	Events             ports.EventRepository
	Traits             ports.TraitsRepository
	Deliveries         ports.DeliveryRepository
	Clock              ports.Clock
	IDGenerator        ports.IDGenerator
	HeavyUserThreshold int
	ConversionEvent    string
	AttributionWindow  time.Duration
	AttributionMode    AttributionMode
	Logger             *slog.Logger
}

func (uc IngestEventUseCase) Execute(ctx context.Context, cmd IngestEventCommand) (IngestEventResult, error) {
	logger := application.ResolveLogger(uc.Logger)

	userID := strings.TrimSpace(cmd.UserID)
	name := strings.TrimSpace(cmd.Name)
	if name == "" || (userID == "" && strings.TrimSpace(cmd.AnonymousID) == "") {
		return IngestEventResult{}, domainerrors.ErrInvalidEventInput
	}

	now := uc.Clock.Now().UTC()
	occurred := cmd.OccurredAt.UTC()
	if occurred.IsZero() {
		occurred = now
	}

	eventID, err := uc.IDGenerator.NewID(ctx)
	if err != nil {
		return IngestEventResult{}, err
	}
	event := entities.Event{
		EventID:        eventID,
		UserID:         userID,
		AnonymousID:    strings.TrimSpace(cmd.AnonymousID),
		Name:           name,
		Properties:     cmd.Properties,
		OccurredAt:     occurred,
		Source:         strings.TrimSpace(cmd.Source),
		IdempotencyKey: strings.TrimSpace(cmd.IdempotencyKey),
		ReceivedAt:     now,
	}

	inserted, err := uc.Events.InsertEvent(ctx, event)
	if err != nil {
		return IngestEventResult{}, err
	}
	if !inserted {
		logger.Info("event deduplicated",
			"event", "lifecycle_event_deduplicated",
			"module", "lifecycle/campaign-engine",
			"layer", "application",
			"event_name", name,
			"idempotency_key", event.IdempotencyKey,
		)
		return IngestEventResult{Deduplicated: true}, nil
	}

	if userID != "" {
		if err := uc.applyTraits(ctx, event); err != nil {
			// Trait rollups are rebuildable by replay; the event write must
			// not be failed retroactively.
			logger.Error("trait update failed",
				"event", "lifecycle_trait_update_failed",
				"module", "lifecycle/campaign-engine",
				"layer", "application",
				"user_id", userID,
				"event_name", name,
				"error", err.Error(),
			)
		}
	}

	attributed := false
	conversion := uc.ConversionEvent
	if conversion == "" {
		conversion = entities.EventPurchaseSucceeded
	}
	if userID != "" && name == conversion {
		attributed, err = uc.attribute(ctx, event)
		if err != nil {
			logger.Error("attribution failed",
				"event", "lifecycle_attribution_failed",
				"module", "lifecycle/campaign-engine",
				"layer", "application",
				"user_id", userID,
				"error", err.Error(),
			)
		}
	}

	logger.Info("event ingested",
		"event", "lifecycle_event_ingested",
		"module", "lifecycle/campaign-engine",
		"layer", "application",
		"event_id", eventID,
		"event_name", name,
		"user_id", userID,
	)
	return IngestEventResult{EventID: eventID, Attributed: attributed}, nil
}

func (uc IngestEventUseCase) applyTraits(ctx context.Context, event entities.Event) error {
	traits, found, err := uc.Traits.GetTraits(ctx, event.UserID)
	if err != nil {
		return err
	}
	if !found {
		traits = entities.UserTraits{UserID: event.UserID}
	}

	threshold := uc.HeavyUserThreshold
	if threshold <= 0 {
		threshold = 16
	}
	traits.Apply(event, threshold)
	traits.UpdatedAt = uc.Clock.Now().UTC()
	return uc.Traits.UpsertTraits(ctx, traits)
}

// attribute credits the conversion to one sent delivery inside the window:
// the most recent send by default (last touch), or the oldest under
// first-touch mode. The attributed fields are written only if still null, so
// a replayed conversion event cannot double-attribute.
func (uc IngestEventUseCase) attribute(ctx context.Context, event entities.Event) (bool, error) {
	window := uc.AttributionWindow
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	at := event.OccurredAt
	candidates, err := uc.Deliveries.ListAttributable(ctx, event.UserID, at.Add(-window), at)
	if err != nil {
		return false, err
	}
	if len(candidates) == 0 {
		return false, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].SentAt.Before(*candidates[j].SentAt)
	})
	chosen := candidates[len(candidates)-1]
	if uc.AttributionMode == AttributionFirstTouch {
		chosen = candidates[0]
	}

	revenue, _ := event.IntProperty("revenue_cents")
	return uc.Deliveries.SetAttributedIfNull(ctx, chosen.DeliveryID, at, revenue)
}
