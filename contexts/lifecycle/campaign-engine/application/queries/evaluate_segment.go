package queries

import (
	"context"
	"log/slog"
	"time"

	application "everreach/contexts/lifecycle/campaign-engine/application"
	"everreach/contexts/lifecycle/campaign-engine/domain/entities"
	domainerrors "everreach/contexts/lifecycle/campaign-engine/domain/errors"
	"everreach/contexts/lifecycle/campaign-engine/ports"
)

// EvaluateSegmentUseCase answers "who is in segment S right now". Membership
// is always computed live against traits and the event log: the catalog rules
// are time-relative, so any cross-tick caching would spam users or miss them.
type EvaluateSegmentUseCase struct {
	Traits ports.TraitsRepository
	Events ports.EventRepository
	Clock  ports.Clock
	Logger *slog.Logger
}

// Execute evaluates a named catalog segment.
func (uc EvaluateSegmentUseCase) Execute(ctx context.Context, segmentName string) ([]entities.SegmentMember, error) {
	rule, ok := entities.CatalogSegments()[segmentName]
	if !ok {
		return nil, domainerrors.ErrUnknownSegment
	}
	return uc.EvaluateRule(ctx, segmentName, rule)
}

// EvaluateRule evaluates an arbitrary tagged rule, returning members with
// their reason context. Used directly by the scheduler so campaign rules can
// diverge from the named catalog.
func (uc EvaluateSegmentUseCase) EvaluateRule(ctx context.Context, reason string, rule entities.SegmentRule) ([]entities.SegmentMember, error) {
	logger := application.ResolveLogger(uc.Logger)
	now := uc.Clock.Now().UTC()

	rows, err := uc.Traits.ListTraits(ctx)
	if err != nil {
		return nil, err
	}

	members := make([]entities.SegmentMember, 0)
	for _, traits := range rows {
		match, err := uc.matches(ctx, rule, traits, now)
		if err != nil {
			return nil, err
		}
		if match {
			members = append(members, entities.SegmentMember{
				UserID: traits.UserID,
				Reason: reason,
			})
		}
	}

	logger.Debug("segment evaluated",
		"event", "lifecycle_segment_evaluated",
		"module", "lifecycle/campaign-engine",
		"layer", "application",
		"segment", reason,
		"member_count", len(members),
	)
	return members, nil
}

func (uc EvaluateSegmentUseCase) matches(ctx context.Context, rule entities.SegmentRule, traits entities.UserTraits, now time.Time) (bool, error) {
	switch rule.Kind {
	case entities.RuleOnboardingStuck:
		stale := time.Duration(rule.StaleHours) * time.Hour
		if traits.OnboardingCompletedAt != nil {
			return false, nil
		}
		if traits.LastSeen.IsZero() || now.Sub(traits.LastSeen) < stale {
			return false, nil
		}
		// Must have started onboarding at some point, otherwise this is a
		// dead signup rather than a stuck one.
		return uc.Events.HasEventSince(ctx, traits.UserID, entities.EventOnboardingStep, time.Time{})

	case entities.RulePaywallAbandoned:
		stale := time.Duration(rule.StaleHours) * time.Hour
		if traits.PaywallLastSeen == nil || now.Sub(*traits.PaywallLastSeen) < stale {
			return false, nil
		}
		purchased, err := uc.Events.HasEventSince(ctx, traits.UserID, entities.EventPurchaseSucceeded, *traits.PaywallLastSeen)
		if err != nil {
			return false, err
		}
		return !purchased, nil

	case entities.RuleEventWithin:
		window := time.Duration(rule.WindowHours) * time.Hour
		return uc.Events.HasEventSince(ctx, traits.UserID, rule.EventName, now.Add(-window))

	case entities.RuleInactivity:
		if traits.SubscriptionStatus != entities.SubscriptionActive {
			return false, nil
		}
		threshold := time.Duration(rule.Days) * 24 * time.Hour
		return !traits.LastSeen.IsZero() && now.Sub(traits.LastSeen) >= threshold, nil

	case entities.RuleHeavyUsers:
		return traits.DaysActive28d >= rule.Threshold, nil

	default:
		return false, domainerrors.ErrUnknownSegment
	}
}
