package workers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	application "everreach/contexts/lifecycle/campaign-engine/application"
	"everreach/contexts/lifecycle/campaign-engine/application/queries"
	"everreach/contexts/lifecycle/campaign-engine/domain/entities"
	"everreach/contexts/lifecycle/campaign-engine/domain/policy"
	"everreach/contexts/lifecycle/campaign-engine/ports"
)

// SchedulerReport is returned from one scheduling pass.
type SchedulerReport struct {
	CampaignsEvaluated int `json:"campaigns_evaluated"`
	TotalQueued        int `json:"total_queued"`
	TotalSuppressed    int `json:"total_suppressed"`
}

// Scheduler runs one campaign-evaluation pass: per enabled campaign, evaluate
// its segment live, dedupe members within the tick, guard against an existing
// queued delivery, apply sending policy, and enqueue. Holdout denials are
// persisted as suppressed rows so lift stays measurable; every other denial
// is transient and skipped.
type Scheduler struct {
	Campaigns  ports.CampaignRepository
	Profiles   ports.ProfileRepository
	Deliveries ports.DeliveryRepository
	Templates  ports.TemplateRepository
	Segments   queries.EvaluateSegmentUseCase
	Policy     policy.Config
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Logger     *slog.Logger
}

func (s Scheduler) RunOnce(ctx context.Context) (SchedulerReport, error) {
	logger := application.ResolveLogger(s.Logger)
	now := s.Clock.Now().UTC()
	report := SchedulerReport{}

	campaigns, err := s.Campaigns.ListEnabledCampaigns(ctx)
	if err != nil {
		logger.Error("campaign snapshot load failed",
			"event", "lifecycle_scheduler_snapshot_failed",
			"module", "lifecycle/campaign-engine",
			"layer", "worker",
			"error", err.Error(),
		)
		return report, err
	}

	for _, campaign := range campaigns {
		queued, suppressed, err := s.runCampaign(ctx, campaign, now, logger)
		if err != nil {
			// One broken campaign must not halt the pass.
			logger.Error("campaign scheduling failed",
				"event", "lifecycle_scheduler_campaign_failed",
				"module", "lifecycle/campaign-engine",
				"layer", "worker",
				"campaign_id", campaign.CampaignID,
				"error", err.Error(),
			)
			continue
		}
		report.CampaignsEvaluated++
		report.TotalQueued += queued
		report.TotalSuppressed += suppressed
	}

	logger.Info("scheduling pass completed",
		"event", "lifecycle_scheduler_completed",
		"module", "lifecycle/campaign-engine",
		"layer", "worker",
		"campaigns_evaluated", report.CampaignsEvaluated,
		"total_queued", report.TotalQueued,
		"total_suppressed", report.TotalSuppressed,
	)
	return report, nil
}

func (s Scheduler) runCampaign(ctx context.Context, campaign entities.Campaign, now time.Time, logger *slog.Logger) (queued, suppressed int, err error) {
	members, err := s.Segments.EvaluateRule(ctx, campaign.Segment, campaign.Rule)
	if err != nil {
		return 0, 0, err
	}

	// Overlapping predicates can return the same user twice in one tick.
	seen := make(map[string]struct{}, len(members))
	for _, member := range members {
		if _, dup := seen[member.UserID]; dup {
			continue
		}
		seen[member.UserID] = struct{}{}

		if err := s.scheduleMember(ctx, campaign, member, now); err != nil {
			switch {
			case err == errPolicySkip:
				// transient denial, not persisted
			case err == errGuardBlocked:
				// a queued delivery already exists for this pair
			case err == errHoldout:
				suppressed++
			default:
				logger.Error("member scheduling failed",
					"event", "lifecycle_scheduler_member_failed",
					"module", "lifecycle/campaign-engine",
					"layer", "worker",
					"campaign_id", campaign.CampaignID,
					"user_id", member.UserID,
					"error", err.Error(),
				)
			}
			continue
		}
		queued++
	}
	return queued, suppressed, nil
}

// Control-flow sentinels internal to the scheduling loop.
var (
	errPolicySkip   = errors.New("policy denied, transient")
	errGuardBlocked = errors.New("existing queued delivery")
	errHoldout      = errors.New("holdout suppressed")
)

func (s Scheduler) scheduleMember(ctx context.Context, campaign entities.Campaign, member entities.SegmentMember, now time.Time) error {
	profile, err := s.Profiles.GetProfile(ctx, member.UserID)
	if err != nil {
		return err
	}

	lastSend, err := s.Deliveries.LastSentAt(ctx, member.UserID, campaign.CampaignID)
	if err != nil {
		return err
	}
	channelSends, err := s.Deliveries.CountChannelSends(ctx, member.UserID, campaign.Channel, now.Add(-s.Policy.FrequencyWindow))
	if err != nil {
		return err
	}

	decision := policy.CanSend(policy.Input{
		Profile:              profile,
		Campaign:             campaign,
		Channel:              campaign.Channel,
		Now:                  now,
		LastCampaignSend:     lastSend,
		ChannelSendsInWindow: channelSends,
		Config:               s.Policy,
	})

	if !decision.Allow && decision.Reason != policy.ReasonHoldout {
		return errPolicySkip
	}

	variant := member.VariantKey
	if variant == "" {
		keys, err := s.Templates.ListVariantKeys(ctx, campaign.CampaignID)
		if err != nil {
			return err
		}
		variant = policy.VariantKey(member.UserID, campaign.CampaignID, keys)
	}

	deliveryID, err := s.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	delivery := entities.Delivery{
		DeliveryID:    deliveryID,
		CampaignID:    campaign.CampaignID,
		UserID:        member.UserID,
		VariantKey:    variant,
		Channel:       campaign.Channel,
		Status:        entities.DeliveryQueued,
		Reason:        member.Reason,
		Context:       map[string]any{"segment": campaign.Segment},
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if !decision.Allow {
		// Holdout membership is recorded as a suppressed row so downstream
		// analytics can compute true lift; no transport call ever happens.
		delivery.Status = entities.DeliverySuppressed
		delivery.Reason = policy.ReasonHoldout
	}

	inserted, err := s.Deliveries.InsertDeliveryIfAbsent(ctx, delivery)
	if err != nil {
		return err
	}
	if !inserted {
		return errGuardBlocked
	}
	if !decision.Allow {
		return errHoldout
	}
	return nil
}
