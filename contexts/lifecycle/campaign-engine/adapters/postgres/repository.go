package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"everreach/contexts/lifecycle/campaign-engine/domain/entities"
	domainerrors "everreach/contexts/lifecycle/campaign-engine/domain/errors"
	"everreach/contexts/lifecycle/campaign-engine/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) InsertEvent(ctx context.Context, event entities.Event) (bool, error) {
	row, err := eventModelFromEntity(event)
	if err != nil {
		return false, r.logError("engine_repo_insert_event_encode_failed", err,
			"event_id", event.EventID,
		)
	}
	if row.IdempotencyKey == nil {
		if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
			return false, r.logError("engine_repo_insert_event_failed", err,
				"event_id", row.EventID,
				"event_name", row.Name,
			)
		}
		return true, nil
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idempotency_key"}},
		DoNothing: true,
	}).Create(&row)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return false, nil
		}
		return false, r.logError("engine_repo_insert_event_failed", result.Error,
			"event_id", row.EventID,
			"event_name", row.Name,
		)
	}
	return result.RowsAffected > 0, nil
}

func (r *Repository) HasEventSince(ctx context.Context, userID, eventName string, after time.Time) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&eventLogModel{}).
		Where("user_id = ?", strings.TrimSpace(userID)).
		Where("name = ?", strings.TrimSpace(eventName)).
		Where("occurred_at > ?", after.UTC()).
		Count(&count).
		Error; err != nil {
		return false, r.logError("engine_repo_has_event_since_failed", err,
			"user_id", strings.TrimSpace(userID),
			"event_name", strings.TrimSpace(eventName),
		)
	}
	return count > 0, nil
}

func (r *Repository) GetTraits(ctx context.Context, userID string) (entities.UserTraits, bool, error) {
	var row userTraitsModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", strings.TrimSpace(userID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.UserTraits{}, false, nil
		}
		return entities.UserTraits{}, false, r.logError("engine_repo_get_traits_failed", err,
			"user_id", strings.TrimSpace(userID),
		)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) UpsertTraits(ctx context.Context, traits entities.UserTraits) error {
	row := traitsModelFromEntity(traits)
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"last_seen", "sessions_7d", "sessions_30d",
			"onboarding_stage", "onboarding_completed_at",
			"paywall_last_seen", "paywall_impressions_total",
			"subscription_status", "active_dates", "days_active_28d",
			"is_heavy_user", "updated_at",
		}),
	}).Create(&row).Error; err != nil {
		return r.logError("engine_repo_upsert_traits_failed", err,
			"user_id", row.UserID,
		)
	}
	return nil
}

func (r *Repository) ListTraits(ctx context.Context) ([]entities.UserTraits, error) {
	var rows []userTraitsModel
	if err := r.db.WithContext(ctx).
		Order("user_id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("engine_repo_list_traits_failed", err)
	}
	items := make([]entities.UserTraits, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) GetProfile(ctx context.Context, userID string) (entities.Profile, error) {
	var row profileModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", strings.TrimSpace(userID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Profile{}, domainerrors.ErrProfileNotFound
		}
		return entities.Profile{}, r.logError("engine_repo_get_profile_failed", err,
			"user_id", strings.TrimSpace(userID),
		)
	}
	return row.toEntity(), nil
}

func (r *Repository) UpdateConsent(ctx context.Context, userID string, channel entities.Channel, granted bool) error {
	column := "consent_email"
	if channel == entities.ChannelSMS {
		column = "consent_sms"
	}
	result := r.db.WithContext(ctx).
		Model(&profileModel{}).
		Where("user_id = ?", strings.TrimSpace(userID)).
		Update(column, granted)
	if result.Error != nil {
		return r.logError("engine_repo_update_consent_failed", result.Error,
			"user_id", strings.TrimSpace(userID),
			"channel", string(channel),
		)
	}
	if result.RowsAffected == 0 {
		r.logWarn("engine_repo_update_consent_not_found",
			"user_id", strings.TrimSpace(userID),
			"channel", string(channel),
		)
		return domainerrors.ErrProfileNotFound
	}
	return nil
}

func (r *Repository) ListEnabledCampaigns(ctx context.Context) ([]entities.Campaign, error) {
	var rows []campaignModel
	if err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("campaign_id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("engine_repo_list_enabled_campaigns_failed", err)
	}
	items := make([]entities.Campaign, 0, len(rows))
	for _, row := range rows {
		campaign, err := row.toEntity()
		if err != nil {
			return nil, r.logError("engine_repo_decode_campaign_failed", err,
				"campaign_id", row.CampaignID,
			)
		}
		items = append(items, campaign)
	}
	return items, nil
}

func (r *Repository) GetCampaign(ctx context.Context, campaignID string) (entities.Campaign, error) {
	var row campaignModel
	err := r.db.WithContext(ctx).
		Where("campaign_id = ?", strings.TrimSpace(campaignID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Campaign{}, domainerrors.ErrCampaignNotFound
		}
		return entities.Campaign{}, r.logError("engine_repo_get_campaign_failed", err,
			"campaign_id", strings.TrimSpace(campaignID),
		)
	}
	return row.toEntity()
}

func (r *Repository) GetTemplate(ctx context.Context, campaignID, variantKey string) (entities.Template, error) {
	var row templateModel
	err := r.db.WithContext(ctx).
		Where("campaign_id = ?", strings.TrimSpace(campaignID)).
		Where("variant_key = ?", strings.TrimSpace(variantKey)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Template{}, domainerrors.ErrTemplateNotFound
		}
		return entities.Template{}, r.logError("engine_repo_get_template_failed", err,
			"campaign_id", strings.TrimSpace(campaignID),
			"variant_key", strings.TrimSpace(variantKey),
		)
	}
	return row.toEntity()
}

func (r *Repository) ListVariantKeys(ctx context.Context, campaignID string) ([]string, error) {
	var keys []string
	if err := r.db.WithContext(ctx).
		Model(&templateModel{}).
		Where("campaign_id = ?", strings.TrimSpace(campaignID)).
		Order("variant_key ASC").
		Pluck("variant_key", &keys).Error; err != nil {
		return nil, r.logError("engine_repo_list_variant_keys_failed", err,
			"campaign_id", strings.TrimSpace(campaignID),
		)
	}
	return keys, nil
}

// deliveryGuardConflict targets the partial unique index backing the
// scheduler guard:
//
//	CREATE UNIQUE INDEX deliveries_user_campaign_active_uniq
//	    ON deliveries (user_id, campaign_id)
//	    WHERE status = 'queued' OR (status = 'suppressed' AND reason = 'holdout');
//
// A queued row blocks re-queueing; a holdout row blocks re-recording the
// same (deterministic) holdout membership every pass. Terminal sent, failed
// and non-holdout suppressed rows fall outside the predicate, so the next
// qualifying trigger can queue again.
func deliveryGuardConflict() clause.OnConflict {
	return clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "campaign_id"}},
		TargetWhere: clause.Where{Exprs: []clause.Expression{
			clause.Expr{
				SQL: "status = ? OR (status = ? AND reason = ?)",
				Vars: []interface{}{
					string(entities.DeliveryQueued),
					string(entities.DeliverySuppressed),
					"holdout",
				},
			},
		}},
		DoNothing: true,
	}
}

func (r *Repository) InsertDeliveryIfAbsent(ctx context.Context, delivery entities.Delivery) (bool, error) {
	row, err := deliveryModelFromEntity(delivery)
	if err != nil {
		return false, r.logError("engine_repo_insert_delivery_encode_failed", err,
			"delivery_id", delivery.DeliveryID,
		)
	}
	result := r.db.WithContext(ctx).Clauses(deliveryGuardConflict()).Create(&row)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return false, nil
		}
		return false, r.logError("engine_repo_insert_delivery_failed", result.Error,
			"delivery_id", delivery.DeliveryID,
			"campaign_id", delivery.CampaignID,
			"user_id", delivery.UserID,
		)
	}
	return result.RowsAffected > 0, nil
}

func (r *Repository) GetDelivery(ctx context.Context, deliveryID string) (entities.Delivery, error) {
	var row deliveryModel
	err := r.db.WithContext(ctx).
		Where("delivery_id = ?", strings.TrimSpace(deliveryID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Delivery{}, domainerrors.ErrDeliveryNotFound
		}
		return entities.Delivery{}, r.logError("engine_repo_get_delivery_failed", err,
			"delivery_id", strings.TrimSpace(deliveryID),
		)
	}
	return row.toEntity()
}

func (r *Repository) ListDeliveries(ctx context.Context, filter ports.DeliveryFilter) ([]entities.Delivery, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := r.db.WithContext(ctx).Model(&deliveryModel{})
	if filter.UserID != "" {
		query = query.Where("user_id = ?", strings.TrimSpace(filter.UserID))
	}
	if filter.CampaignID != "" {
		query = query.Where("campaign_id = ?", strings.TrimSpace(filter.CampaignID))
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	var rows []deliveryModel
	if err := query.Order("created_at ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, r.logError("engine_repo_list_deliveries_failed", err,
			"limit", limit,
		)
	}
	items := make([]entities.Delivery, 0, len(rows))
	for _, row := range rows {
		delivery, err := row.toEntity()
		if err != nil {
			return nil, r.logError("engine_repo_decode_delivery_failed", err,
				"delivery_id", row.DeliveryID,
			)
		}
		items = append(items, delivery)
	}
	return items, nil
}

func (r *Repository) LastSentAt(ctx context.Context, userID, campaignID string) (*time.Time, error) {
	var row deliveryModel
	err := r.db.WithContext(ctx).
		Select("sent_at").
		Where("user_id = ?", strings.TrimSpace(userID)).
		Where("campaign_id = ?", strings.TrimSpace(campaignID)).
		Where("sent_at IS NOT NULL").
		Order("sent_at DESC").
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, r.logError("engine_repo_last_sent_at_failed", err,
			"user_id", strings.TrimSpace(userID),
			"campaign_id", strings.TrimSpace(campaignID),
		)
	}
	return normalizeOptionalTime(row.SentAt), nil
}

func (r *Repository) CountChannelSends(ctx context.Context, userID string, channel entities.Channel, since time.Time) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&deliveryModel{}).
		Where("user_id = ?", strings.TrimSpace(userID)).
		Where("channel = ?", string(channel)).
		Where("sent_at > ?", since.UTC()).
		Count(&count).
		Error; err != nil {
		return 0, r.logError("engine_repo_count_channel_sends_failed", err,
			"user_id", strings.TrimSpace(userID),
			"channel", string(channel),
		)
	}
	return int(count), nil
}

// ClaimQueued leases a batch of due queued deliveries for one worker. Rows
// are locked FOR UPDATE inside the transaction so concurrent workers never
// claim the same delivery.
func (r *Repository) ClaimQueued(ctx context.Context, channel entities.Channel, workerID string, now time.Time, leaseFor time.Duration, limit int) ([]entities.Delivery, error) {
	if limit <= 0 {
		limit = 50
	}
	var claimed []entities.Delivery
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []deliveryModel
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("status = ?", string(entities.DeliveryQueued)).
			Where("channel = ?", string(channel)).
			Where("next_attempt_at <= ?", now.UTC()).
			Where("locked_until IS NULL OR locked_until <= ?", now.UTC()).
			Order("created_at ASC").
			Limit(limit).
			Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		ids := make([]string, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.DeliveryID)
		}
		until := now.Add(leaseFor).UTC()
		if err := tx.Model(&deliveryModel{}).
			Where("delivery_id IN ?", ids).
			Updates(map[string]any{
				"locked_by":    strings.TrimSpace(workerID),
				"locked_until": until,
				"updated_at":   now.UTC(),
			}).Error; err != nil {
			return err
		}

		claimed = make([]entities.Delivery, 0, len(rows))
		for _, row := range rows {
			delivery, err := row.toEntity()
			if err != nil {
				return err
			}
			delivery.LockedBy = strings.TrimSpace(workerID)
			lockedUntil := until
			delivery.LockedUntil = &lockedUntil
			claimed = append(claimed, delivery)
		}
		return nil
	})
	if err != nil {
		return nil, r.logError("engine_repo_claim_queued_failed", err,
			"channel", string(channel),
			"worker_id", strings.TrimSpace(workerID),
		)
	}
	return claimed, nil
}

func (r *Repository) MarkSent(ctx context.Context, deliveryID, workerID, externalID string, at time.Time) error {
	return r.finishClaimed(ctx, deliveryID, workerID, map[string]any{
		"status":      string(entities.DeliverySent),
		"external_id": strings.TrimSpace(externalID),
		"sent_at":     at.UTC(),
		"updated_at":  at.UTC(),
	})
}

func (r *Repository) MarkSuppressed(ctx context.Context, deliveryID, workerID, reason string, at time.Time) error {
	return r.finishClaimed(ctx, deliveryID, workerID, map[string]any{
		"status":     string(entities.DeliverySuppressed),
		"reason":     strings.TrimSpace(reason),
		"updated_at": at.UTC(),
	})
}

func (r *Repository) MarkFailed(ctx context.Context, deliveryID, workerID, reason string, at time.Time) error {
	return r.finishClaimed(ctx, deliveryID, workerID, map[string]any{
		"status":     string(entities.DeliveryFailed),
		"reason":     strings.TrimSpace(reason),
		"updated_at": at.UTC(),
	})
}

func (r *Repository) ReleaseForRetry(ctx context.Context, deliveryID, workerID string, nextAttemptAt time.Time) error {
	return r.finishClaimed(ctx, deliveryID, workerID, map[string]any{
		"attempts":        gorm.Expr("attempts + 1"),
		"next_attempt_at": nextAttemptAt.UTC(),
		"locked_by":       "",
		"locked_until":    nil,
		"updated_at":      nextAttemptAt.UTC(),
	})
}

func (r *Repository) finishClaimed(ctx context.Context, deliveryID, workerID string, updates map[string]any) error {
	query := r.db.WithContext(ctx).
		Model(&deliveryModel{}).
		Where("delivery_id = ?", strings.TrimSpace(deliveryID)).
		Where("status = ?", string(entities.DeliveryQueued))
	if strings.TrimSpace(workerID) != "" {
		query = query.Where("locked_by = ?", strings.TrimSpace(workerID))
	}
	result := query.Updates(updates)
	if result.Error != nil {
		return r.logError("engine_repo_finish_claimed_failed", result.Error,
			"delivery_id", strings.TrimSpace(deliveryID),
			"worker_id", strings.TrimSpace(workerID),
		)
	}
	if result.RowsAffected == 0 {
		r.logWarn("engine_repo_finish_claimed_lost_lease",
			"delivery_id", strings.TrimSpace(deliveryID),
			"worker_id", strings.TrimSpace(workerID),
		)
		return domainerrors.ErrDeliveryNotClaimed
	}
	return nil
}

func (r *Repository) SetClicked(ctx context.Context, deliveryID string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&deliveryModel{}).
		Where("delivery_id = ?", strings.TrimSpace(deliveryID)).
		Where("status = ?", string(entities.DeliverySent)).
		Where("clicked_at IS NULL").
		Updates(map[string]any{
			"clicked_at": at.UTC(),
			"updated_at": at.UTC(),
		})
	if result.Error != nil {
		return r.logError("engine_repo_set_clicked_failed", result.Error,
			"delivery_id", strings.TrimSpace(deliveryID),
		)
	}
	return nil
}

func (r *Repository) ListAttributable(ctx context.Context, userID string, since, until time.Time) ([]entities.Delivery, error) {
	var rows []deliveryModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", strings.TrimSpace(userID)).
		Where("status = ?", string(entities.DeliverySent)).
		Where("sent_at >= ?", since.UTC()).
		Where("sent_at <= ?", until.UTC()).
		Where("attributed_purchase_at IS NULL").
		Order("sent_at ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("engine_repo_list_attributable_failed", err,
			"user_id", strings.TrimSpace(userID),
		)
	}
	items := make([]entities.Delivery, 0, len(rows))
	for _, row := range rows {
		delivery, err := row.toEntity()
		if err != nil {
			return nil, r.logError("engine_repo_decode_delivery_failed", err,
				"delivery_id", row.DeliveryID,
			)
		}
		items = append(items, delivery)
	}
	return items, nil
}

func (r *Repository) SetAttributedIfNull(ctx context.Context, deliveryID string, at time.Time, revenueCents int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&deliveryModel{}).
		Where("delivery_id = ?", strings.TrimSpace(deliveryID)).
		Where("attributed_purchase_at IS NULL").
		Updates(map[string]any{
			"attributed_purchase_at":   at.UTC(),
			"attributed_revenue_cents": revenueCents,
			"updated_at":               at.UTC(),
		})
	if result.Error != nil {
		return false, r.logError("engine_repo_set_attributed_failed", result.Error,
			"delivery_id", strings.TrimSpace(deliveryID),
		)
	}
	return result.RowsAffected > 0, nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+7)
	fields = append(fields,
		"event", event,
		"module", "lifecycle/campaign-engine",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("campaign engine repository operation failed", fields...)
	return err
}

func (r *Repository) logWarn(event string, attrs ...any) {
	fields := make([]any, 0, len(attrs)+5)
	fields = append(fields,
		"event", event,
		"module", "lifecycle/campaign-engine",
		"layer", "adapter",
	)
	fields = append(fields, attrs...)
	r.logger.Warn("campaign engine repository warning", fields...)
}

type eventLogModel struct {
	EventID        string    `gorm:"column:event_id;primaryKey"`
	UserID         string    `gorm:"column:user_id"`
	AnonymousID    string    `gorm:"column:anonymous_id"`
	Name           string    `gorm:"column:name"`
	Properties     []byte    `gorm:"column:properties;type:jsonb"`
	OccurredAt     time.Time `gorm:"column:occurred_at"`
	Source         string    `gorm:"column:source"`
	IdempotencyKey *string   `gorm:"column:idempotency_key"`
	ReceivedAt     time.Time `gorm:"column:received_at"`
}

func (eventLogModel) TableName() string {
	return "event_log"
}

func eventModelFromEntity(event entities.Event) (eventLogModel, error) {
	properties, err := json.Marshal(event.Properties)
	if err != nil {
		return eventLogModel{}, err
	}
	row := eventLogModel{
		EventID:     strings.TrimSpace(event.EventID),
		UserID:      strings.TrimSpace(event.UserID),
		AnonymousID: strings.TrimSpace(event.AnonymousID),
		Name:        strings.TrimSpace(event.Name),
		Properties:  properties,
		OccurredAt:  event.OccurredAt.UTC(),
		Source:      strings.TrimSpace(event.Source),
		ReceivedAt:  event.ReceivedAt.UTC(),
	}
	if key := strings.TrimSpace(event.IdempotencyKey); key != "" {
		row.IdempotencyKey = &key
	}
	return row, nil
}

type userTraitsModel struct {
	UserID                  string     `gorm:"column:user_id;primaryKey"`
	LastSeen                time.Time  `gorm:"column:last_seen"`
	Sessions7d              int        `gorm:"column:sessions_7d"`
	Sessions30d             int        `gorm:"column:sessions_30d"`
	OnboardingStage         string     `gorm:"column:onboarding_stage"`
	OnboardingCompletedAt   *time.Time `gorm:"column:onboarding_completed_at"`
	PaywallLastSeen         *time.Time `gorm:"column:paywall_last_seen"`
	PaywallImpressionsTotal int        `gorm:"column:paywall_impressions_total"`
	SubscriptionStatus      string     `gorm:"column:subscription_status"`
	ActiveDates             []byte     `gorm:"column:active_dates;type:jsonb"`
	DaysActive28d           int        `gorm:"column:days_active_28d"`
	IsHeavyUser             bool       `gorm:"column:is_heavy_user"`
	UpdatedAt               time.Time  `gorm:"column:updated_at"`
}

func (userTraitsModel) TableName() string {
	return "user_traits"
}

func traitsModelFromEntity(traits entities.UserTraits) userTraitsModel {
	activeDates, _ := json.Marshal(traits.ActiveDates)
	return userTraitsModel{
		UserID:                  strings.TrimSpace(traits.UserID),
		LastSeen:                traits.LastSeen.UTC(),
		Sessions7d:              traits.Sessions7d,
		Sessions30d:             traits.Sessions30d,
		OnboardingStage:         traits.OnboardingStage,
		OnboardingCompletedAt:   normalizeOptionalTime(traits.OnboardingCompletedAt),
		PaywallLastSeen:         normalizeOptionalTime(traits.PaywallLastSeen),
		PaywallImpressionsTotal: traits.PaywallImpressionsTotal,
		SubscriptionStatus:      strings.TrimSpace(traits.SubscriptionStatus),
		ActiveDates:             activeDates,
		DaysActive28d:           traits.DaysActive28d,
		IsHeavyUser:             traits.IsHeavyUser,
		UpdatedAt:               traits.UpdatedAt.UTC(),
	}
}

func (m userTraitsModel) toEntity() entities.UserTraits {
	var activeDates []string
	if len(m.ActiveDates) > 0 {
		_ = json.Unmarshal(m.ActiveDates, &activeDates)
	}
	return entities.UserTraits{
		UserID:                  m.UserID,
		LastSeen:                m.LastSeen.UTC(),
		Sessions7d:              m.Sessions7d,
		Sessions30d:             m.Sessions30d,
		OnboardingStage:         m.OnboardingStage,
		OnboardingCompletedAt:   normalizeOptionalTime(m.OnboardingCompletedAt),
		PaywallLastSeen:         normalizeOptionalTime(m.PaywallLastSeen),
		PaywallImpressionsTotal: m.PaywallImpressionsTotal,
		SubscriptionStatus:      m.SubscriptionStatus,
		ActiveDates:             activeDates,
		DaysActive28d:           m.DaysActive28d,
		IsHeavyUser:             m.IsHeavyUser,
		UpdatedAt:               m.UpdatedAt.UTC(),
	}
}

type profileModel struct {
	UserID       string `gorm:"column:user_id;primaryKey"`
	Email        string `gorm:"column:email"`
	Phone        string `gorm:"column:phone"`
	ConsentEmail bool   `gorm:"column:consent_email"`
	ConsentSMS   bool   `gorm:"column:consent_sms"`
	Timezone     string `gorm:"column:timezone"`
}

func (profileModel) TableName() string {
	return "profiles"
}

func (m profileModel) toEntity() entities.Profile {
	return entities.Profile{
		UserID:       m.UserID,
		Email:        m.Email,
		Phone:        m.Phone,
		ConsentEmail: m.ConsentEmail,
		ConsentSMS:   m.ConsentSMS,
		Timezone:     m.Timezone,
	}
}

type campaignModel struct {
	CampaignID    string    `gorm:"column:campaign_id;primaryKey"`
	Name          string    `gorm:"column:name"`
	Channel       string    `gorm:"column:channel"`
	Segment       string    `gorm:"column:segment"`
	Rule          []byte    `gorm:"column:rule;type:jsonb"`
	CooldownHours int       `gorm:"column:cooldown_hours"`
	HoldoutPct    int       `gorm:"column:holdout_pct"`
	Enabled       bool      `gorm:"column:enabled"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

func (campaignModel) TableName() string {
	return "campaigns"
}

func (m campaignModel) toEntity() (entities.Campaign, error) {
	var rule entities.SegmentRule
	if len(m.Rule) > 0 {
		if err := json.Unmarshal(m.Rule, &rule); err != nil {
			return entities.Campaign{}, err
		}
	}
	return entities.Campaign{
		CampaignID:    m.CampaignID,
		Name:          m.Name,
		Channel:       entities.Channel(m.Channel),
		Segment:       m.Segment,
		Rule:          rule,
		CooldownHours: m.CooldownHours,
		HoldoutPct:    m.HoldoutPct,
		Enabled:       m.Enabled,
		CreatedAt:     m.CreatedAt.UTC(),
	}, nil
}

type templateModel struct {
	CampaignID     string `gorm:"column:campaign_id;primaryKey"`
	VariantKey     string `gorm:"column:variant_key;primaryKey"`
	Subject        string `gorm:"column:subject"`
	Body           string `gorm:"column:body"`
	SMSText        string `gorm:"column:sms_text"`
	DeepLinkPath   string `gorm:"column:deep_link_path"`
	DeepLinkParams []byte `gorm:"column:deep_link_params;type:jsonb"`
}

func (templateModel) TableName() string {
	return "templates"
}

func (m templateModel) toEntity() (entities.Template, error) {
	var params map[string]string
	if len(m.DeepLinkParams) > 0 {
		if err := json.Unmarshal(m.DeepLinkParams, &params); err != nil {
			return entities.Template{}, err
		}
	}
	return entities.Template{
		CampaignID:     m.CampaignID,
		VariantKey:     m.VariantKey,
		Subject:        m.Subject,
		Body:           m.Body,
		SMSText:        m.SMSText,
		DeepLinkPath:   m.DeepLinkPath,
		DeepLinkParams: params,
	}, nil
}

type deliveryModel struct {
	DeliveryID             string     `gorm:"column:delivery_id;primaryKey"`
	CampaignID             string     `gorm:"column:campaign_id"`
	UserID                 string     `gorm:"column:user_id"`
	VariantKey             string     `gorm:"column:variant_key"`
	Channel                string     `gorm:"column:channel"`
	Status                 string     `gorm:"column:status"`
	Reason                 string     `gorm:"column:reason"`
	Context                []byte     `gorm:"column:context;type:jsonb"`
	ExternalID             string     `gorm:"column:external_id"`
	Attempts               int        `gorm:"column:attempts"`
	NextAttemptAt          time.Time  `gorm:"column:next_attempt_at"`
	LockedBy               string     `gorm:"column:locked_by"`
	LockedUntil            *time.Time `gorm:"column:locked_until"`
	SentAt                 *time.Time `gorm:"column:sent_at"`
	ClickedAt              *time.Time `gorm:"column:clicked_at"`
	AttributedPurchaseAt   *time.Time `gorm:"column:attributed_purchase_at"`
	AttributedRevenueCents *int64     `gorm:"column:attributed_revenue_cents"`
	CreatedAt              time.Time  `gorm:"column:created_at"`
	UpdatedAt              time.Time  `gorm:"column:updated_at"`
}

func (deliveryModel) TableName() string {
	return "deliveries"
}

func deliveryModelFromEntity(delivery entities.Delivery) (deliveryModel, error) {
	contextPayload, err := json.Marshal(delivery.Context)
	if err != nil {
		return deliveryModel{}, err
	}
	return deliveryModel{
		DeliveryID:             strings.TrimSpace(delivery.DeliveryID),
		CampaignID:             strings.TrimSpace(delivery.CampaignID),
		UserID:                 strings.TrimSpace(delivery.UserID),
		VariantKey:             strings.TrimSpace(delivery.VariantKey),
		Channel:                string(delivery.Channel),
		Status:                 string(delivery.Status),
		Reason:                 strings.TrimSpace(delivery.Reason),
		Context:                contextPayload,
		ExternalID:             strings.TrimSpace(delivery.ExternalID),
		Attempts:               delivery.Attempts,
		NextAttemptAt:          delivery.NextAttemptAt.UTC(),
		LockedBy:               strings.TrimSpace(delivery.LockedBy),
		LockedUntil:            normalizeOptionalTime(delivery.LockedUntil),
		SentAt:                 normalizeOptionalTime(delivery.SentAt),
		ClickedAt:              normalizeOptionalTime(delivery.ClickedAt),
		AttributedPurchaseAt:   normalizeOptionalTime(delivery.AttributedPurchaseAt),
		AttributedRevenueCents: delivery.AttributedRevenueCents,
		CreatedAt:              delivery.CreatedAt.UTC(),
		UpdatedAt:              delivery.UpdatedAt.UTC(),
	}, nil
}

func (m deliveryModel) toEntity() (entities.Delivery, error) {
	var contextPayload map[string]any
	if len(m.Context) > 0 {
		if err := json.Unmarshal(m.Context, &contextPayload); err != nil {
			return entities.Delivery{}, err
		}
	}
	return entities.Delivery{
		DeliveryID:             m.DeliveryID,
		CampaignID:             m.CampaignID,
		UserID:                 m.UserID,
		VariantKey:             m.VariantKey,
		Channel:                entities.Channel(m.Channel),
		Status:                 entities.DeliveryStatus(m.Status),
		Reason:                 m.Reason,
		Context:                contextPayload,
		ExternalID:             m.ExternalID,
		Attempts:               m.Attempts,
		NextAttemptAt:          m.NextAttemptAt.UTC(),
		LockedBy:               m.LockedBy,
		LockedUntil:            normalizeOptionalTime(m.LockedUntil),
		SentAt:                 normalizeOptionalTime(m.SentAt),
		ClickedAt:              normalizeOptionalTime(m.ClickedAt),
		AttributedPurchaseAt:   normalizeOptionalTime(m.AttributedPurchaseAt),
		AttributedRevenueCents: m.AttributedRevenueCents,
		CreatedAt:              m.CreatedAt.UTC(),
		UpdatedAt:              m.UpdatedAt.UTC(),
	}, nil
}

func normalizeOptionalTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	t := value.UTC()
	return &t
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ ports.EventRepository = (*Repository)(nil)
var _ ports.TraitsRepository = (*Repository)(nil)
var _ ports.ProfileRepository = (*Repository)(nil)
var _ ports.CampaignRepository = (*Repository)(nil)
var _ ports.TemplateRepository = (*Repository)(nil)
var _ ports.DeliveryRepository = (*Repository)(nil)
