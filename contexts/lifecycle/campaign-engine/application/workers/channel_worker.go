package workers

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	application "everreach/contexts/lifecycle/campaign-engine/application"
	"everreach/contexts/lifecycle/campaign-engine/domain/entities"
	domainerrors "everreach/contexts/lifecycle/campaign-engine/domain/errors"
	"everreach/contexts/lifecycle/campaign-engine/domain/render"
	"everreach/contexts/lifecycle/campaign-engine/ports"
)

// WorkerReport is returned from one send pass.
type WorkerReport struct {
	Processed  int `json:"processed"`
	Sent       int `json:"sent"`
	Suppressed int `json:"suppressed"`
	Failed     int `json:"failed"`
	Retried    int `json:"retried"`
}

// ChannelWorker drains queued deliveries for one channel. Each pass claims a
// bounded FIFO batch under a lease, re-checks consent last-mile, renders the
// variant, and calls the transport. A bad row fails alone; the pass continues.
type ChannelWorker struct {
	Channel     entities.Channel
	WorkerID    string
	Deliveries  ports.DeliveryRepository
	Profiles    ports.ProfileRepository
	Templates   ports.TemplateRepository
	Transport   ports.Transport
	Renderer    render.Renderer
	Publisher   ports.OutcomePublisher
	Clock       ports.Clock
	BatchSize   int
	LeaseFor    time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	SendTimeout time.Duration
	Logger      *slog.Logger
}

func (w ChannelWorker) RunOnce(ctx context.Context) (WorkerReport, error) {
	logger := application.ResolveLogger(w.Logger)
	now := w.Clock.Now().UTC()
	report := WorkerReport{}

	limit := w.BatchSize
	if limit <= 0 {
		limit = 50
	}
	lease := w.LeaseFor
	if lease <= 0 {
		lease = 5 * time.Minute
	}

	batch, err := w.Deliveries.ClaimQueued(ctx, w.Channel, w.WorkerID, now, lease, limit)
	if err != nil {
		logger.Error("delivery claim failed",
			"event", "lifecycle_worker_claim_failed",
			"module", "lifecycle/campaign-engine",
			"layer", "worker",
			"channel", string(w.Channel),
			"error", err.Error(),
		)
		return report, err
	}

	for _, delivery := range batch {
		report.Processed++
		w.processOne(ctx, delivery, &report, logger)
	}

	if report.Processed > 0 {
		logger.Info("send pass completed",
			"event", "lifecycle_worker_completed",
			"module", "lifecycle/campaign-engine",
			"layer", "worker",
			"channel", string(w.Channel),
			"processed", report.Processed,
			"sent", report.Sent,
			"suppressed", report.Suppressed,
			"failed", report.Failed,
			"retried", report.Retried,
		)
	}
	return report, nil
}

func (w ChannelWorker) processOne(ctx context.Context, delivery entities.Delivery, report *WorkerReport, logger *slog.Logger) {
	now := w.Clock.Now().UTC()

	// Last-mile consent/destination re-check: time has passed since queueing.
	profile, err := w.Profiles.GetProfile(ctx, delivery.UserID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrProfileNotFound) {
			w.suppress(ctx, delivery, "profile_missing", report, logger)
			return
		}
		// Transient store failure: keep the lease so the row returns to the
		// queue when it expires, instead of terminally suppressing it.
		logger.Error("profile lookup failed",
			"event", "lifecycle_worker_profile_lookup_failed",
			"module", "lifecycle/campaign-engine",
			"layer", "worker",
			"delivery_id", delivery.DeliveryID,
			"user_id", delivery.UserID,
			"error", err.Error(),
		)
		return
	}
	if reason, ok := w.destinationBlocked(profile); ok {
		w.suppress(ctx, delivery, reason, report, logger)
		return
	}

	tmpl, err := w.Templates.GetTemplate(ctx, delivery.CampaignID, delivery.VariantKey)
	if err != nil {
		if !errors.Is(err, domainerrors.ErrTemplateNotFound) {
			logger.Error("template lookup failed",
				"event", "lifecycle_worker_template_lookup_failed",
				"module", "lifecycle/campaign-engine",
				"layer", "worker",
				"delivery_id", delivery.DeliveryID,
				"campaign_id", delivery.CampaignID,
				"error", err.Error(),
			)
			return
		}
		// Data integrity violation: fatal for this row only.
		if markErr := w.Deliveries.MarkFailed(ctx, delivery.DeliveryID, w.WorkerID, "missing_template", now); markErr != nil {
			logger.Error("mark failed errored",
				"event", "lifecycle_worker_mark_failed_error",
				"module", "lifecycle/campaign-engine",
				"layer", "worker",
				"delivery_id", delivery.DeliveryID,
				"error", markErr.Error(),
			)
			return
		}
		report.Failed++
		w.publish(ctx, "delivery.failed", delivery, "missing_template")
		return
	}

	message := w.renderMessage(tmpl, profile, delivery)

	sendCtx := ctx
	if w.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, w.SendTimeout)
		defer cancel()
	}
	externalID, err := w.Transport.Send(sendCtx, message.To, message.Subject, message.Body)
	if err == nil {
		if markErr := w.Deliveries.MarkSent(ctx, delivery.DeliveryID, w.WorkerID, externalID, now); markErr != nil {
			logger.Error("mark sent errored",
				"event", "lifecycle_worker_mark_sent_error",
				"module", "lifecycle/campaign-engine",
				"layer", "worker",
				"delivery_id", delivery.DeliveryID,
				"error", markErr.Error(),
			)
			return
		}
		report.Sent++
		w.publish(ctx, "delivery.sent", delivery, "")
		return
	}

	if te, ok := domainerrors.AsTransportError(err); ok && te.Permanent {
		// Hard recipient failure: suppress and push the signal back into the
		// consent store so the next tick never re-queues this destination.
		w.suppress(ctx, delivery, te.Reason, report, logger)
		if consentErr := w.Profiles.UpdateConsent(ctx, delivery.UserID, delivery.Channel, false); consentErr != nil {
			logger.Error("consent feedback failed",
				"event", "lifecycle_worker_consent_feedback_failed",
				"module", "lifecycle/campaign-engine",
				"layer", "worker",
				"user_id", delivery.UserID,
				"error", consentErr.Error(),
			)
		}
		return
	}

	// Retryable transport failure.
	maxAttempts := w.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	attempts := delivery.Attempts + 1
	if attempts >= maxAttempts {
		if markErr := w.Deliveries.MarkFailed(ctx, delivery.DeliveryID, w.WorkerID, "retries_exhausted", now); markErr == nil {
			report.Failed++
			w.publish(ctx, "delivery.failed", delivery, "retries_exhausted")
		}
		return
	}

	backoff := w.BackoffBase
	if backoff <= 0 {
		backoff = time.Minute
	}
	next := now.Add(time.Duration(math.Pow(2, float64(delivery.Attempts))) * backoff)
	if releaseErr := w.Deliveries.ReleaseForRetry(ctx, delivery.DeliveryID, w.WorkerID, next); releaseErr == nil {
		report.Retried++
	}
}

func (w ChannelWorker) destinationBlocked(profile entities.Profile) (string, bool) {
	switch w.Channel {
	case entities.ChannelEmail:
		if !profile.ConsentEmail {
			return "consent_revoked", true
		}
		if !profile.HasEmail() {
			return "no_destination", true
		}
	case entities.ChannelSMS:
		if !profile.ConsentSMS {
			return "consent_revoked", true
		}
		if !profile.HasValidPhone() {
			return "no_destination", true
		}
	}
	return "", false
}

func (w ChannelWorker) renderMessage(tmpl entities.Template, profile entities.Profile, delivery entities.Delivery) render.Message {
	if w.Channel == entities.ChannelSMS {
		return w.Renderer.SMS(tmpl, profile, delivery)
	}
	return w.Renderer.Email(tmpl, profile, delivery)
}

func (w ChannelWorker) suppress(ctx context.Context, delivery entities.Delivery, reason string, report *WorkerReport, logger *slog.Logger) {
	if err := w.Deliveries.MarkSuppressed(ctx, delivery.DeliveryID, w.WorkerID, reason, w.Clock.Now().UTC()); err != nil {
		logger.Error("mark suppressed errored",
			"event", "lifecycle_worker_mark_suppressed_error",
			"module", "lifecycle/campaign-engine",
			"layer", "worker",
			"delivery_id", delivery.DeliveryID,
			"error", err.Error(),
		)
		return
	}
	report.Suppressed++
	w.publish(ctx, "delivery.suppressed", delivery, reason)
}

func (w ChannelWorker) publish(ctx context.Context, topic string, delivery entities.Delivery, reason string) {
	if w.Publisher == nil {
		return
	}
	_ = w.Publisher.Publish(ctx, topic, map[string]any{
		"delivery_id": delivery.DeliveryID,
		"campaign_id": delivery.CampaignID,
		"user_id":     delivery.UserID,
		"channel":     string(delivery.Channel),
		"variant_key": delivery.VariantKey,
		"reason":      reason,
	})
}
