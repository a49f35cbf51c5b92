package httpadapter

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "everreach/contexts/lifecycle/campaign-engine/application"
	"everreach/contexts/lifecycle/campaign-engine/application/commands"
	"everreach/contexts/lifecycle/campaign-engine/application/queries"
	"everreach/contexts/lifecycle/campaign-engine/application/workers"
	"everreach/contexts/lifecycle/campaign-engine/domain/entities"
	domainerrors "everreach/contexts/lifecycle/campaign-engine/domain/errors"
	httptransport "everreach/contexts/lifecycle/campaign-engine/transport/http"
)

type Handler struct {
	Ingest      commands.IngestEventUseCase
	TrackClick  commands.TrackClickUseCase
	Segments    queries.EvaluateSegmentUseCase
	Deliveries  queries.ListDeliveriesUseCase
	Delivery    queries.GetDeliveryUseCase
	Scheduler   workers.Scheduler
	EmailWorker workers.ChannelWorker
	SMSWorker   workers.ChannelWorker
	Logger      *slog.Logger
}

func (h Handler) IngestEventHandler(
	ctx context.Context,
	req httptransport.IngestEventRequest,
) (httptransport.IngestEventResponse, error) {
	logger := application.ResolveLogger(h.Logger)

	var occurredAt time.Time
	if raw := strings.TrimSpace(req.OccurredAt); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			logger.Warn("lifecycle http ingest parse failed",
				"event", "lifecycle_http_ingest_parse_failed",
				"module", "lifecycle/campaign-engine",
				"layer", "adapter",
				"event_name", strings.TrimSpace(req.Name),
				"error", err.Error(),
			)
			return httptransport.IngestEventResponse{}, domainerrors.ErrInvalidEventInput
		}
		occurredAt = parsed
	}

	result, err := h.Ingest.Execute(ctx, commands.IngestEventCommand{
		UserID:         req.UserID,
		AnonymousID:    req.AnonymousID,
		Name:           req.Name,
		Properties:     req.Properties,
		OccurredAt:     occurredAt,
		Source:         req.Source,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		logger.Warn("lifecycle http ingest failed",
			"event", "lifecycle_http_ingest_failed",
			"module", "lifecycle/campaign-engine",
			"layer", "adapter",
			"event_name", strings.TrimSpace(req.Name),
			"error", err.Error(),
		)
		return httptransport.IngestEventResponse{}, err
	}
	return httptransport.IngestEventResponse{
		EventID:      result.EventID,
		Deduplicated: result.Deduplicated,
		Attributed:   result.Attributed,
	}, nil
}

func (h Handler) SegmentHandler(ctx context.Context, segmentName string) (httptransport.SegmentResponse, error) {
	logger := application.ResolveLogger(h.Logger)

	members, err := h.Segments.Execute(ctx, segmentName)
	if err != nil {
		logger.Warn("lifecycle http segment evaluation failed",
			"event", "lifecycle_http_segment_failed",
			"module", "lifecycle/campaign-engine",
			"layer", "adapter",
			"segment", strings.TrimSpace(segmentName),
			"error", err.Error(),
		)
		return httptransport.SegmentResponse{}, err
	}
	dtos := make([]httptransport.SegmentMemberDTO, 0, len(members))
	for _, member := range members {
		dtos = append(dtos, httptransport.SegmentMemberDTO{
			UserID:     member.UserID,
			VariantKey: member.VariantKey,
			Reason:     member.Reason,
		})
	}
	return httptransport.SegmentResponse{
		Segment: strings.TrimSpace(segmentName),
		Count:   len(dtos),
		Members: dtos,
	}, nil
}

func (h Handler) RunCampaignsHandler(ctx context.Context) (workers.SchedulerReport, error) {
	logger := application.ResolveLogger(h.Logger)

	report, err := h.Scheduler.RunOnce(ctx)
	if err != nil {
		logger.Warn("lifecycle http scheduler run failed",
			"event", "lifecycle_http_scheduler_failed",
			"module", "lifecycle/campaign-engine",
			"layer", "adapter",
			"error", err.Error(),
		)
		return workers.SchedulerReport{}, err
	}
	return report, nil
}

func (h Handler) SendEmailHandler(ctx context.Context) (workers.WorkerReport, error) {
	return h.runWorker(ctx, h.EmailWorker)
}

func (h Handler) SendSMSHandler(ctx context.Context) (workers.WorkerReport, error) {
	return h.runWorker(ctx, h.SMSWorker)
}

func (h Handler) runWorker(ctx context.Context, worker workers.ChannelWorker) (workers.WorkerReport, error) {
	logger := application.ResolveLogger(h.Logger)

	report, err := worker.RunOnce(ctx)
	if err != nil {
		logger.Warn("lifecycle http worker run failed",
			"event", "lifecycle_http_worker_failed",
			"module", "lifecycle/campaign-engine",
			"layer", "adapter",
			"channel", string(worker.Channel),
			"error", err.Error(),
		)
		return workers.WorkerReport{}, err
	}
	return report, nil
}

func (h Handler) ListDeliveriesHandler(
	ctx context.Context,
	query queries.ListDeliveriesQuery,
) (httptransport.DeliveryListResponse, error) {
	logger := application.ResolveLogger(h.Logger)

	deliveries, err := h.Deliveries.Execute(ctx, query)
	if err != nil {
		logger.Warn("lifecycle http list deliveries failed",
			"event", "lifecycle_http_list_deliveries_failed",
			"module", "lifecycle/campaign-engine",
			"layer", "adapter",
			"error", err.Error(),
		)
		return httptransport.DeliveryListResponse{}, err
	}
	dtos := make([]httptransport.DeliveryDTO, 0, len(deliveries))
	for _, delivery := range deliveries {
		dtos = append(dtos, mapDelivery(delivery))
	}
	return httptransport.DeliveryListResponse{
		Count:      len(dtos),
		Deliveries: dtos,
	}, nil
}

func (h Handler) GetDeliveryHandler(ctx context.Context, deliveryID string) (httptransport.DeliveryDTO, error) {
	logger := application.ResolveLogger(h.Logger)

	delivery, err := h.Delivery.Execute(ctx, deliveryID)
	if err != nil {
		logger.Warn("lifecycle http get delivery failed",
			"event", "lifecycle_http_get_delivery_failed",
			"module", "lifecycle/campaign-engine",
			"layer", "adapter",
			"delivery_id", strings.TrimSpace(deliveryID),
			"error", err.Error(),
		)
		return httptransport.DeliveryDTO{}, err
	}
	return mapDelivery(delivery), nil
}

// RedirectHandler resolves a tracked click to its deep-link destination.
func (h Handler) RedirectHandler(ctx context.Context, deliveryID string) (string, error) {
	logger := application.ResolveLogger(h.Logger)

	result, err := h.TrackClick.Execute(ctx, deliveryID)
	if err != nil {
		logger.Warn("lifecycle http redirect failed",
			"event", "lifecycle_http_redirect_failed",
			"module", "lifecycle/campaign-engine",
			"layer", "adapter",
			"delivery_id", strings.TrimSpace(deliveryID),
			"error", err.Error(),
		)
		return "", err
	}
	return result.Destination, nil
}

func mapDelivery(delivery entities.Delivery) httptransport.DeliveryDTO {
	dto := httptransport.DeliveryDTO{
		DeliveryID:             delivery.DeliveryID,
		CampaignID:             delivery.CampaignID,
		UserID:                 delivery.UserID,
		VariantKey:             delivery.VariantKey,
		Channel:                string(delivery.Channel),
		Status:                 string(delivery.Status),
		Reason:                 delivery.Reason,
		Context:                delivery.Context,
		ExternalID:             delivery.ExternalID,
		Attempts:               delivery.Attempts,
		AttributedRevenueCents: delivery.AttributedRevenueCents,
		CreatedAt:              delivery.CreatedAt.Format(time.RFC3339),
	}
	if !delivery.NextAttemptAt.IsZero() {
		dto.NextAttemptAt = delivery.NextAttemptAt.Format(time.RFC3339)
	}
	if delivery.SentAt != nil {
		dto.SentAt = delivery.SentAt.Format(time.RFC3339)
	}
	if delivery.ClickedAt != nil {
		dto.ClickedAt = delivery.ClickedAt.Format(time.RFC3339)
	}
	if delivery.AttributedPurchaseAt != nil {
		dto.AttributedPurchaseAt = delivery.AttributedPurchaseAt.Format(time.RFC3339)
	}
	return dto
}
