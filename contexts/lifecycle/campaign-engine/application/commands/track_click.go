package commands

import (
	"context"
	"log/slog"

	application "everreach/contexts/lifecycle/campaign-engine/application"
	"everreach/contexts/lifecycle/campaign-engine/domain/entities"
	"everreach/contexts/lifecycle/campaign-engine/domain/render"
	"everreach/contexts/lifecycle/campaign-engine/ports"
)

// TrackClickUseCase resolves a click-tracking redirect: stamp clicked_at on
// the delivery (first click wins) and hand back the destination deep link.
type TrackClickUseCase struct {
	Deliveries ports.DeliveryRepository
	Templates  ports.TemplateRepository
	Renderer   render.Renderer
	Clock      ports.Clock
	Logger     *slog.Logger
}

type TrackClickResult struct {
	Destination string
}

func (uc TrackClickUseCase) Execute(ctx context.Context, deliveryID string) (TrackClickResult, error) {
	logger := application.ResolveLogger(uc.Logger)

	delivery, err := uc.Deliveries.GetDelivery(ctx, deliveryID)
	if err != nil {
		return TrackClickResult{}, err
	}

	if delivery.Status == entities.DeliverySent {
		if err := uc.Deliveries.SetClicked(ctx, delivery.DeliveryID, uc.Clock.Now().UTC()); err != nil {
			return TrackClickResult{}, err
		}
		logger.Info("delivery clicked",
			"event", "lifecycle_delivery_clicked",
			"module", "lifecycle/campaign-engine",
			"layer", "application",
			"delivery_id", delivery.DeliveryID,
			"campaign_id", delivery.CampaignID,
		)
	}

	tmpl, err := uc.Templates.GetTemplate(ctx, delivery.CampaignID, delivery.VariantKey)
	if err != nil {
		// The click is still recorded; fall back to the app root.
		return TrackClickResult{Destination: uc.Renderer.BaseURL}, nil
	}
	return TrackClickResult{Destination: uc.Renderer.DeepLink(tmpl, delivery)}, nil
}
