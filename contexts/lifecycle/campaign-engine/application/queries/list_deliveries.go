package queries

import (
	"context"
	"log/slog"
	"strings"

	"everreach/contexts/lifecycle/campaign-engine/domain/entities"
	"everreach/contexts/lifecycle/campaign-engine/ports"
)

// ListDeliveriesUseCase is the read-only projection of delivery rows for
// dashboards and attribution UIs. External systems never write deliveries.
type ListDeliveriesUseCase struct {
	Deliveries ports.DeliveryRepository
	Logger     *slog.Logger
}

type ListDeliveriesQuery struct {
	UserID     string
	CampaignID string
	Status     string
	Limit      int
}

func (uc ListDeliveriesUseCase) Execute(ctx context.Context, query ListDeliveriesQuery) ([]entities.Delivery, error) {
	limit := query.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return uc.Deliveries.ListDeliveries(ctx, ports.DeliveryFilter{
		UserID:     strings.TrimSpace(query.UserID),
		CampaignID: strings.TrimSpace(query.CampaignID),
		Status:     entities.DeliveryStatus(strings.TrimSpace(query.Status)),
		Limit:      limit,
	})
}

// GetDeliveryUseCase fetches one delivery by id.
type GetDeliveryUseCase struct {
	Deliveries ports.DeliveryRepository
	Logger     *slog.Logger
}

func (uc GetDeliveryUseCase) Execute(ctx context.Context, deliveryID string) (entities.Delivery, error) {
	return uc.Deliveries.GetDelivery(ctx, strings.TrimSpace(deliveryID))
}
