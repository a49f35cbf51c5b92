package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type IngestEventRequest struct {
	UserID         string         `json:"user_id,omitempty"`
	AnonymousID    string         `json:"anonymous_id,omitempty"`
	Name           string         `json:"name"`
	Properties     map[string]any `json:"properties,omitempty"`
	OccurredAt     string         `json:"occurred_at,omitempty"`
	Source         string         `json:"source,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

type IngestEventResponse struct {
	EventID      string `json:"event_id,omitempty"`
	Deduplicated bool   `json:"deduplicated"`
	Attributed   bool   `json:"attributed"`
}

type SegmentMemberDTO struct {
	UserID     string `json:"user_id"`
	VariantKey string `json:"variant_key,omitempty"`
	Reason     string `json:"reason"`
}

type SegmentResponse struct {
	Segment string             `json:"segment"`
	Count   int                `json:"count"`
	Members []SegmentMemberDTO `json:"members"`
}

type DeliveryDTO struct {
	DeliveryID             string         `json:"delivery_id"`
	CampaignID             string         `json:"campaign_id"`
	UserID                 string         `json:"user_id"`
	VariantKey             string         `json:"variant_key"`
	Channel                string         `json:"channel"`
	Status                 string         `json:"status"`
	Reason                 string         `json:"reason,omitempty"`
	Context                map[string]any `json:"context,omitempty"`
	ExternalID             string         `json:"external_id,omitempty"`
	Attempts               int            `json:"attempts"`
	NextAttemptAt          string         `json:"next_attempt_at,omitempty"`
	SentAt                 string         `json:"sent_at,omitempty"`
	ClickedAt              string         `json:"clicked_at,omitempty"`
	AttributedPurchaseAt   string         `json:"attributed_purchase_at,omitempty"`
	AttributedRevenueCents *int64         `json:"attributed_revenue_cents,omitempty"`
	CreatedAt              string         `json:"created_at"`
}

type DeliveryListResponse struct {
	Count      int           `json:"count"`
	Deliveries []DeliveryDTO `json:"deliveries"`
}
