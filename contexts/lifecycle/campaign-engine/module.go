package campaignengine

import (
	"log/slog"
	"time"

	httpadapter "everreach/contexts/lifecycle/campaign-engine/adapters/http"
	"everreach/contexts/lifecycle/campaign-engine/adapters/memory"
	"everreach/contexts/lifecycle/campaign-engine/application/commands"
	"everreach/contexts/lifecycle/campaign-engine/application/queries"
	"everreach/contexts/lifecycle/campaign-engine/application/workers"
	"everreach/contexts/lifecycle/campaign-engine/domain/entities"
	"everreach/contexts/lifecycle/campaign-engine/domain/policy"
	"everreach/contexts/lifecycle/campaign-engine/domain/render"
	"everreach/contexts/lifecycle/campaign-engine/ports"
)

type Module struct {
	Handler httpadapter.Handler
	Store   *memory.Store

	// Populated only by NewInMemoryModule; tests inspect these.
	EmailTransport *memory.FakeTransport
	SMSTransport   *memory.FakeTransport
	Publisher      *memory.FakePublisher
}

// Settings carries the engine tunables that are not port implementations.
type Settings struct {
	BaseURL            string
	HeavyUserThreshold int
	ConversionEvent    string
	AttributionWindow  time.Duration
	AttributionMode    commands.AttributionMode
	Policy             policy.Config
	WorkerID           string
	BatchSize          int
	LeaseFor           time.Duration
	MaxAttempts        int
	BackoffBase        time.Duration
	SendTimeout        time.Duration
}

type Dependencies struct {
	Events         ports.EventRepository
	Traits         ports.TraitsRepository
	Profiles       ports.ProfileRepository
	Campaigns      ports.CampaignRepository
	Templates      ports.TemplateRepository
	Deliveries     ports.DeliveryRepository
	EmailTransport ports.Transport
	SMSTransport   ports.Transport
	Publisher      ports.OutcomePublisher
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	Settings       Settings
	Logger         *slog.Logger
}

func NewModule(deps Dependencies) Module {
	renderer := render.Renderer{BaseURL: deps.Settings.BaseURL}

	segments := queries.EvaluateSegmentUseCase{
		Traits: deps.Traits,
		Events: deps.Events,
		Clock:  deps.Clock,
		Logger: deps.Logger,
	}
	ingest := commands.IngestEventUseCase{
		Events:             deps.Events,
		Traits:             deps.Traits,
		Deliveries:         deps.Deliveries,
		Clock:              deps.Clock,
		IDGenerator:        deps.IDGen,
		HeavyUserThreshold: deps.Settings.HeavyUserThreshold,
		ConversionEvent:    deps.Settings.ConversionEvent,
		AttributionWindow:  deps.Settings.AttributionWindow,
		AttributionMode:    deps.Settings.AttributionMode,
		Logger:             deps.Logger,
	}
	trackClick := commands.TrackClickUseCase{
		Deliveries: deps.Deliveries,
		Templates:  deps.Templates,
		Renderer:   renderer,
		Clock:      deps.Clock,
		Logger:     deps.Logger,
	}
	scheduler := workers.Scheduler{
		Campaigns:  deps.Campaigns,
		Profiles:   deps.Profiles,
		Deliveries: deps.Deliveries,
		Templates:  deps.Templates,
		Segments:   segments,
		Policy:     deps.Settings.Policy,
		Clock:      deps.Clock,
		IDGen:      deps.IDGen,
		Logger:     deps.Logger,
	}
	emailWorker := newChannelWorker(deps, renderer, entities.ChannelEmail, deps.EmailTransport)
	smsWorker := newChannelWorker(deps, renderer, entities.ChannelSMS, deps.SMSTransport)

	return Module{
		Handler: httpadapter.Handler{
			Ingest:     ingest,
			TrackClick: trackClick,
			Segments:   segments,
			Deliveries: queries.ListDeliveriesUseCase{
				Deliveries: deps.Deliveries,
				Logger:     deps.Logger,
			},
			Delivery: queries.GetDeliveryUseCase{
				Deliveries: deps.Deliveries,
				Logger:     deps.Logger,
			},
			Scheduler:   scheduler,
			EmailWorker: emailWorker,
			SMSWorker:   smsWorker,
			Logger:      deps.Logger,
		},
	}
}

func newChannelWorker(deps Dependencies, renderer render.Renderer, channel entities.Channel, transport ports.Transport) workers.ChannelWorker {
	return workers.ChannelWorker{
		Channel:     channel,
		WorkerID:    deps.Settings.WorkerID,
		Deliveries:  deps.Deliveries,
		Profiles:    deps.Profiles,
		Templates:   deps.Templates,
		Transport:   transport,
		Renderer:    renderer,
		Publisher:   deps.Publisher,
		Clock:       deps.Clock,
		BatchSize:   deps.Settings.BatchSize,
		LeaseFor:    deps.Settings.LeaseFor,
		MaxAttempts: deps.Settings.MaxAttempts,
		BackoffBase: deps.Settings.BackoffBase,
		SendTimeout: deps.Settings.SendTimeout,
		Logger:      deps.Logger,
	}
}

// NewInMemoryModule wires the engine against the memory store with the seed
// campaign catalog loaded and fake transports recording sends.
func NewInMemoryModule(settings Settings, logger *slog.Logger) Module {
	store := memory.NewStore()
	for _, campaign := range entities.SeedCampaigns(store.Now()) {
		store.SeedCampaign(campaign)
	}
	for _, tmpl := range entities.SeedTemplates() {
		store.SeedTemplate(tmpl)
	}

	emailTransport := memory.NewFakeTransport()
	smsTransport := memory.NewFakeTransport()
	publisher := memory.NewFakePublisher()

	module := NewModule(Dependencies{
		Events:         store,
		Traits:         store,
		Profiles:       store,
		Campaigns:      store,
		Templates:      store,
		Deliveries:     store,
		EmailTransport: emailTransport,
		SMSTransport:   smsTransport,
		Publisher:      publisher,
		Clock:          store,
		IDGen:          store,
		Settings:       settings,
		Logger:         logger,
	})
	module.Store = store
	module.EmailTransport = emailTransport
	module.SMSTransport = smsTransport
	module.Publisher = publisher
	return module
}
