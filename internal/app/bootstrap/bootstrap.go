package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	campaignengine "everreach/contexts/lifecycle/campaign-engine"
	postgresadapter "everreach/contexts/lifecycle/campaign-engine/adapters/postgres"
	"everreach/contexts/lifecycle/campaign-engine/adapters/providers"
	"everreach/contexts/lifecycle/campaign-engine/application/commands"
	"everreach/contexts/lifecycle/campaign-engine/domain/policy"
	"everreach/internal/platform/config"
	"everreach/internal/platform/db"
	"everreach/internal/platform/httpserver"
	"everreach/internal/platform/messaging"
	"everreach/internal/platform/metrics"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	logger   *slog.Logger
}

type WorkerApp struct {
	engine       campaignengine.Module
	postgres     *db.Postgres
	pollInterval time.Duration
	logger       *slog.Logger
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	metrics.Init()

	engine, pg, err := buildEngine(cfg, logger)
	if err != nil {
		return nil, err
	}

	server := httpserver.New(engine, cfg.CronSecret, logger, normalizeAddr(cfg.HTTPPort))
	return &APIApp{
		server:   server,
		postgres: pg,
		logger:   logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")

	engine, pg, err := buildEngine(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &WorkerApp{
		engine:       engine,
		postgres:     pg,
		pollInterval: cfg.WorkerPollEvery,
		logger:       logger,
	}, nil
}

func buildEngine(cfg config.Config, logger *slog.Logger) (campaignengine.Module, *db.Postgres, error) {
	settings := engineSettings(cfg)

	if cfg.UseMemoryStore {
		return campaignengine.NewInMemoryModule(settings, logger), nil, nil
	}
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return campaignengine.Module{}, nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return campaignengine.Module{}, nil, err
	}

	repo := postgresadapter.NewRepository(pg.DB, logger)
	bus := messaging.NewBus(cfg.ServiceName, logger)
	engine := campaignengine.NewModule(campaignengine.Dependencies{
		Events:         repo,
		Traits:         repo,
		Profiles:       repo,
		Campaigns:      repo,
		Templates:      repo,
		Deliveries:     repo,
		EmailTransport: providers.NewEmailClient(cfg.EmailAPIKey, cfg.EmailBaseURL, cfg.EmailFrom),
		SMSTransport:   providers.NewSMSClient(cfg.SMSAccountSID, cfg.SMSAuthToken, cfg.SMSBaseURL, cfg.SMSFrom),
		Publisher:      bus,
		Clock:          postgresadapter.SystemClock{},
		IDGen:          postgresadapter.UUIDGenerator{},
		Settings:       settings,
		Logger:         logger,
	})
	return engine, pg, nil
}

func engineSettings(cfg config.Config) campaignengine.Settings {
	mode := commands.AttributionLastTouch
	if cfg.AttributionFirstTouch {
		mode = commands.AttributionFirstTouch
	}
	return campaignengine.Settings{
		BaseURL:            cfg.PublicBaseURL,
		HeavyUserThreshold: cfg.HeavyUserThreshold,
		ConversionEvent:    cfg.ConversionEvent,
		AttributionWindow:  cfg.AttributionWindow,
		AttributionMode:    mode,
		Policy: policy.Config{
			FrequencyCap:    cfg.FrequencyCap,
			FrequencyWindow: cfg.FrequencyWindow,
			QuietStartHour:  cfg.QuietStartHour,
			QuietEndHour:    cfg.QuietEndHour,
		},
		WorkerID:    cfg.WorkerID,
		BatchSize:   cfg.WorkerBatchSize,
		LeaseFor:    cfg.WorkerLease,
		MaxAttempts: cfg.WorkerMaxAttempts,
		BackoffBase: cfg.WorkerBackoffBase,
		SendTimeout: cfg.SendTimeout,
	}
}

func (a *APIApp) Run(_ context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	return a.server.Start()
}

func (a *APIApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

// Run drives the scheduler and both channel workers on one poll loop. The
// cron endpoints trigger the same passes on demand; running both is safe
// because every pass is guarded by the queue and lease semantics.
func (w *WorkerApp) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
	)

	for {
		if _, err := w.engine.Handler.Scheduler.RunOnce(ctx); err != nil {
			return err
		}
		if _, err := w.engine.Handler.EmailWorker.RunOnce(ctx); err != nil {
			return err
		}
		if _, err := w.engine.Handler.SMSWorker.RunOnce(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) Close() error {
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
