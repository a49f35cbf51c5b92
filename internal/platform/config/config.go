package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName string
	HTTPPort    string
	PostgresDSN string

	// PublicBaseURL is the externally reachable origin used for deep links
	// and click-tracking redirects.
	PublicBaseURL string

	// CronSecret authorizes the scheduled trigger endpoints. Empty disables
	// the check (local runs only).
	CronSecret string

	HeavyUserThreshold    int
	ConversionEvent       string
	AttributionWindow     time.Duration
	AttributionFirstTouch bool

	FrequencyCap    int
	FrequencyWindow time.Duration
	QuietStartHour  int
	QuietEndHour    int

	WorkerID          string
	WorkerBatchSize   int
	WorkerLease       time.Duration
	WorkerMaxAttempts int
	WorkerBackoffBase time.Duration
	SendTimeout       time.Duration
	WorkerPollEvery   time.Duration

	EmailAPIKey  string
	EmailBaseURL string
	EmailFrom    string

	SMSAccountSID string
	SMSAuthToken  string
	SMSBaseURL    string
	SMSFrom       string

	UseMemoryStore bool
}

func Load() (Config, error) {
	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "everreach"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	baseURL := strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/")
	if baseURL == "" {
		baseURL = "https://app.everreach.local"
	}

	workerID := os.Getenv("WORKER_ID")
	if workerID == "" {
		hostname, _ := os.Hostname()
		workerID = "worker-" + hostname
	}

	return Config{
		ServiceName: service,
		HTTPPort:    port,
		PostgresDSN: os.Getenv("POSTGRES_DSN"),

		PublicBaseURL: baseURL,
		CronSecret:    os.Getenv("CRON_SECRET"),

		HeavyUserThreshold:    envInt("HEAVY_USER_THRESHOLD_DAYS", 16),
		ConversionEvent:       os.Getenv("CONVERSION_EVENT"),
		AttributionWindow:     envDurationHours("ATTRIBUTION_WINDOW_HOURS", 7*24),
		AttributionFirstTouch: envBool("ATTRIBUTION_FIRST_TOUCH", false),

		FrequencyCap:    envInt("FREQUENCY_CAP", 2),
		FrequencyWindow: envDurationHours("FREQUENCY_WINDOW_HOURS", 24),
		QuietStartHour:  envInt("QUIET_START_HOUR", 21),
		QuietEndHour:    envInt("QUIET_END_HOUR", 9),

		WorkerID:          workerID,
		WorkerBatchSize:   envInt("WORKER_BATCH_SIZE", 50),
		WorkerLease:       envDurationSeconds("WORKER_LEASE_SECONDS", 300),
		WorkerMaxAttempts: envInt("WORKER_MAX_ATTEMPTS", 3),
		WorkerBackoffBase: envDurationSeconds("WORKER_BACKOFF_SECONDS", 60),
		SendTimeout:       envDurationSeconds("SEND_TIMEOUT_SECONDS", 15),
		WorkerPollEvery:   envDurationSeconds("WORKER_POLL_SECONDS", 300),

		EmailAPIKey:  os.Getenv("EMAIL_API_KEY"),
		EmailBaseURL: os.Getenv("EMAIL_BASE_URL"),
		EmailFrom:    os.Getenv("EMAIL_FROM"),

		SMSAccountSID: os.Getenv("SMS_ACCOUNT_SID"),
		SMSAuthToken:  os.Getenv("SMS_AUTH_TOKEN"),
		SMSBaseURL:    os.Getenv("SMS_BASE_URL"),
		SMSFrom:       os.Getenv("SMS_FROM"),

		UseMemoryStore: envBool("USE_MEMORY_STORE", false),
	}, nil
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envDurationHours(name string, fallbackHours int) time.Duration {
	return time.Duration(envInt(name, fallbackHours)) * time.Hour
}

func envDurationSeconds(name string, fallbackSeconds int) time.Duration {
	return time.Duration(envInt(name, fallbackSeconds)) * time.Second
}
