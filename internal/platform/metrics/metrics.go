package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "everreach_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "everreach_http_request_duration_seconds",
			Help:    "Histogram of response durations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	EventsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "everreach_events_ingested_total",
			Help: "Lifecycle events accepted, by outcome",
		},
		[]string{"outcome"},
	)

	SchedulerTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "everreach_scheduler_ticks_total",
			Help: "Completed campaign scheduling passes",
		},
	)

	DeliveriesQueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "everreach_deliveries_queued_total",
			Help: "Deliveries enqueued by the campaign scheduler",
		},
	)

	SendOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "everreach_send_outcomes_total",
			Help: "Channel worker send outcomes",
		},
		[]string{"channel", "outcome"},
	)
)

func Init() {
	prometheus.MustRegister(HTTPRequests, RequestDuration, EventsIngested, SchedulerTicks, DeliveriesQueued, SendOutcomes)
}
