package httpserver

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	campaignengine "everreach/contexts/lifecycle/campaign-engine"
	"everreach/contexts/lifecycle/campaign-engine/application/queries"
	"everreach/contexts/lifecycle/campaign-engine/domain/entities"
	domainerrors "everreach/contexts/lifecycle/campaign-engine/domain/errors"
	enginehttp "everreach/contexts/lifecycle/campaign-engine/transport/http"
	"everreach/internal/platform/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	_ "everreach/internal/platform/httpserver/docs"
)

type Server struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	addr       string
	cronSecret string
	engine     campaignengine.Module
}

func New(
	engine campaignengine.Module,
	cronSecret string,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:        http.NewServeMux(),
		logger:     logger,
		addr:       addr,
		cronSecret: cronSecret,
		engine:     engine,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.instrument(s.mux))
}

// Handler exposes the instrumented mux for tests.
func (s *Server) Handler() http.Handler {
	return s.instrument(s.mux)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.mux.HandleFunc("POST /api/v1/events", s.handleIngestEvent)
	s.mux.HandleFunc("GET /api/v1/segments/{segment_name}", s.handleGetSegment)
	s.mux.HandleFunc("GET /api/v1/deliveries", s.handleListDeliveries)
	s.mux.HandleFunc("GET /api/v1/deliveries/{delivery_id}", s.handleGetDelivery)
	s.mux.HandleFunc("GET /r/{delivery_id}", s.handleRedirect)

	s.mux.HandleFunc("POST /api/cron/run-campaigns", s.withCronAuth(s.handleRunCampaigns))
	s.mux.HandleFunc("POST /api/cron/send-email", s.withCronAuth(s.handleSendEmail))
	s.mux.HandleFunc("POST /api/cron/send-sms", s.withCronAuth(s.handleSendSMS))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(recorder, r)

		metrics.HTTPRequests.WithLabelValues(r.URL.Path, r.Method, strconv.Itoa(recorder.status)).Inc()
		metrics.RequestDuration.WithLabelValues(r.URL.Path, r.Method).Observe(time.Since(start).Seconds())
	})
}

// withCronAuth gates the scheduled trigger endpoints behind the shared
// secret. A blank configured secret disables the check for local runs.
func (s *Server) withCronAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cronSecret != "" {
			provided := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(s.cronSecret)) != 1 {
				s.logger.Warn("cron trigger rejected",
					"event", "http_cron_unauthorized",
					"module", "internal/platform/httpserver",
					"layer", "platform",
					"path", r.URL.Path,
				)
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid cron secret")
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	var req enginehttp.IngestEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.engine.Handler.IngestEventHandler(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	outcome := "inserted"
	if resp.Deduplicated {
		outcome = "deduplicated"
	}
	metrics.EventsIngested.WithLabelValues(outcome).Inc()
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleGetSegment(w http.ResponseWriter, r *http.Request) {
	segmentName := r.PathValue("segment_name")
	resp, err := s.engine.Handler.SegmentHandler(r.Context(), segmentName)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	listQuery := queries.ListDeliveriesQuery{
		UserID:     query.Get("user_id"),
		CampaignID: query.Get("campaign_id"),
		Status:     query.Get("status"),
	}
	if limitRaw := query.Get("limit"); limitRaw != "" {
		limit, err := strconv.Atoi(limitRaw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		listQuery.Limit = limit
	}

	resp, err := s.engine.Handler.ListDeliveriesHandler(r.Context(), listQuery)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetDelivery(w http.ResponseWriter, r *http.Request) {
	deliveryID := r.PathValue("delivery_id")
	resp, err := s.engine.Handler.GetDeliveryHandler(r.Context(), deliveryID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	deliveryID := r.PathValue("delivery_id")
	destination, err := s.engine.Handler.RedirectHandler(r.Context(), deliveryID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	http.Redirect(w, r, destination, http.StatusFound)
}

func (s *Server) handleRunCampaigns(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.Handler.RunCampaignsHandler(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	metrics.SchedulerTicks.Inc()
	metrics.DeliveriesQueued.Add(float64(report.TotalQueued))
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSendEmail(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.Handler.SendEmailHandler(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	recordSendOutcomes(entities.ChannelEmail, report.Sent, report.Suppressed, report.Failed, report.Retried)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSendSMS(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.Handler.SendSMSHandler(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	recordSendOutcomes(entities.ChannelSMS, report.Sent, report.Suppressed, report.Failed, report.Retried)
	writeJSON(w, http.StatusOK, report)
}

func recordSendOutcomes(channel entities.Channel, sent, suppressed, failed, retried int) {
	metrics.SendOutcomes.WithLabelValues(string(channel), "sent").Add(float64(sent))
	metrics.SendOutcomes.WithLabelValues(string(channel), "suppressed").Add(float64(suppressed))
	metrics.SendOutcomes.WithLabelValues(string(channel), "failed").Add(float64(failed))
	metrics.SendOutcomes.WithLabelValues(string(channel), "retried").Add(float64(retried))
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domainerrors.ErrInvalidEventInput):
		writeError(w, http.StatusBadRequest, "invalid_event", err.Error())
	case errors.Is(err, domainerrors.ErrUnknownSegment):
		writeError(w, http.StatusNotFound, "unknown_segment", err.Error())
	case errors.Is(err, domainerrors.ErrDeliveryNotFound):
		writeError(w, http.StatusNotFound, "delivery_not_found", err.Error())
	case errors.Is(err, domainerrors.ErrCampaignNotFound):
		writeError(w, http.StatusNotFound, "campaign_not_found", err.Error())
	case errors.Is(err, domainerrors.ErrTemplateNotFound):
		writeError(w, http.StatusNotFound, "template_not_found", err.Error())
	case errors.Is(err, domainerrors.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, "profile_not_found", err.Error())
	case errors.Is(err, domainerrors.ErrDeliveryExists):
		writeError(w, http.StatusConflict, "delivery_exists", err.Error())
	case errors.Is(err, domainerrors.ErrUnauthorizedTrigger):
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, enginehttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
