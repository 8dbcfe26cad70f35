package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"imagebot/pkg/config"
	"imagebot/pkg/webhook"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Service exposes the webhook endpoint and status probes over HTTP.
type Service struct {
	cfg     config.GatewayConfig
	log     *slog.Logger
	webhook http.Handler
	router  chi.Router

	mu        sync.RWMutex
	startedAt time.Time
	outcomes  map[webhook.Outcome]int64
	lastError string
	lastAt    time.Time
}

type statusResponse struct {
	Status          string                    `json:"status"`
	UptimeSeconds   int64                     `json:"uptime_seconds"`
	Outcomes        map[webhook.Outcome]int64 `json:"outcomes"`
	LastPipelineAt  string                    `json:"last_pipeline_at,omitempty"`
	LastPipelineErr string                    `json:"last_pipeline_error,omitempty"`
}

// NewService builds the router. webhookHandler is normally a *webhook.Dispatcher.
func NewService(cfg config.GatewayConfig, webhookHandler http.Handler, log *slog.Logger) (*Service, error) {
	if webhookHandler == nil {
		return nil, errors.New("webhook handler is required")
	}
	if log == nil {
		log = slog.Default()
	}

	path := strings.TrimSpace(cfg.WebhookPath)
	if path == "" {
		path = config.DefaultWebhookPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	cfg.WebhookPath = path

	s := &Service{
		cfg:      cfg,
		log:      log.With("component", "gateway.service"),
		webhook:  webhookHandler,
		outcomes: make(map[webhook.Outcome]int64),
	}
	s.router = s.routes()

	return s, nil
}

func (s *Service) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Post(s.cfg.WebhookPath, s.webhook.ServeHTTP)
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Handler returns the instrumented router, for net/http servers and the Lambda adapter alike.
func (s *Service) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "imagebot")
}

// MarkStarted records the start time; readiness depends on it.
func (s *Service) MarkStarted() {
	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()
}

// RecordResult feeds pipeline outcomes into the status endpoints. Pass it as
// webhook.Options.OnResult.
func (s *Service) RecordResult(result webhook.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outcomes[result.Outcome]++
	s.lastAt = time.Now().UTC()
	if result.Err != nil {
		s.lastError = result.Err.Error()
	} else {
		s.lastError = ""
	}
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	host := strings.TrimSpace(s.cfg.Host)
	if host == "" {
		host = config.DefaultGatewayHost
	}

	port := s.cfg.Port
	if port <= 0 {
		port = config.DefaultGatewayPort
	}

	addr := host + ":" + strconv.Itoa(port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Gateway server started", "address", addr, "webhook_path", s.cfg.WebhookPath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("start gateway server: %w", err)
		}
		close(errCh)
	}()
	s.MarkStarted()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown gateway server: %w", err)
	}

	return nil
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	payload := s.currentStatus(status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	outcomes := make(map[webhook.Outcome]int64, len(s.outcomes))
	for outcome, count := range s.outcomes {
		outcomes[outcome] = count
	}

	lastAt := ""
	if !s.lastAt.IsZero() {
		lastAt = s.lastAt.Format(time.RFC3339)
	}

	return statusResponse{
		Status:          status,
		UptimeSeconds:   uptime,
		Outcomes:        outcomes,
		LastPipelineAt:  lastAt,
		LastPipelineErr: s.lastError,
	}
}

func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return !s.startedAt.IsZero()
}

// requestLogger logs one line per request with chi's request id.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				log.Info("Request completed",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"latency", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
