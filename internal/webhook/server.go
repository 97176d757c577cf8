// Package webhook implements the signed ingress endpoint. Verification is
// fail-closed: a delivery is enqueued only after its signature checks out
// against the current shared secret, and the 200 response is sent only after
// the durable enqueue succeeds.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/folio-org/eureka-ci-app/internal/config"
)

// handledActions are the check_suite actions that trigger processing.
// Everything else is acknowledged and dropped.
var handledActions = map[string]bool{
	"requested":   true,
	"rerequested": true,
}

// Server is the webhook HTTP server.
type Server struct {
	config  config.WebhookConfig
	queue   Enqueuer
	secrets SecretSource
	logger  *slog.Logger
	server  *http.Server
	now     func() time.Time
}

// New creates a webhook server.
func New(cfg config.WebhookConfig, queue Enqueuer, secrets SecretSource, logger *slog.Logger) *Server {
	return &Server{
		config:  cfg,
		queue:   queue,
		secrets: secrets,
		logger:  logger,
		now:     time.Now,
	}
}

// Start runs the server until ctx is cancelled (blocking).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("webhook server starting", "listen", s.config.Listen, "path", s.config.Path)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Post(s.config.Path, s.handleDelivery)
	return r
}

// loggingMiddleware logs HTTP requests (excludes payload content).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("webhook request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// handleDelivery verifies and enqueues a single webhook delivery.
func (s *Server) handleDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	receivedAt := s.now().UTC()

	if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mediaType != "application/json" {
		s.respondError(w, http.StatusUnsupportedMediaType, "expected application/json")
		return
	}

	limitedReader := io.LimitReader(r.Body, s.config.MaxBodySize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read request body")
		return
	}
	if int64(len(body)) > s.config.MaxBodySize {
		s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	secret, err := s.secrets.Get(ctx, s.config.SecretRef)
	if err != nil {
		// Without the secret no signature can be checked. Refuse service
		// rather than accept unverified payloads.
		s.logger.Error("webhook secret unavailable", "secret_ref", s.config.SecretRef, "error", err)
		s.respondError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}

	signature := r.Header.Get(s.config.SignatureHeader)
	if signature == "" {
		s.logger.Warn("webhook signature missing", "header", s.config.SignatureHeader)
		s.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := verifyHMACSignature(body, signature, secret); err != nil {
		s.logger.Warn("webhook signature verification failed",
			"delivery_id", r.Header.Get(s.config.DeliveryHeader),
		)
		s.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	deliveryID := r.Header.Get(s.config.DeliveryHeader)
	if deliveryID == "" {
		s.respondError(w, http.StatusBadRequest, "missing delivery id")
		return
	}
	eventType := r.Header.Get(s.config.EventHeader)

	if !s.shouldEnqueue(eventType, body) {
		s.logger.Info("webhook delivery ignored",
			"delivery_id", deliveryID,
			"event_type", eventType,
		)
		s.respondJSON(w, http.StatusOK, AcceptedResponse{Status: "ignored"})
		return
	}

	messageID, err := s.queue.Enqueue(ctx, deliveryID, eventType, body, receivedAt)
	if err != nil {
		// The sender retries on 5xx; losing the delivery here would be
		// silent, so never pretend it was accepted.
		s.logger.Error("failed to enqueue webhook delivery",
			"delivery_id", deliveryID,
			"error", err,
		)
		s.respondError(w, http.StatusServiceUnavailable, "failed to persist delivery")
		return
	}

	s.logger.Info("webhook delivery enqueued",
		"delivery_id", deliveryID,
		"event_type", eventType,
		"message_id", messageID,
	)
	s.respondJSON(w, http.StatusOK, AcceptedResponse{Status: "queued", MessageID: messageID})
}

// shouldEnqueue filters deliveries down to check_suite requested and
// rerequested. The action probe tolerates malformed JSON; those payloads are
// dropped here instead of poisoning the queue.
func (s *Server) shouldEnqueue(eventType string, body []byte) bool {
	if eventType != "check_suite" {
		return false
	}
	var probe struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return handledActions[probe.Action]
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}
