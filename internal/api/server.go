// Package api is the operator-facing HTTP API: health, queue depth, and
// dead-letter inspection and requeue. It listens separately from the webhook
// ingress and requires a bearer key on everything except /healthz.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/folio-org/eureka-ci-app/internal/auth"
	"github.com/folio-org/eureka-ci-app/internal/config"
	"github.com/folio-org/eureka-ci-app/internal/queue"
	"github.com/folio-org/eureka-ci-app/internal/state"
)

// QueueInspector exposes the queue operations the API serves.
type QueueInspector interface {
	Depth(ctx context.Context) (queue.Stats, error)
	ListDeadLetters(ctx context.Context, limit int) ([]queue.DeadLetter, error)
	Requeue(ctx context.Context, id string) error
}

// CheckRunReader lists check runs recorded for a delivery.
type CheckRunReader interface {
	ListByDelivery(ctx context.Context, deliveryID string) ([]state.CheckRunRecord, error)
}

// Server is the operator API server.
type Server struct {
	config    config.APIConfig
	queue     QueueInspector
	checkRuns CheckRunReader
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

func New(cfg config.APIConfig, q QueueInspector, checkRuns CheckRunReader, logger *slog.Logger) *Server {
	return &Server{
		config:    cfg,
		queue:     q,
		checkRuns: checkRuns,
		logger:    logger,
		startedAt: time.Now(),
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

	s.logger.Info("api server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("api server error: %w", err)
	}
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/api/v1/queue/stats", s.handleQueueStats)
		r.Get("/api/v1/deadletters", s.handleListDeadLetters)
		r.Post("/api/v1/deadletters/{id}/requeue", s.handleRequeue)
		r.Get("/api/v1/deliveries/{deliveryID}/checkruns", s.handleListCheckRuns)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// authMiddleware enforces the operator bearer key.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.ExtractBearerToken(r)
		if err != nil || !auth.ConstantTimeEqual(token, s.config.AuthKey) {
			s.respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queue.Depth(r.Context())
	if err != nil {
		s.logger.Error("queue stats failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "queue stats failed")
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

type deadLetterView struct {
	ID             string    `json:"id"`
	DeliveryID     string    `json:"delivery_id"`
	EventType      string    `json:"event_type"`
	FailureReason  string    `json:"failure_reason"`
	Attempts       int       `json:"attempts"`
	ReceivedAt     time.Time `json:"received_at"`
	DeadLetteredAt time.Time `json:"dead_lettered_at"`
}

func (s *Server) handleListDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	letters, err := s.queue.ListDeadLetters(r.Context(), limit)
	if err != nil {
		s.logger.Error("list dead letters failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "list dead letters failed")
		return
	}

	// Payloads are omitted from the listing; they can be large and may
	// contain repository details the operator console should not render.
	views := make([]deadLetterView, 0, len(letters))
	for _, d := range letters {
		views = append(views, deadLetterView{
			ID:             d.ID,
			DeliveryID:     d.DeliveryID,
			EventType:      d.EventType,
			FailureReason:  d.FailureReason,
			Attempts:       d.Attempts,
			ReceivedAt:     d.ReceivedAt,
			DeadLetteredAt: d.DeadLetteredAt,
		})
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"dead_letters": views})
}

func (s *Server) handleRequeue(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.queue.Requeue(r.Context(), id); err != nil {
		if errors.Is(err, queue.ErrMessageNotFound) {
			s.respondError(w, http.StatusNotFound, "dead letter not found")
			return
		}
		s.logger.Error("requeue failed", "id", id, "error", err)
		s.respondError(w, http.StatusInternalServerError, "requeue failed")
		return
	}

	s.logger.Info("dead letter requeued", "id", id)
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "requeued"})
}

type checkRunView struct {
	PRNumber   int    `json:"pr_number"`
	Repo       string `json:"repo"`
	HeadSHA    string `json:"head_sha"`
	CheckRunID int64  `json:"check_run_id"`
	State      string `json:"state"`
}

func (s *Server) handleListCheckRuns(w http.ResponseWriter, r *http.Request) {
	deliveryID := chi.URLParam(r, "deliveryID")

	recs, err := s.checkRuns.ListByDelivery(r.Context(), deliveryID)
	if err != nil {
		s.logger.Error("list check runs failed", "delivery_id", deliveryID, "error", err)
		s.respondError(w, http.StatusInternalServerError, "list check runs failed")
		return
	}

	views := make([]checkRunView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, checkRunView{
			PRNumber:   rec.PRNumber,
			Repo:       rec.Repo,
			HeadSHA:    rec.HeadSHA,
			CheckRunID: rec.CheckRunID,
			State:      string(rec.State),
		})
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"check_runs": views})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
