// Package api exposes the loyalty program over JSON HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kkkkikiki/loyalty/internal/service"
)

// Pinger reports datastore health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tunes the HTTP surface.
type Options struct {
	// WebhookSecret enables HMAC verification of order webhooks when set.
	WebhookSecret string
	// ExposeErrorDetails adds the underlying cause to 500 responses.
	ExposeErrorDetails bool
	// CORSOrigin is returned in Access-Control-Allow-Origin.
	CORSOrigin string
}

// Handler holds all API handler state.
type Handler struct {
	svc      *service.Services
	db       Pinger
	logger   *zap.Logger
	validate *validator.Validate
	opts     Options
}

// NewHandler creates a new API handler.
func NewHandler(svc *service.Services, db Pinger, logger *zap.Logger, opts Options) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CORSOrigin == "" {
		opts.CORSOrigin = "*"
	}
	return &Handler{
		svc:      svc,
		db:       db,
		logger:   logger,
		validate: newValidator(),
		opts:     opts,
	}
}

// NewRouter builds the full HTTP handler: middleware, API routes, health
// checks and metrics.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(h.cors)
	r.Use(h.requestLog)
	r.Use(h.recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		errorJSON(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		errorJSON(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", h.Health)
	r.Get("/health/db", h.HealthDB)
	r.Handle("/metrics", promhttp.Handler())

	h.Routes(r)
	return r
}

// Routes mounts the API endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		// Ledger
		r.Post("/webhooks/orders", h.OrderWebhook)
		r.Get("/points", h.GetPoints)
		r.Get("/transactions", h.ListTransactions)

		// Codes
		r.Post("/discount-codes", h.CreateDiscountCode)
		r.Get("/discount-codes", h.ListDiscountCodes)
		r.Post("/gift-cards", h.RedeemGiftCard)
		r.Get("/gift-cards", h.ListGiftCards)

		// Missions
		r.Get("/missions", h.ListMissions)
		r.Post("/missions/{id}/progress", h.MissionProgress)
		r.Post("/missions/{id}/complete", h.CompleteMission)

		// Accounts
		r.Post("/signup", h.Signup)
		r.Post("/signin", h.Signin)
		r.Post("/password-reset/request", h.RequestPasswordReset)
		r.Post("/password-reset/confirm", h.ConfirmPasswordReset)

		// Read side
		r.Get("/stats", h.GetStats)
		r.Get("/orders", h.ListOrders)
		r.Post("/newsletter", h.SubscribeNewsletter)
	})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// HealthDB handles GET /health/db.
func (h *Handler) HealthDB(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
