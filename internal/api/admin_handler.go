package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alecgard/planboard/internal/billing"
	"github.com/alecgard/planboard/internal/metrics"
	"github.com/alecgard/planboard/internal/subscription"
)

// Pinger checks database connectivity. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

type adminHandler struct {
	subs    *subscription.Service
	syncer  *billing.Syncer
	metrics *metrics.Metrics
}

func newAdminHandler(subs *subscription.Service, syncer *billing.Syncer, m *metrics.Metrics) *adminHandler {
	return &adminHandler{subs: subs, syncer: syncer, metrics: m}
}

// Analytics handles GET /v1/admin/analytics.
func (h *adminHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.subs.Stats(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Metrics handles GET /v1/admin/metrics.
func (h *adminHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		writeError(w, http.StatusServiceUnavailable, "metrics_unavailable", "metrics are not enabled")
		return
	}
	h.metrics.Handler()(w, r)
}

// BillingCheck handles GET /v1/admin/billing/check.
func (h *adminHandler) BillingCheck(w http.ResponseWriter, r *http.Request) {
	res, err := h.syncer.ValidateConfiguration(r.Context())
	if errors.Is(err, billing.ErrNotConfigured) && res != nil {
		auditLog(r, "billing.check", "billing", "stripe", "success", false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":   map[string]string{"code": "billing_not_configured", "message": res.Error},
			"details": res.Details,
		})
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	auditLog(r, "billing.check", "billing", "stripe", "success", res.Success)
	writeJSON(w, http.StatusOK, res)
}

// healthHandler answers GET /health with the database status.
func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			slog.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": "down"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "up"})
	}
}
