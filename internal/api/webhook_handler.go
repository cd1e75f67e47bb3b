package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/alecgard/planboard/internal/billing"
	"github.com/alecgard/planboard/internal/subscription"
)

// maxWebhookSize bounds webhook payloads. Stripe events are well below it.
const maxWebhookSize = 64 << 10

// WebhookRecorder counts webhook deliveries. *metrics.Metrics satisfies it.
type WebhookRecorder interface {
	IncWebhookEvent(eventType, outcome string)
}

type webhookHandler struct {
	parser  *billing.WebhookParser
	subs    *subscription.Service
	metrics WebhookRecorder
}

func newWebhookHandler(parser *billing.WebhookParser, subs *subscription.Service, m WebhookRecorder) *webhookHandler {
	return &webhookHandler{parser: parser, subs: subs, metrics: m}
}

func (h *webhookHandler) record(eventType, outcome string) {
	if h.metrics != nil {
		h.metrics.IncWebhookEvent(eventType, outcome)
	}
}

// Handle serves POST /v1/billing/webhook. A processing failure answers 500
// so the provider redelivers the event.
func (h *webhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to read request body")
		return
	}

	evt, err := h.parser.Parse(payload, r.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, billing.ErrNotConfigured):
		h.record("unknown", "rejected")
		writeError(w, http.StatusServiceUnavailable, "billing_not_configured", "webhooks are not configured")
		return
	case err != nil:
		h.record("unknown", "rejected")
		slog.Warn("webhook rejected", "ip", clientIP(r), "error", err)
		writeError(w, http.StatusBadRequest, "invalid_signature", "webhook signature verification failed")
		return
	}

	if evt.Type == billing.EventIgnored {
		h.record(evt.RemoteType, "ignored")
		writeJSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	if err := h.subs.HandleEvent(r.Context(), evt); err != nil {
		h.record(evt.RemoteType, "error")
		slog.Error("webhook processing failed", "event_id", evt.ID, "type", evt.RemoteType, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to process event")
		return
	}

	h.record(evt.RemoteType, "processed")
	slog.Info("webhook processed", "event_id", evt.ID, "type", evt.RemoteType, "subscription", evt.SubscriptionID)
	writeJSON(w, http.StatusOK, map[string]any{"received": true})
}
