package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/alecgard/planboard/internal/subscription"
)

type subscriptionHandler struct {
	subs *subscription.Service
}

func newSubscriptionHandler(subs *subscription.Service) *subscriptionHandler {
	return &subscriptionHandler{subs: subs}
}

// idempotencyKey returns the client's Idempotency-Key header, or a fresh key
// scoped to this request.
func idempotencyKey(r *http.Request) string {
	if k := r.Header.Get("Idempotency-Key"); k != "" {
		return k
	}
	return uuid.NewString()
}

func (h *subscriptionHandler) readRequest(w http.ResponseWriter, r *http.Request) (subscription.SubscribeRequest, bool) {
	var req subscription.SubscribeRequest
	if !decodeBody(w, r, &req) {
		return req, false
	}
	if req.PlanID == "" {
		writeValidation(w, map[string]string{"plan_id": "is required"})
		return req, false
	}
	req.IdempotencyKey = idempotencyKey(r)
	return req, true
}

// writeOutcome answers 202 when the local mirror is still being written by
// the reconciler.
func writeOutcome(w http.ResponseWriter, status int, out *subscription.Outcome) {
	if out.Pending {
		status = http.StatusAccepted
	}
	writeJSON(w, status, out)
}

// Get handles GET /v1/subscription.
func (h *subscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}

	ov, err := h.subs.Overview(r.Context(), u.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// Subscribe handles POST /v1/subscription.
func (h *subscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	req, ok := h.readRequest(w, r)
	if !ok {
		return
	}

	out, err := h.subs.Subscribe(r.Context(), u.ID, req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	auditLog(r, "subscription.create", "plan", out.Plan.ID, "pending", out.Pending)
	writeOutcome(w, http.StatusCreated, out)
}

// ChangePlan handles PUT /v1/subscription.
func (h *subscriptionHandler) ChangePlan(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	req, ok := h.readRequest(w, r)
	if !ok {
		return
	}

	out, err := h.subs.ChangePlan(r.Context(), u.ID, req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	auditLog(r, "subscription.change", "plan", out.Plan.ID, "pending", out.Pending)
	writeOutcome(w, http.StatusOK, out)
}

// Cancel handles DELETE /v1/subscription.
func (h *subscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}

	sub, err := h.subs.Cancel(r.Context(), u.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	auditLog(r, "subscription.cancel", "subscription", sub.ID, "stripe_id", sub.StripeID)
	writeJSON(w, http.StatusOK, sub)
}
