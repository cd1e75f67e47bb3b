package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alecgard/planboard/internal/billing"
	"github.com/alecgard/planboard/internal/plan"
)

// plansHandler serves the public catalog and the admin plan management
// endpoints. Every admin mutation is mirrored into the billing provider when
// one is configured.
type plansHandler struct {
	plans  *plan.Service
	syncer *billing.Syncer
}

func newPlansHandler(plans *plan.Service, syncer *billing.Syncer) *plansHandler {
	return &plansHandler{plans: plans, syncer: syncer}
}

// planResponse pairs a plan with the outcome of its provider sync. Sync is
// omitted when billing is not configured or nothing was mirrored.
type planResponse struct {
	Plan *plan.Plan      `json:"plan"`
	Sync *billing.Result `json:"sync,omitempty"`
}

// ListPublic handles GET /v1/plans.
func (h *plansHandler) ListPublic(w http.ResponseWriter, r *http.Request) {
	plans, err := h.plans.ListPublic(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse("plans", plans, ""))
}

// GetPublic handles GET /v1/plans/{id}. Archived and inactive plans are
// hidden.
func (h *plansHandler) GetPublic(w http.ResponseWriter, r *http.Request) {
	p, err := h.plans.GetAvailable(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// List handles GET /v1/admin/plans.
func (h *plansHandler) List(w http.ResponseWriter, r *http.Request) {
	plans, err := h.plans.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse("plans", plans, ""))
}

// Get handles GET /v1/admin/plans/{id}.
func (h *plansHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.plans.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, planResponse{Plan: p})
}

// Create handles POST /v1/admin/plans.
func (h *plansHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in plan.CreatePlanInput
	if !decodeBody(w, r, &in) {
		return
	}

	p, err := h.plans.Create(r.Context(), in)
	if err != nil {
		respondError(w, r, err)
		return
	}

	res := h.sync(r, p, func() (*billing.Result, error) { return h.syncer.SyncPlan(r.Context(), p) })
	auditLog(r, "plan.create", "plan", p.ID, "name", p.Name, "price", p.Price.String())
	writeJSON(w, http.StatusCreated, planResponse{Plan: p, Sync: res})
}

// Update handles PUT /v1/admin/plans/{id}. Pricing changes issue a new
// remote price; name and description changes update the product only.
func (h *plansHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var in plan.UpdatePlanInput
	if !decodeBody(w, r, &in) {
		return
	}

	p, err := h.plans.Update(r.Context(), id, in)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var res *billing.Result
	switch {
	case in.PricingChanged():
		res = h.sync(r, p, func() (*billing.Result, error) { return h.syncer.SyncPlan(r.Context(), p) })
	case in.ProductChanged():
		res = h.sync(r, p, func() (*billing.Result, error) { return h.syncer.SyncProduct(r.Context(), p) })
	}
	auditLog(r, "plan.update", "plan", p.ID, "pricing_changed", in.PricingChanged())
	writeJSON(w, http.StatusOK, planResponse{Plan: p, Sync: res})
}

// Sync handles POST /v1/admin/plans/{id}/sync. Unlike the implicit sync on
// create and update, a missing provider is an error here.
func (h *plansHandler) Sync(w http.ResponseWriter, r *http.Request) {
	p, err := h.plans.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	res, err := h.syncer.SyncPlan(r.Context(), p)
	if err != nil {
		respondError(w, r, err)
		return
	}
	auditLog(r, "plan.sync", "plan", p.ID, "success", res.Success)
	writeJSON(w, http.StatusOK, planResponse{Plan: p, Sync: res})
}

// Archive handles POST /v1/admin/plans/{id}/archive.
func (h *plansHandler) Archive(w http.ResponseWriter, r *http.Request) {
	p, err := h.plans.Archive(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	res := h.sync(r, p, func() (*billing.Result, error) { return h.syncer.ArchivePlan(r.Context(), p) })
	auditLog(r, "plan.archive", "plan", p.ID)
	writeJSON(w, http.StatusOK, planResponse{Plan: p, Sync: res})
}

// Delete handles DELETE /v1/admin/plans/{id}. A plan still assigned to
// users is archived instead and returned with archived set.
func (h *plansHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	existing, err := h.plans.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	archived, err := h.plans.Delete(r.Context(), id)
	switch {
	case errors.Is(err, plan.ErrInUse):
		res := h.sync(r, archived, func() (*billing.Result, error) { return h.syncer.ArchivePlan(r.Context(), archived) })
		auditLog(r, "plan.archive", "plan", id, "reason", "in_use")
		writeJSON(w, http.StatusOK, map[string]any{"plan": archived, "archived": true, "sync": res})
		return
	case err != nil:
		respondError(w, r, err)
		return
	}

	h.sync(r, existing, func() (*billing.Result, error) { return h.syncer.ArchivePlan(r.Context(), existing) })
	auditLog(r, "plan.delete", "plan", id)
	w.WriteHeader(http.StatusNoContent)
}

// sync runs op when billing is configured. Provider failures are logged and
// reported in the result; the local change is kept either way.
func (h *plansHandler) sync(r *http.Request, p *plan.Plan, op func() (*billing.Result, error)) *billing.Result {
	if !h.syncer.Configured() {
		return nil
	}
	res, err := op()
	if err != nil {
		auditLog(r, "plan.sync_failed", "plan", p.ID, "error", err.Error())
		return &billing.Result{Error: err.Error()}
	}
	if !res.Success {
		auditLog(r, "plan.sync_failed", "plan", p.ID, "error", res.Error)
	}
	return res
}
