package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alecgard/planboard/internal/auth"
	"github.com/alecgard/planboard/internal/user"
)

type adminUsersHandler struct {
	users *user.Service
}

func newAdminUsersHandler(users *user.Service) *adminUsersHandler {
	return &adminUsersHandler{users: users}
}

// List handles GET /v1/admin/users.
func (h *adminUsersHandler) List(w http.ResponseWriter, r *http.Request) {
	cursor, limit, ok := pageParams(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	params := user.ListParams{Cursor: cursor, Limit: limit, Search: q.Get("q"), PlanID: q.Get("plan_id")}
	users, next, err := h.users.List(r.Context(), params)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse("users", users, next))
}

// Get handles GET /v1/admin/users/{id}.
func (h *adminUsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Update handles PUT /v1/admin/users/{id}.
func (h *adminUsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var in user.UpdateUserInput
	if !decodeBody(w, r, &in) {
		return
	}

	// An admin cannot demote themselves and lock everyone out.
	if cur := auth.UserFromContext(r.Context()); cur != nil && cur.ID == id &&
		in.Role != nil && *in.Role != auth.RoleAdmin {
		writeValidation(w, map[string]string{"role": "cannot remove your own admin role"})
		return
	}

	u, err := h.users.Update(r.Context(), id, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	auditLog(r, "user.update", "user", id)
	writeJSON(w, http.StatusOK, u)
}

// Delete handles DELETE /v1/admin/users/{id}.
func (h *adminUsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if cur := auth.UserFromContext(r.Context()); cur != nil && cur.ID == id {
		writeError(w, http.StatusConflict, "conflict", "cannot delete your own account")
		return
	}

	if err := h.users.Delete(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	auditLog(r, "user.delete", "user", id)
	w.WriteHeader(http.StatusNoContent)
}
