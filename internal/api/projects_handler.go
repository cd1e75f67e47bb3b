package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alecgard/planboard/internal/project"
)

type projectsHandler struct {
	projects *project.Service
}

func newProjectsHandler(projects *project.Service) *projectsHandler {
	return &projectsHandler{projects: projects}
}

// List handles GET /v1/projects.
func (h *projectsHandler) List(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	cursor, limit, ok := pageParams(w, r)
	if !ok {
		return
	}

	params := project.ListParams{Cursor: cursor, Limit: limit, Status: r.URL.Query().Get("status")}
	projects, next, err := h.projects.List(r.Context(), u.ID, params)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse("projects", projects, next))
}

// Create handles POST /v1/projects.
func (h *projectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	var in project.CreateProjectInput
	if !decodeBody(w, r, &in) {
		return
	}

	p, err := h.projects.Create(r.Context(), u.ID, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// Get handles GET /v1/projects/{id}.
func (h *projectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}

	p, err := h.projects.Get(r.Context(), chi.URLParam(r, "id"), u.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Update handles PUT /v1/projects/{id}.
func (h *projectsHandler) Update(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	var in project.UpdateProjectInput
	if !decodeBody(w, r, &in) {
		return
	}

	p, err := h.projects.Update(r.Context(), chi.URLParam(r, "id"), u.ID, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Delete handles DELETE /v1/projects/{id}.
func (h *projectsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	if err := h.projects.Delete(r.Context(), id, u.ID); err != nil {
		respondError(w, r, err)
		return
	}
	auditLog(r, "project.delete", "project", id)
	w.WriteHeader(http.StatusNoContent)
}

// Members handles GET /v1/projects/{id}/members.
func (h *projectsHandler) Members(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}

	members, err := h.projects.Members(r.Context(), chi.URLParam(r, "id"), u.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse("members", members, ""))
}

// SetMemberRole handles PUT /v1/projects/{id}/members/{userID}.
func (h *projectsHandler) SetMemberRole(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Role string `json:"role"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	projectID, memberID := chi.URLParam(r, "id"), chi.URLParam(r, "userID")

	if err := h.projects.SetMemberRole(r.Context(), projectID, u.ID, memberID, req.Role); err != nil {
		respondError(w, r, err)
		return
	}
	auditLog(r, "member.role", "project", projectID, "member_id", memberID, "role", req.Role)
	w.WriteHeader(http.StatusNoContent)
}

// RemoveMember handles DELETE /v1/projects/{id}/members/{userID}.
func (h *projectsHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	projectID, memberID := chi.URLParam(r, "id"), chi.URLParam(r, "userID")

	if err := h.projects.RemoveMember(r.Context(), projectID, u.ID, memberID); err != nil {
		respondError(w, r, err)
		return
	}
	auditLog(r, "member.remove", "project", projectID, "member_id", memberID)
	w.WriteHeader(http.StatusNoContent)
}
