package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alecgard/planboard/internal/team"
)

type invitationsHandler struct {
	invitations *team.Service
}

func newInvitationsHandler(invitations *team.Service) *invitationsHandler {
	return &invitationsHandler{invitations: invitations}
}

// Create handles POST /v1/projects/{id}/invitations. The plaintext token is
// only ever returned here.
func (h *invitationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	var in team.CreateInvitationInput
	if !decodeBody(w, r, &in) {
		return
	}
	projectID := chi.URLParam(r, "id")

	created, err := h.invitations.Invite(r.Context(), projectID, u, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	auditLog(r, "invitation.create", "project", projectID,
		"invitation_id", created.Invitation.ID, "role", created.Invitation.Role)
	writeJSON(w, http.StatusCreated, created)
}

// List handles GET /v1/projects/{id}/invitations.
func (h *invitationsHandler) List(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}

	invitations, err := h.invitations.List(r.Context(), chi.URLParam(r, "id"), u.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse("invitations", invitations, ""))
}

// Accept handles POST /v1/invitations/{token}/accept.
func (h *invitationsHandler) Accept(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}

	inv, err := h.invitations.Accept(r.Context(), chi.URLParam(r, "token"), u)
	if err != nil {
		respondError(w, r, err)
		return
	}
	auditLog(r, "invitation.accept", "project", inv.ProjectID, "invitation_id", inv.ID)
	writeJSON(w, http.StatusOK, inv)
}

// Decline handles POST /v1/invitations/{token}/decline. Holding the token is
// enough to decline.
func (h *invitationsHandler) Decline(w http.ResponseWriter, r *http.Request) {
	inv, err := h.invitations.Decline(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	auditLog(r, "invitation.decline", "project", inv.ProjectID, "invitation_id", inv.ID)
	writeJSON(w, http.StatusOK, inv)
}
