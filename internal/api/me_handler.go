package api

import (
	"net/http"

	"github.com/alecgard/planboard/internal/user"
)

type meHandler struct {
	users *user.Service
}

func newMeHandler(users *user.Service) *meHandler {
	return &meHandler{users: users}
}

// Notifications handles GET /v1/me/notifications.
func (h *meHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}

	prefs, err := h.users.Preferences(r.Context(), u.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// UpdateNotifications handles PUT /v1/me/notifications. Omitted fields are
// left unchanged.
func (h *meHandler) UpdateNotifications(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	var in user.PreferencesUpdate
	if !decodeBody(w, r, &in) {
		return
	}

	prefs, err := h.users.UpdatePreferences(r.Context(), u.ID, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}
