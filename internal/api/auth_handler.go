package api

import (
	"net/http"

	"github.com/alecgard/planboard/internal/auth"
	"github.com/alecgard/planboard/internal/user"
)

// AuthRecorder counts authentication outcomes. *metrics.Metrics satisfies it.
type AuthRecorder interface {
	IncAuthSuccess(authType string)
	IncAuthFailure(authType string)
}

// authHandler groups authentication HTTP handlers.
type authHandler struct {
	users   *user.Service
	metrics AuthRecorder
}

func newAuthHandler(users *user.Service, m AuthRecorder) *authHandler {
	return &authHandler{users: users, metrics: m}
}

func (h *authHandler) record(ok bool) {
	if h.metrics == nil {
		return
	}
	if ok {
		h.metrics.IncAuthSuccess("password")
	} else {
		h.metrics.IncAuthFailure("password")
	}
}

func sessionResponse(u *user.User, token string) map[string]any {
	return map[string]any{
		"token": token,
		"user":  u,
	}
}

// Register handles POST /v1/auth/register.
func (h *authHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req user.RegisterInput
	if !decodeBody(w, r, &req) {
		return
	}

	u, token, err := h.users.Register(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	auditLog(r, "user.register", "user", u.ID, "plan_id", u.PlanID)
	writeJSON(w, http.StatusCreated, sessionResponse(u, token))
}

// Login handles POST /v1/auth/login.
func (h *authHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if req.Email == "" || req.Password == "" {
		writeValidation(w, map[string]string{"credentials": "email and password are required"})
		return
	}

	u, token, sess, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.record(false)
		respondError(w, r, err)
		return
	}
	h.record(true)

	resp := sessionResponse(u, token)
	resp["expires_at"] = sess.ExpiresAt
	writeJSON(w, http.StatusOK, resp)
}

// Me handles GET /v1/auth/me.
func (h *authHandler) Me(w http.ResponseWriter, r *http.Request) {
	cur, ok := requireUser(w, r)
	if !ok {
		return
	}

	u, err := h.users.Get(r.Context(), cur.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Logout handles POST /v1/auth/logout.
func (h *authHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := auth.ExtractBearerToken(r)
	if token == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	_ = h.users.Logout(r.Context(), token)
	w.WriteHeader(http.StatusNoContent)
}
