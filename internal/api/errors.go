package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/alecgard/planboard/internal/billing"
	"github.com/alecgard/planboard/internal/export"
	"github.com/alecgard/planboard/internal/note"
	"github.com/alecgard/planboard/internal/pagination"
	"github.com/alecgard/planboard/internal/plan"
	"github.com/alecgard/planboard/internal/project"
	"github.com/alecgard/planboard/internal/subscription"
	"github.com/alecgard/planboard/internal/task"
	"github.com/alecgard/planboard/internal/team"
	"github.com/alecgard/planboard/internal/user"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// errorEnvelope is the standard error response shape.
type errorEnvelope struct {
	Error  errorDetail       `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes a JSON error response with the given status code.
func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, errorEnvelope{Error: errorDetail{Code: code, Message: message}})
}

func writeValidation(w http.ResponseWriter, fields map[string]string) {
	writeJSON(w, http.StatusUnprocessableEntity, errorEnvelope{
		Error:  errorDetail{Code: "validation_error", Message: "the given data was invalid"},
		Fields: fields,
	})
}

// writeJSON writes a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// readJSON decodes the request body into v, enforcing a size limit.
func readJSON(r *http.Request, v any) error {
	lr := io.LimitReader(r.Body, maxBodySize)
	return json.NewDecoder(lr).Decode(v)
}

// validationFields unwraps the per-package validation errors.
func validationFields(err error) (map[string]string, bool) {
	var (
		pe *plan.ValidationError
		ue *user.ValidationError
		je *project.ValidationError
		te *task.ValidationError
		ne *note.ValidationError
		ie *team.ValidationError
	)
	switch {
	case errors.As(err, &pe):
		return pe.Fields, true
	case errors.As(err, &ue):
		return ue.Fields, true
	case errors.As(err, &je):
		return je.Fields, true
	case errors.As(err, &te):
		return te.Fields, true
	case errors.As(err, &ne):
		return ne.Fields, true
	case errors.As(err, &ie):
		return ie.Fields, true
	}
	return nil, false
}

// respondError maps a service error onto an HTTP response. Unknown errors
// are logged and answered with 500.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	if fields, ok := validationFields(err); ok {
		writeValidation(w, fields)
		return
	}

	var remote *billing.RemoteError
	if errors.As(err, &remote) {
		slog.Warn("billing provider call failed", "op", remote.Op, "code", remote.Code,
			"request_id", RequestIDFromContext(r.Context()), "error", err)
		writeError(w, http.StatusBadGateway, "billing_error", remote.Msg)
		return
	}

	switch {
	case errors.Is(err, pagination.ErrInvalidCursor):
		writeError(w, http.StatusBadRequest, "invalid_cursor", "invalid pagination cursor")
	case errors.Is(err, export.ErrUnknownFormat):
		writeError(w, http.StatusBadRequest, "invalid_format", "format must be csv or json")

	case errors.Is(err, user.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid email or password")

	case errors.Is(err, subscription.ErrPaymentMethodRequired):
		writeError(w, http.StatusPaymentRequired, "payment_required", err.Error())

	case errors.Is(err, project.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, team.ErrEmailMismatch):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())

	case errors.Is(err, plan.ErrNotFound),
		errors.Is(err, user.ErrNotFound),
		errors.Is(err, project.ErrNotFound),
		errors.Is(err, project.ErrNotMember),
		errors.Is(err, task.ErrNotFound),
		errors.Is(err, note.ErrNotFound),
		errors.Is(err, team.ErrNotFound),
		errors.Is(err, subscription.ErrNotFound),
		errors.Is(err, subscription.ErrUserNotFound),
		errors.Is(err, export.ErrUnknownKind):
		writeError(w, http.StatusNotFound, "not_found", err.Error())

	case errors.Is(err, user.ErrEmailTaken),
		errors.Is(err, subscription.ErrAlreadySubscribed),
		errors.Is(err, subscription.ErrSamePlan),
		errors.Is(err, subscription.ErrPlanNotSynced),
		errors.Is(err, subscription.ErrNoFreePlan),
		errors.Is(err, plan.ErrInUse),
		errors.Is(err, project.ErrOwnerRemoval),
		errors.Is(err, team.ErrAlreadyInvited),
		errors.Is(err, team.ErrAlreadyResponded):
		writeError(w, http.StatusConflict, "conflict", err.Error())

	case errors.Is(err, team.ErrExpired):
		writeError(w, http.StatusGone, "expired", err.Error())

	case errors.Is(err, billing.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "billing_not_configured", "billing is not configured")

	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
