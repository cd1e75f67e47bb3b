package limits

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alecgard/planboard/internal/auth"
	"github.com/alecgard/planboard/internal/plan"
)

// PlanLookup resolves a plan by id. *plan.Service satisfies it.
type PlanLookup interface {
	Get(ctx context.Context, id string) (*plan.Plan, error)
}

// UsageFunc returns the current usage of a feature for the request's user.
// It is nil for features that are not counted.
type UsageFunc func(r *http.Request, u *auth.User) (int64, error)

// MetricsRecorder is an optional recorder for denials.
type MetricsRecorder interface {
	IncLimitDenial(feature string)
}

// Enforcer wires a Gate to HTTP routes.
type Enforcer struct {
	gate    *Gate
	plans   PlanLookup
	metrics MetricsRecorder
}

// NewEnforcer creates an Enforcer.
func NewEnforcer(gate *Gate, plans PlanLookup) *Enforcer {
	return &Enforcer{gate: gate, plans: plans}
}

// SetMetrics sets the optional metrics recorder.
func (e *Enforcer) SetMetrics(m MetricsRecorder) {
	e.metrics = m
}

// Decide loads the user's plan and checks feature against usage.
func (e *Enforcer) Decide(ctx context.Context, u *auth.User, feature Feature, current int64) (Decision, error) {
	var p *plan.Plan
	if u != nil && u.PlanID != "" {
		var err error
		p, err = e.plans.Get(ctx, u.PlanID)
		if err != nil && !errors.Is(err, plan.ErrNotFound) {
			return Decision{}, err
		}
	}
	d := e.gate.Check(p, feature, current)
	if !d.Allowed && e.metrics != nil {
		e.metrics.IncLimitDenial(string(feature))
	}
	return d, nil
}

// Require returns middleware that denies the request with 403 when the
// feature limit is reached. It must run after session authentication.
func (e *Enforcer) Require(feature Feature, usage UsageFunc) func(http.Handler) http.Handler {
	scope := func(r *http.Request, u *auth.User) (*auth.User, int64, error) {
		if usage == nil {
			return u, 0, nil
		}
		n, err := usage(r, u)
		return u, n, err
	}
	return e.RequireScoped(feature, scope, nil)
}

// ScopeFunc resolves the account whose plan governs the request and that
// account's current usage of the feature. Access checks belong here so a
// caller without access never sees the usage figure.
type ScopeFunc func(r *http.Request, u *auth.User) (*auth.User, int64, error)

// ErrorWriter writes the response for a failed ScopeFunc.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// RequireScoped is Require with the plan taken from the account scope
// returns rather than the session user. onErr may be nil, in which case
// scope errors produce a 500.
func (e *Enforcer) RequireScoped(feature Feature, scope ScopeFunc, onErr ErrorWriter) func(http.Handler) http.Handler {
	if onErr == nil {
		onErr = func(w http.ResponseWriter, r *http.Request, err error) {
			slog.Error("counting usage failed", "feature", feature, "error", err)
			writeInternal(w)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := auth.UserFromContext(r.Context())

			var current int64
			if subject != nil {
				s, n, err := scope(r, subject)
				if err != nil {
					onErr(w, r, err)
					return
				}
				subject, current = s, n
			}

			d, err := e.Decide(r.Context(), subject, feature, current)
			if err != nil {
				slog.Error("loading plan failed", "feature", feature, "error", err)
				writeInternal(w)
				return
			}
			if !d.Allowed {
				WriteDenied(w, d)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteDenied writes the 403 upgrade-required response for d.
func WriteDenied(w http.ResponseWriter, d Decision) {
	writeJSON(w, http.StatusForbidden, map[string]any{
		"error": map[string]string{
			"code":    "upgrade_required",
			"message": d.Reason,
		},
		"feature":          d.Feature,
		"current":          d.Current,
		"limit":            d.Limit,
		"upgrade_required": true,
	})
}

func writeInternal(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"error": map[string]string{"code": "internal_error", "message": "failed to evaluate plan limits"},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
