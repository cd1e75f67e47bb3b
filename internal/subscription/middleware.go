package subscription

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alecgard/planboard/internal/auth"
)

// TrialGate returns middleware that runs EnforceTrial for the
// authenticated user. A user whose trial just expired receives 402 with
// trial_expired set; enforcement errors are logged and the request passes.
func TrialGate(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := auth.UserFromContext(r.Context())
			if u == nil || svc == nil {
				next.ServeHTTP(w, r)
				return
			}

			expired, err := svc.EnforceTrial(r.Context(), u.ID)
			if err != nil {
				slog.Warn("trial enforcement failed", "user_id", u.ID, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if expired {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusPaymentRequired)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"error": map[string]string{
						"code":    "payment_required",
						"message": "Your trial has ended. Add a payment method to keep your plan.",
					},
					"trial_expired": true,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
