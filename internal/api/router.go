package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alecgard/planboard/internal/auth"
	"github.com/alecgard/planboard/internal/billing"
	"github.com/alecgard/planboard/internal/export"
	"github.com/alecgard/planboard/internal/limits"
	"github.com/alecgard/planboard/internal/metrics"
	"github.com/alecgard/planboard/internal/note"
	"github.com/alecgard/planboard/internal/plan"
	"github.com/alecgard/planboard/internal/project"
	"github.com/alecgard/planboard/internal/ratelimit"
	"github.com/alecgard/planboard/internal/subscription"
	"github.com/alecgard/planboard/internal/task"
	"github.com/alecgard/planboard/internal/team"
	"github.com/alecgard/planboard/internal/user"
)

// RouterDeps holds all dependencies for the API router. Metrics, Limits,
// the rate limiters and DB are optional.
type RouterDeps struct {
	Users         *user.Service
	Sessions      auth.SessionLookup
	Plans         *plan.Service
	Syncer        *billing.Syncer
	Webhooks      *billing.WebhookParser
	Subscriptions *subscription.Service
	Limits        *limits.Enforcer
	Projects      *project.Service
	Tasks         *task.Service
	Notes         *note.Service
	Invitations   *team.Service
	Exporter      *export.Exporter
	Metrics       *metrics.Metrics
	AuthLimiter   *ratelimit.Limiter
	APILimiter    *ratelimit.Limiter
	DB            Pinger

	AllowedOrigins []string
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(requestLogger)
	r.Use(secureHeaders)
	r.Use(corsMiddleware(deps.AllowedOrigins))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}

	// Handlers.
	authH := newAuthHandler(deps.Users, recorderOrNil(deps.Metrics))
	plans := newPlansHandler(deps.Plans, deps.Syncer)
	subs := newSubscriptionHandler(deps.Subscriptions)
	hooks := newWebhookHandler(deps.Webhooks, deps.Subscriptions, webhookRecorderOrNil(deps.Metrics))
	projects := newProjectsHandler(deps.Projects)
	tasks := newTasksHandler(deps.Tasks)
	notes := newNotesHandler(deps.Notes)
	invitations := newInvitationsHandler(deps.Invitations)
	me := newMeHandler(deps.Users)
	exports := newExportsHandler(deps.Exporter)
	adminUsers := newAdminUsersHandler(deps.Users)
	admin := newAdminHandler(deps.Subscriptions, deps.Syncer, deps.Metrics)

	onReject := func(scope string) {
		if deps.Metrics != nil {
			deps.Metrics.IncRateLimitRejection(scope)
		}
	}
	onSessionFailure := func() {
		if deps.Metrics != nil {
			deps.Metrics.IncAuthFailure("session")
		}
	}
	require := func(feature limits.Feature, usage limits.UsageFunc) func(http.Handler) http.Handler {
		if deps.Limits == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return deps.Limits.Require(feature, usage)
	}

	ownedProjects := func(r *http.Request, u *auth.User) (int64, error) {
		return deps.Projects.CountOwned(r.Context(), u.ID)
	}
	// Seats are counted against the project owner's plan, and only for
	// callers allowed to manage members.
	projectSeats := func(r *http.Request, u *auth.User) (*auth.User, int64, error) {
		ctx := r.Context()
		p, err := deps.Projects.Authorize(ctx, chi.URLParam(r, "id"), u.ID, project.PermMembersManage)
		if err != nil {
			return nil, 0, err
		}
		owner, err := deps.Users.Get(ctx, p.UserID)
		if err != nil {
			return nil, 0, err
		}
		n, err := deps.Projects.CountMembers(ctx, p.ID)
		if err != nil {
			return nil, 0, err
		}
		return &auth.User{ID: owner.ID, Email: owner.Email, Role: owner.Role, PlanID: owner.PlanID}, n, nil
	}
	requireSeat := func(next http.Handler) http.Handler {
		if deps.Limits == nil {
			return next
		}
		return deps.Limits.RequireScoped(limits.TeamMembers, projectSeats, respondError)(next)
	}

	r.Get("/health", healthHandler(deps.DB))
	if deps.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics.Registry(), promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(v chi.Router) {
		// Public routes.
		v.Group(func(pr chi.Router) {
			pr.Use(ratelimit.Middleware(deps.AuthLimiter, "auth", ratelimit.ByIP, onReject))
			pr.Post("/auth/register", authH.Register)
			pr.Post("/auth/login", authH.Login)
		})
		v.Get("/plans", plans.ListPublic)
		v.Get("/plans/{id}", plans.GetPublic)
		v.Post("/billing/webhook", hooks.Handle)
		v.Post("/invitations/{token}/decline", invitations.Decline)

		// Session routes.
		v.Group(func(sr chi.Router) {
			sr.Use(auth.SessionMiddleware(deps.Sessions, onSessionFailure))
			sr.Use(ratelimit.Middleware(deps.APILimiter, "api", ratelimit.ByUser, onReject))

			sr.Post("/auth/logout", authH.Logout)
			sr.Get("/auth/me", authH.Me)

			sr.Get("/subscription", subs.Get)
			sr.Post("/subscription", subs.Subscribe)
			sr.Put("/subscription", subs.ChangePlan)
			sr.Delete("/subscription", subs.Cancel)

			sr.Get("/me/notifications", me.Notifications)
			sr.Put("/me/notifications", me.UpdateNotifications)

			sr.Post("/invitations/{token}/accept", invitations.Accept)

			// Workspace routes behind the trial gate.
			sr.Group(func(gr chi.Router) {
				gr.Use(subscription.TrialGate(deps.Subscriptions))

				gr.Get("/projects", projects.List)
				gr.With(require(limits.Projects, ownedProjects)).Post("/projects", projects.Create)
				gr.Route("/projects/{id}", func(pr chi.Router) {
					pr.Get("/", projects.Get)
					pr.Put("/", projects.Update)
					pr.Delete("/", projects.Delete)

					pr.Get("/members", projects.Members)
					pr.Put("/members/{userID}", projects.SetMemberRole)
					pr.Delete("/members/{userID}", projects.RemoveMember)

					pr.Get("/invitations", invitations.List)
					pr.With(requireSeat).Post("/invitations", invitations.Create)
				})

				gr.Get("/tasks", tasks.List)
				gr.Post("/tasks", tasks.Create)
				gr.Get("/tasks/{id}", tasks.Get)
				gr.Put("/tasks/{id}", tasks.Update)
				gr.Delete("/tasks/{id}", tasks.Delete)

				gr.Get("/notes", notes.List)
				gr.Post("/notes", notes.Create)
				gr.Get("/notes/{id}", notes.Get)
				gr.Put("/notes/{id}", notes.Update)
				gr.Delete("/notes/{id}", notes.Delete)

				gr.With(require(limits.AdvancedFeatures, nil)).Get("/exports/{kind}", exports.Export)
			})
		})

		// Admin routes.
		v.Route("/admin", func(ar chi.Router) {
			ar.Use(auth.AdminSessionMiddleware(deps.Sessions, onSessionFailure))

			ar.Get("/plans", plans.List)
			ar.Post("/plans", plans.Create)
			ar.Get("/plans/{id}", plans.Get)
			ar.Put("/plans/{id}", plans.Update)
			ar.Delete("/plans/{id}", plans.Delete)
			ar.Post("/plans/{id}/sync", plans.Sync)
			ar.Post("/plans/{id}/archive", plans.Archive)

			ar.Get("/users", adminUsers.List)
			ar.Get("/users/{id}", adminUsers.Get)
			ar.Put("/users/{id}", adminUsers.Update)
			ar.Delete("/users/{id}", adminUsers.Delete)

			ar.Get("/analytics", admin.Analytics)
			ar.Get("/metrics", admin.Metrics)
			ar.Get("/billing/check", admin.BillingCheck)
		})
	})

	return r
}

// recorderOrNil avoids storing a typed nil *metrics.Metrics in an interface.
func recorderOrNil(m *metrics.Metrics) AuthRecorder {
	if m == nil {
		return nil
	}
	return m
}

func webhookRecorderOrNil(m *metrics.Metrics) WebhookRecorder {
	if m == nil {
		return nil
	}
	return m
}
