package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alecgard/planboard/internal/auth"
	"github.com/alecgard/planboard/internal/billing"
	"github.com/alecgard/planboard/internal/billing/billingtest"
	"github.com/alecgard/planboard/internal/limits"
	"github.com/alecgard/planboard/internal/metrics"
	"github.com/alecgard/planboard/internal/plan"
	"github.com/alecgard/planboard/internal/ratelimit"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error { return f.err }

// fakeSessions resolves bearer tokens to fixed users.
type fakeSessions map[string]*auth.User

func (f fakeSessions) LookupSession(_ context.Context, token string) (*auth.User, error) {
	u, ok := f[token]
	if !ok {
		return nil, errors.New("invalid session")
	}
	return u, nil
}

type fakePlanLookup map[string]*plan.Plan

func (f fakePlanLookup) Get(_ context.Context, id string) (*plan.Plan, error) {
	p, ok := f[id]
	if !ok {
		return nil, plan.ErrNotFound
	}
	return p, nil
}

func testSessions() fakeSessions {
	return fakeSessions{
		"member-token": {ID: "u1", Email: "member@example.com", Role: auth.RoleUser, PlanID: "free"},
		"admin-token":  {ID: "a1", Email: "admin@example.com", Role: auth.RoleAdmin},
	}
}

func serve(h http.Handler, method, path, token string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		db         Pinger
		wantStatus int
		wantBody   string
	}{
		{"no database", nil, http.StatusOK, "ok"},
		{"database up", &fakePinger{}, http.StatusOK, "ok"},
		{"database down", &fakePinger{err: errors.New("refused")}, http.StatusServiceUnavailable, "unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(NewRouter(RouterDeps{DB: tt.db}), http.MethodGet, "/health", "", "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status: got %d, want %d", rec.Code, tt.wantStatus)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["status"] != tt.wantBody {
				t.Errorf("status field: got %q, want %q", body["status"], tt.wantBody)
			}
		})
	}
}

func TestRouter_GlobalMiddleware(t *testing.T) {
	h := NewRouter(RouterDeps{AllowedOrigins: []string{"https://app.planboard.io"}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://app.planboard.io")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected secure headers")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.planboard.io" {
		t.Errorf("Access-Control-Allow-Origin: got %q", got)
	}
}

func TestRouter_NotFound(t *testing.T) {
	rec := serve(NewRouter(RouterDeps{}), http.MethodGet, "/v1/unknown", "", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestRouter_SessionRequired(t *testing.T) {
	h := NewRouter(RouterDeps{Sessions: testSessions()})

	for _, path := range []string{"/v1/auth/me", "/v1/subscription", "/v1/projects", "/v1/tasks", "/v1/notes", "/v1/me/notifications", "/v1/exports/tasks"} {
		t.Run(path, func(t *testing.T) {
			if rec := serve(h, http.MethodGet, path, "", ""); rec.Code != http.StatusUnauthorized {
				t.Errorf("no token: expected 401, got %d", rec.Code)
			}
			if rec := serve(h, http.MethodGet, path, "stale-token", ""); rec.Code != http.StatusUnauthorized {
				t.Errorf("bad token: expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestRouter_AdminRequiresAdminRole(t *testing.T) {
	h := NewRouter(RouterDeps{Sessions: testSessions()})

	for _, path := range []string{"/v1/admin/plans", "/v1/admin/users", "/v1/admin/analytics"} {
		if rec := serve(h, http.MethodGet, path, "", ""); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s without token: expected 401, got %d", path, rec.Code)
		}
		if rec := serve(h, http.MethodGet, path, "member-token", ""); rec.Code != http.StatusForbidden {
			t.Errorf("%s as member: expected 403, got %d", path, rec.Code)
		}
	}
}

func TestRouter_AdminMetricsSummary(t *testing.T) {
	m := metrics.New()
	h := NewRouter(RouterDeps{Sessions: testSessions(), Metrics: m})

	serve(h, http.MethodGet, "/health", "", "")
	rec := serve(h, http.MethodGet, "/v1/admin/metrics", "admin-token", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
}

func TestRouter_PrometheusEndpoint(t *testing.T) {
	m := metrics.New()
	h := NewRouter(RouterDeps{Sessions: testSessions(), Metrics: m})

	serve(h, http.MethodGet, "/v1/auth/me", "", "")
	rec := serve(h, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"planboard_http_requests_total", "planboard_auth_failures_total"} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %s", want)
		}
	}
}

func TestRouter_AuthRateLimit(t *testing.T) {
	m := metrics.New()
	h := NewRouter(RouterDeps{Metrics: m, AuthLimiter: ratelimit.New(1, time.Minute)})

	first := serve(h, http.MethodPost, "/v1/auth/login", "", `{}`)
	if first.Code != http.StatusUnprocessableEntity {
		t.Fatalf("first login: expected 422, got %d", first.Code)
	}
	if first.Header().Get("X-RateLimit-Limit") != "1" {
		t.Errorf("X-RateLimit-Limit: got %q", first.Header().Get("X-RateLimit-Limit"))
	}

	second := serve(h, http.MethodPost, "/v1/auth/login", "", `{}`)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second login: expected 429, got %d", second.Code)
	}
	if code := decodeEnvelope(t, second).Error.Code; code != "rate_limited" {
		t.Errorf("code: got %q", code)
	}
}

func TestRouter_LoginMalformedBody(t *testing.T) {
	rec := serve(NewRouter(RouterDeps{}), http.MethodPost, "/v1/auth/login", "", `{"email":`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestRouter_ExportRequiresAdvancedFeatures(t *testing.T) {
	plans := fakePlanLookup{"free": {ID: "free", Name: "Free"}}
	enforcer := limits.NewEnforcer(limits.NewGate(nil), plans)
	h := NewRouter(RouterDeps{Sessions: testSessions(), Limits: enforcer})

	rec := serve(h, http.MethodGet, "/v1/exports/tasks?format=csv", "member-token", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	var body struct {
		Feature         string `json:"feature"`
		UpgradeRequired bool   `json:"upgrade_required"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Feature != string(limits.AdvancedFeatures) || !body.UpgradeRequired {
		t.Errorf("unexpected denial body: %+v", body)
	}
}

func TestRouter_BillingCheckMissingKeys(t *testing.T) {
	syncer := billing.NewSyncer(billingtest.New(), nil, billing.Keys{SecretKey: "sk_test"})
	h := NewRouter(RouterDeps{Sessions: testSessions(), Syncer: syncer})

	rec := serve(h, http.MethodGet, "/v1/admin/billing/check", "admin-token", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
		Details map[string]bool `json:"details"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "billing_not_configured" {
		t.Errorf("expected billing_not_configured, got %q", body.Error.Code)
	}
	if !body.Details["secret_key"] || body.Details["publishable_key"] {
		t.Errorf("unexpected details: %v", body.Details)
	}
}

const testWebhookSecret = "whsec_test"

func signWebhook(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestWebhook(t *testing.T) {
	ignored := []byte(`{"id":"evt_1","object":"event","type":"charge.succeeded","data":{"object":{"id":"ch_1","object":"charge"}}}`)

	tests := []struct {
		name       string
		parser     *billing.WebhookParser
		signature  string
		wantStatus int
	}{
		{"not configured", billing.NewWebhookParser(""), signWebhook(ignored, testWebhookSecret), http.StatusServiceUnavailable},
		{"missing signature", billing.NewWebhookParser(testWebhookSecret), "", http.StatusBadRequest},
		{"wrong secret", billing.NewWebhookParser(testWebhookSecret), signWebhook(ignored, "whsec_other"), http.StatusBadRequest},
		{"unhandled event acknowledged", billing.NewWebhookParser(testWebhookSecret), signWebhook(ignored, testWebhookSecret), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRouter(RouterDeps{Webhooks: tt.parser})

			req := httptest.NewRequest(http.MethodPost, "/v1/billing/webhook", strings.NewReader(string(ignored)))
			if tt.signature != "" {
				req.Header.Set("Stripe-Signature", tt.signature)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status: got %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}
