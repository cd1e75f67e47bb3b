package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestCORSMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantStatus int
		wantOrigin string
		wantVary   bool
	}{
		{"wildcard", []string{"*"}, "https://example.com", http.MethodGet, http.StatusOK, "*", false},
		{"listed origin echoed", []string{"https://app.planboard.io"}, "https://app.planboard.io", http.MethodGet, http.StatusOK, "https://app.planboard.io", true},
		{"unlisted origin", []string{"https://app.planboard.io"}, "https://evil.example", http.MethodGet, http.StatusOK, "", false},
		{"no origin header", []string{"*"}, "", http.MethodGet, http.StatusOK, "", false},
		{"preflight", []string{"*"}, "https://example.com", http.MethodOptions, http.StatusNoContent, "*", false},
		{"cors disabled", nil, "https://example.com", http.MethodGet, http.StatusOK, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/v1/plans", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			corsMiddleware(tt.allowed)(inner).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status: got %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Access-Control-Allow-Origin: got %q, want %q", got, tt.wantOrigin)
			}
			if tt.wantVary && rec.Header().Get("Vary") != "Origin" {
				t.Errorf("expected Vary: Origin, got %q", rec.Header().Get("Vary"))
			}
			if tt.wantOrigin != "" {
				if h := rec.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(h, "Idempotency-Key") {
					t.Errorf("allow headers should include Idempotency-Key, got %q", h)
				}
			}
		})
	}
}

func TestCORSMiddleware_PreflightDoesNotCallNext(t *testing.T) {
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodOptions, "/v1/projects", nil)
	req.Header.Set("Origin", "https://example.com")
	corsMiddleware([]string{"*"})(inner).ServeHTTP(httptest.NewRecorder(), req)

	if called {
		t.Error("preflight should not reach the next handler")
	}
}

func TestSecureHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	secureHeaders(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s: got %q, want %q", header, got, want)
		}
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		want     string // empty means a generated uuid
	}{
		{"generated when absent", "", ""},
		{"forwarded", "req-123", "req-123"},
		{"whitespace trimmed", "  req-456 \n", "req-456"},
		{"control characters replaced", "bad\x00id", ""},
		{"oversized replaced", strings.Repeat("a", maxRequestIDLength+1), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fromCtx string
			inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fromCtx = RequestIDFromContext(r.Context())
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set("X-Request-ID", tt.incoming)
			}
			rec := httptest.NewRecorder()
			requestIDMiddleware(inner).ServeHTTP(rec, req)

			got := rec.Header().Get("X-Request-ID")
			if tt.want != "" && got != tt.want {
				t.Errorf("X-Request-ID: got %q, want %q", got, tt.want)
			}
			if tt.want == "" {
				if _, err := uuid.Parse(got); err != nil {
					t.Errorf("expected generated uuid, got %q", got)
				}
			}
			if fromCtx != got {
				t.Errorf("context id %q does not match header %q", fromCtx, got)
			}
		})
	}
}

func TestRequestIDFromContext_Empty(t *testing.T) {
	if id := RequestIDFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()); id != "" {
		t.Errorf("expected empty id, got %q", id)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:51234"
	if got := clientIP(req); got != "10.0.0.7" {
		t.Errorf("got %q, want 10.0.0.7", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Errorf("got %q, want 203.0.113.9", got)
	}
}

func TestPageParams(t *testing.T) {
	tests := []struct {
		query     string
		wantOK    bool
		wantLimit int
	}{
		{"", true, 0},
		{"limit=25&cursor=abc", true, 25},
		{"limit=0", false, 0},
		{"limit=ten", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := httptest.NewRecorder()
			_, limit, ok := pageParams(rec, httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil))
			if ok != tt.wantOK {
				t.Fatalf("ok: got %v, want %v", ok, tt.wantOK)
			}
			if !ok && rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
			if limit != tt.wantLimit {
				t.Errorf("limit: got %d, want %d", limit, tt.wantLimit)
			}
		})
	}
}
