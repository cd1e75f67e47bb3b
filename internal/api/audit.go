package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/alecgard/planboard/internal/auth"
)

// auditLog records a mutation as a structured "audit" entry. Extra key/value
// pairs in detail land under the "detail" group.
//
//	auditLog(r, "plan.archive", "plan", id, "remote", res.Success)
func auditLog(r *http.Request, action, resourceType, resourceID string, detail ...any) {
	ctx := r.Context()
	attrs := []slog.Attr{
		slog.String("action", action),
		slog.Group("resource", "type", resourceType, "id", resourceID),
		slog.String("ip", clientIP(r)),
		slog.String("request_id", RequestIDFromContext(ctx)),
	}
	if actor := auth.UserFromContext(ctx); actor != nil {
		attrs = append(attrs, slog.Group("actor", "id", actor.ID, "email", actor.Email, "role", actor.Role))
	}
	if len(detail) > 0 {
		attrs = append(attrs, slog.Group("detail", detail...))
	}
	slog.LogAttrs(context.WithoutCancel(ctx), slog.LevelInfo, "audit", attrs...)
}

// clientIP prefers the left-most X-Forwarded-For hop.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		hop, _, _ := strings.Cut(fwd, ",")
		if hop = strings.TrimSpace(hop); hop != "" {
			return hop
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
