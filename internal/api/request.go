package api

import (
	"net/http"
	"strconv"

	"github.com/alecgard/planboard/internal/auth"
)

// pageParams reads the cursor and limit query parameters. It writes a 400
// and returns false for a malformed limit.
func pageParams(w http.ResponseWriter, r *http.Request) (cursor string, limit int, ok bool) {
	cursor = r.URL.Query().Get("cursor")
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l < 1 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return "", 0, false
		}
		limit = l
	}
	return cursor, limit, true
}

// listResponse builds the standard list envelope.
func listResponse(key string, items any, nextCursor string) map[string]any {
	resp := map[string]any{key: items}
	if nextCursor != "" {
		resp["next_cursor"] = nextCursor
	}
	return resp
}

// requireUser returns the authenticated user or writes a 401.
func requireUser(w http.ResponseWriter, r *http.Request) (*auth.User, bool) {
	u := auth.UserFromContext(r.Context())
	if u == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return nil, false
	}
	return u, true
}

// decodeBody reads a JSON body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := readJSON(r, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return false
	}
	return true
}
