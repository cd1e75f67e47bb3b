package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alecgard/planboard/internal/export"
)

type exportsHandler struct {
	exporter *export.Exporter
	now      func() time.Time
}

func newExportsHandler(exporter *export.Exporter) *exportsHandler {
	return &exportsHandler{exporter: exporter, now: time.Now}
}

// Export handles GET /v1/exports/{kind}?format=csv|json. The document is
// rendered in full before any byte is sent so failures still get a proper
// error response.
func (h *exportsHandler) Export(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	kind := chi.URLParam(r, "kind")
	format := r.URL.Query().Get("format")
	if format == "" {
		format = export.FormatJSON
	}

	var buf bytes.Buffer
	if err := h.exporter.Write(r.Context(), &buf, u.ID, kind, format); err != nil {
		respondError(w, r, err)
		return
	}

	auditLog(r, "export.download", "export", kind, "format", format, "bytes", buf.Len())
	w.Header().Set("Content-Type", export.ContentType(format))
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", export.Filename(kind, format, h.now())))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
