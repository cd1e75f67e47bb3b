package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alecgard/planboard/internal/note"
)

type notesHandler struct {
	notes *note.Service
}

func newNotesHandler(notes *note.Service) *notesHandler {
	return &notesHandler{notes: notes}
}

// List handles GET /v1/notes.
func (h *notesHandler) List(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	cursor, limit, ok := pageParams(w, r)
	if !ok {
		return
	}

	params := note.ListParams{ProjectID: r.URL.Query().Get("project_id"), Cursor: cursor, Limit: limit}
	notes, next, err := h.notes.List(r.Context(), u.ID, params)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse("notes", notes, next))
}

func (h *notesHandler) Create(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	var in note.CreateNoteInput
	if !decodeBody(w, r, &in) {
		return
	}

	n, err := h.notes.Create(r.Context(), u.ID, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (h *notesHandler) Get(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}

	n, err := h.notes.Get(r.Context(), chi.URLParam(r, "id"), u.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *notesHandler) Update(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	var in note.UpdateNoteInput
	if !decodeBody(w, r, &in) {
		return
	}

	n, err := h.notes.Update(r.Context(), chi.URLParam(r, "id"), u.ID, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *notesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.notes.Delete(r.Context(), chi.URLParam(r, "id"), u.ID); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
