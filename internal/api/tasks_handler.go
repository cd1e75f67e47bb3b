package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alecgard/planboard/internal/task"
)

type tasksHandler struct {
	tasks *task.Service
}

func newTasksHandler(tasks *task.Service) *tasksHandler {
	return &tasksHandler{tasks: tasks}
}

// List handles GET /v1/tasks. With project_id the project's tasks are
// listed, otherwise the caller's personal tasks.
func (h *tasksHandler) List(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	cursor, limit, ok := pageParams(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	params := task.ListParams{
		ProjectID: q.Get("project_id"),
		Status:    q.Get("status"),
		Priority:  q.Get("priority"),
		Cursor:    cursor,
		Limit:     limit,
	}
	tasks, next, err := h.tasks.List(r.Context(), u.ID, params)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse("tasks", tasks, next))
}

// Create handles POST /v1/tasks.
func (h *tasksHandler) Create(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	var in task.CreateTaskInput
	if !decodeBody(w, r, &in) {
		return
	}

	t, err := h.tasks.Create(r.Context(), u.ID, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// Get handles GET /v1/tasks/{id}.
func (h *tasksHandler) Get(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}

	t, err := h.tasks.Get(r.Context(), chi.URLParam(r, "id"), u.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Update handles PUT /v1/tasks/{id}.
func (h *tasksHandler) Update(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	var in task.UpdateTaskInput
	if !decodeBody(w, r, &in) {
		return
	}

	t, err := h.tasks.Update(r.Context(), chi.URLParam(r, "id"), u.ID, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Delete handles DELETE /v1/tasks/{id}.
func (h *tasksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.tasks.Delete(r.Context(), chi.URLParam(r, "id"), u.ID); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
