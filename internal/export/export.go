// Package export renders a user's projects, tasks and notes as CSV or JSON.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/alecgard/planboard/internal/note"
	"github.com/alecgard/planboard/internal/project"
	"github.com/alecgard/planboard/internal/task"
)

// Export kinds.
const (
	KindProjects = "projects"
	KindTasks    = "tasks"
	KindNotes    = "notes"
)

// Formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

var (
	ErrUnknownKind   = errors.New("unknown export kind")
	ErrUnknownFormat = errors.New("unknown export format")
)

type ProjectSource interface {
	ListOwned(ctx context.Context, userID string) ([]*project.Project, error)
}

type TaskSource interface {
	ListAll(ctx context.Context, userID string) ([]*task.Task, error)
}

type NoteSource interface {
	ListAll(ctx context.Context, userID string) ([]*note.Note, error)
}

// Exporter streams exports from the owning services.
type Exporter struct {
	projects ProjectSource
	tasks    TaskSource
	notes    NoteSource
}

func New(projects ProjectSource, tasks TaskSource, notes NoteSource) *Exporter {
	return &Exporter{projects: projects, tasks: tasks, notes: notes}
}

// ContentType returns the MIME type for format.
func ContentType(format string) string {
	if format == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

// Filename returns a download name such as "tasks-2026-01-02.csv".
func Filename(kind, format string, now time.Time) string {
	return fmt.Sprintf("%s-%s.%s", kind, now.UTC().Format("2006-01-02"), format)
}

// Validate checks kind and format before any output is written.
func Validate(kind, format string) error {
	switch kind {
	case KindProjects, KindTasks, KindNotes:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	switch format {
	case FormatCSV, FormatJSON:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return nil
}

// Write renders the user's data of the given kind to w.
func (e *Exporter) Write(ctx context.Context, w io.Writer, userID, kind, format string) error {
	if err := Validate(kind, format); err != nil {
		return err
	}

	var (
		header []string
		rows   [][]string
		items  any
	)
	switch kind {
	case KindProjects:
		projects, err := e.projects.ListOwned(ctx, userID)
		if err != nil {
			return fmt.Errorf("loading projects: %w", err)
		}
		items = projects
		header = []string{"id", "name", "description", "status", "created_at", "updated_at"}
		for _, p := range projects {
			rows = append(rows, []string{p.ID, p.Name, p.Description, p.Status, stamp(p.CreatedAt), stamp(p.UpdatedAt)})
		}
	case KindTasks:
		tasks, err := e.tasks.ListAll(ctx, userID)
		if err != nil {
			return fmt.Errorf("loading tasks: %w", err)
		}
		items = tasks
		header = []string{"id", "project_id", "title", "description", "status", "priority", "due_date", "created_at"}
		for _, t := range tasks {
			due := ""
			if t.DueDate != nil {
				due = stamp(*t.DueDate)
			}
			rows = append(rows, []string{t.ID, t.ProjectID, t.Title, t.Description, t.Status, t.Priority, due, stamp(t.CreatedAt)})
		}
	case KindNotes:
		notes, err := e.notes.ListAll(ctx, userID)
		if err != nil {
			return fmt.Errorf("loading notes: %w", err)
		}
		items = notes
		header = []string{"id", "project_id", "content", "color", "created_at"}
		for _, n := range notes {
			rows = append(rows, []string{n.ID, n.ProjectID, n.Content, n.Color, stamp(n.CreatedAt)})
		}
	}

	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"kind": kind, "data": items})
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("writing csv: %w", err)
	}
	return nil
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
