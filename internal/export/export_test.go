package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alecgard/planboard/internal/note"
	"github.com/alecgard/planboard/internal/project"
	"github.com/alecgard/planboard/internal/task"
)

type projectsFunc func(ctx context.Context, userID string) ([]*project.Project, error)

func (f projectsFunc) ListOwned(ctx context.Context, userID string) ([]*project.Project, error) {
	return f(ctx, userID)
}

type tasksFunc func(ctx context.Context, userID string) ([]*task.Task, error)

func (f tasksFunc) ListAll(ctx context.Context, userID string) ([]*task.Task, error) { return f(ctx, userID) }

type notesFunc func(ctx context.Context, userID string) ([]*note.Note, error)

func (f notesFunc) ListAll(ctx context.Context, userID string) ([]*note.Note, error) { return f(ctx, userID) }

var created = time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

func newExporter() *Exporter {
	due := created.Add(24 * time.Hour)
	return New(
		projectsFunc(func(context.Context, string) ([]*project.Project, error) {
			return []*project.Project{{ID: "p1", Name: "Launch, v2", Status: project.StatusActive, CreatedAt: created, UpdatedAt: created}}, nil
		}),
		tasksFunc(func(context.Context, string) ([]*task.Task, error) {
			return []*task.Task{
				{ID: "t1", Title: "Ship", Status: task.StatusTodo, Priority: task.PriorityHigh, DueDate: &due, CreatedAt: created},
				{ID: "t2", ProjectID: "p1", Title: "Plan", Status: task.StatusDone, Priority: task.PriorityLow, CreatedAt: created},
			}, nil
		}),
		notesFunc(func(context.Context, string) ([]*note.Note, error) {
			return nil, errors.New("db down")
		}),
	)
}

func TestWrite_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, newExporter().Write(context.Background(), &buf, "u1", KindTasks, FormatCSV))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "title", records[0][2])
	assert.Equal(t, []string{"t1", "", "Ship", "", "todo", "high", "2026-02-04T04:05:06Z", "2026-02-03T04:05:06Z"}, records[1])
	assert.Equal(t, "", records[2][6])
}

func TestWrite_CSVQuoting(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, newExporter().Write(context.Background(), &buf, "u1", KindProjects, FormatCSV))
	assert.Contains(t, buf.String(), `"Launch, v2"`)
}

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, newExporter().Write(context.Background(), &buf, "u1", KindProjects, FormatJSON))

	var out struct {
		Kind string            `json:"kind"`
		Data []project.Project `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, KindProjects, out.Kind)
	require.Len(t, out.Data, 1)
	assert.Equal(t, "Launch, v2", out.Data[0].Name)
}

func TestWrite_Errors(t *testing.T) {
	e := newExporter()
	ctx := context.Background()
	var buf bytes.Buffer

	assert.ErrorIs(t, e.Write(ctx, &buf, "u1", "invoices", FormatCSV), ErrUnknownKind)
	assert.ErrorIs(t, e.Write(ctx, &buf, "u1", KindTasks, "xml"), ErrUnknownFormat)
	assert.ErrorContains(t, e.Write(ctx, &buf, "u1", KindNotes, FormatJSON), "db down")
	assert.Zero(t, buf.Len())
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "notes-2026-02-03.csv", Filename(KindNotes, FormatCSV, created))
	assert.Equal(t, "text/csv; charset=utf-8", ContentType(FormatCSV))
	assert.Equal(t, "application/json", ContentType(FormatJSON))
}
