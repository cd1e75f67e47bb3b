package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alecgard/planboard/internal/pagination"
)

// ErrNotFound is returned when a task does not exist.
var ErrNotFound = errors.New("task not found")

// Store provides database operations for tasks.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new task store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const taskColumns = `id, user_id, COALESCE(project_id::text, ''), title, description, status, priority,
	due_date, created_at, updated_at`

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.UserID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.Priority,
		&t.DueDate, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Create inserts a new task.
func (s *Store) Create(ctx context.Context, userID string, in CreateTaskInput) (*Task, error) {
	t, err := scanTask(s.pool.QueryRow(ctx,
		`INSERT INTO tasks (user_id, project_id, title, description, status, priority, due_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+taskColumns,
		userID, nullable(in.ProjectID), in.Title, in.Description, in.Status, in.Priority, in.DueDate,
	))
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}
	return t, nil
}

// Get retrieves a task by id.
func (s *Store) Get(ctx context.Context, id string) (*Task, error) {
	t, err := scanTask(s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting task: %w", err)
	}
	return t, nil
}

// List returns a page of tasks ordered by created_at DESC, id DESC.
func (s *Store) List(ctx context.Context, userID string, params ListParams) ([]*Task, string, error) {
	page := pagination.Params{Cursor: params.Cursor, Limit: params.Limit}
	limit := page.PageLimit()

	var where []string
	var args []any
	argIdx := 1

	if params.ProjectID != "" {
		where = append(where, fmt.Sprintf("project_id = $%d", argIdx))
		args = append(args, params.ProjectID)
	} else {
		where = append(where, fmt.Sprintf("user_id = $%d", argIdx))
		args = append(args, userID)
	}
	argIdx++

	if params.Cursor != "" {
		cursorTime, cursorID, err := pagination.Decode(params.Cursor)
		if err != nil {
			return nil, "", err
		}
		where = append(where, fmt.Sprintf("(created_at, id) < ($%d, $%d)", argIdx, argIdx+1))
		args = append(args, cursorTime, cursorID)
		argIdx += 2
	}
	if params.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, params.Status)
		argIdx++
	}
	if params.Priority != "" {
		where = append(where, fmt.Sprintf("priority = $%d", argIdx))
		args = append(args, params.Priority)
		argIdx++
	}
	args = append(args, limit+1)

	query := fmt.Sprintf(`SELECT %s FROM tasks WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d`,
		taskColumns, strings.Join(where, " AND "), argIdx)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, "", fmt.Errorf("scanning task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterating task rows: %w", err)
	}

	tasks, next := pagination.Trim(tasks, limit, func(t *Task) (time.Time, string) { return t.CreatedAt, t.ID })
	return tasks, next, nil
}

// ListAll returns every task created by the user, newest first.
func (s *Store) ListAll(ctx context.Context, userID string) ([]*Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Update performs a partial update on the task with the given id.
func (s *Store) Update(ctx context.Context, id string, in UpdateTaskInput) (*Task, error) {
	var setClauses []string
	var args []any
	argIdx := 1

	set := func(col string, v any) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", col, argIdx))
		args = append(args, v)
		argIdx++
	}
	if in.Title != nil {
		set("title", *in.Title)
	}
	if in.Description != nil {
		set("description", *in.Description)
	}
	if in.Status != nil {
		set("status", *in.Status)
	}
	if in.Priority != nil {
		set("priority", *in.Priority)
	}
	if in.ClearDue {
		setClauses = append(setClauses, "due_date = NULL")
	} else if in.DueDate != nil {
		set("due_date", *in.DueDate)
	}

	if len(setClauses) == 0 {
		return s.Get(ctx, id)
	}
	setClauses = append(setClauses, "updated_at = now()")

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE tasks SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(setClauses, ", "), argIdx, taskColumns)

	t, err := scanTask(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("updating task: %w", err)
	}
	return t, nil
}

// Delete removes a task by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
