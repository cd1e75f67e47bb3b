package note

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

// ErrNotFound is returned when a note does not exist.
var ErrNotFound = errors.New("note not found")

// Store provides database operations for sticky notes.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const noteColumns = `id, user_id, COALESCE(project_id::text, ''), content, color, created_at, updated_at`

func scanNote(row pgx.Row) (*Note, error) {
	var n Note
	if err := row.Scan(&n.ID, &n.UserID, &n.ProjectID, &n.Content, &n.Color, &n.CreatedAt, &n.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (s *Store) Create(ctx context.Context, userID string, in CreateNoteInput) (*Note, error) {
	var projectID any
	if in.ProjectID != "" {
		projectID = in.ProjectID
	}
	n, err := scanNote(s.pool.QueryRow(ctx,
		`INSERT INTO sticky_notes (user_id, project_id, content, color)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+noteColumns,
		userID, projectID, in.Content, in.Color,
	))
	if err != nil {
		return nil, fmt.Errorf("creating note: %w", err)
	}
	return n, nil
}

func (s *Store) Get(ctx context.Context, id string) (*Note, error) {
	n, err := scanNote(s.pool.QueryRow(ctx, `SELECT `+noteColumns+` FROM sticky_notes WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting note: %w", err)
	}
	return n, nil
}

// List returns a page of notes, newest first.
func (s *Store) List(ctx context.Context, userID string, params ListParams) ([]*Note, string, error) {
	limit := pagination.Params{Cursor: params.Cursor, Limit: params.Limit}.PageLimit()

	where := "user_id = $1 AND project_id IS NULL"
	args := []any{userID}
	if params.ProjectID != "" {
		where = "project_id = $1"
		args = []any{params.ProjectID}
	}
	if params.Cursor != "" {
		cursorTime, cursorID, err := pagination.Decode(params.Cursor)
		if err != nil {
			return nil, "", err
		}
		where += " AND (created_at, id) < ($2, $3)"
		args = append(args, cursorTime, cursorID)
	}
	args = append(args, limit+1)

	query := fmt.Sprintf(`SELECT %s FROM sticky_notes WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d`,
		noteColumns, where, len(args))
	notes, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}
	notes, next := pagination.Trim(notes, limit, func(n *Note) (time.Time, string) { return n.CreatedAt, n.ID })
	return notes, next, nil
}

// ListAll returns every note the user wrote.
func (s *Store) ListAll(ctx context.Context, userID string) ([]*Note, error) {
	return s.query(ctx, `SELECT `+noteColumns+` FROM sticky_notes WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]*Note, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	defer rows.Close()

	notes := []*Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning note row: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating note rows: %w", err)
	}
	return notes, nil
}

func (s *Store) Update(ctx context.Context, id string, in UpdateNoteInput) (*Note, error) {
	var setClauses []string
	var args []any
	if in.Content != nil {
		args = append(args, *in.Content)
		setClauses = append(setClauses, fmt.Sprintf("content = $%d", len(args)))
	}
	if in.Color != nil {
		args = append(args, *in.Color)
		setClauses = append(setClauses, fmt.Sprintf("color = $%d", len(args)))
	}
	if len(setClauses) == 0 {
		return s.Get(ctx, id)
	}
	setClauses = append(setClauses, "updated_at = now()")
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE sticky_notes SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(setClauses, ", "), len(args), noteColumns)
	n, err := scanNote(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("updating note: %w", err)
	}
	return n, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sticky_notes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
