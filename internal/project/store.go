package project

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

var (
	// ErrNotFound is returned when a project does not exist or is not
	// visible to the caller.
	ErrNotFound = errors.New("project not found")
	// ErrRoleNotFound is returned for an unknown role name.
	ErrRoleNotFound = errors.New("role not found")
	// ErrNotMember is returned when the user is not a project member.
	ErrNotMember = errors.New("user is not a member of this project")
)

// Store provides database operations for projects, roles and members.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new project store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const projectColumns = `p.id, p.user_id, p.name, p.description, p.status, p.created_at, p.updated_at`

func scanProject(row pgx.Row) (*Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Create inserts a project and makes its creator the owner member in one
// transaction.
func (s *Store) Create(ctx context.Context, ownerID string, in CreateProjectInput) (*Project, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning project create: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	p, err := scanProject(tx.QueryRow(ctx,
		`INSERT INTO projects AS p (user_id, name, description)
		 VALUES ($1, $2, $3)
		 RETURNING `+projectColumns,
		ownerID, in.Name, in.Description,
	))
	if err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO project_members (project_id, user_id, role_id)
		 SELECT $1, $2, id FROM roles WHERE name = $3`,
		p.ID, ownerID, RoleOwner)
	if err != nil {
		return nil, fmt.Errorf("adding owner membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing project create: %w", err)
	}
	return p, nil
}

// Get retrieves a project by id.
func (s *Store) Get(ctx context.Context, id string) (*Project, error) {
	p, err := scanProject(s.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects p WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting project: %w", err)
	}
	return p, nil
}

// ListForUser returns a page of projects the user belongs to, ordered by
// created_at DESC, id DESC.
func (s *Store) ListForUser(ctx context.Context, userID string, params ListParams) ([]*Project, string, error) {
	page := pagination.Params{Cursor: params.Cursor, Limit: params.Limit}
	limit := page.PageLimit()

	where := []string{"m.user_id = $1"}
	args := []any{userID}
	argIdx := 2

	if params.Cursor != "" {
		cursorTime, cursorID, err := pagination.Decode(params.Cursor)
		if err != nil {
			return nil, "", err
		}
		where = append(where, fmt.Sprintf("(p.created_at, p.id) < ($%d, $%d)", argIdx, argIdx+1))
		args = append(args, cursorTime, cursorID)
		argIdx += 2
	}
	if params.Status != "" {
		where = append(where, fmt.Sprintf("p.status = $%d", argIdx))
		args = append(args, params.Status)
		argIdx++
	}
	args = append(args, limit+1)

	query := fmt.Sprintf(`SELECT %s FROM projects p
		JOIN project_members m ON m.project_id = p.id
		WHERE %s
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT $%d`, projectColumns, strings.Join(where, " AND "), argIdx)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	projects := []*Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, "", fmt.Errorf("scanning project row: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterating project rows: %w", err)
	}

	projects, next := pagination.Trim(projects, limit, func(p *Project) (time.Time, string) { return p.CreatedAt, p.ID })
	return projects, next, nil
}

// ListOwned returns every project owned by the user, newest first.
func (s *Store) ListOwned(ctx context.Context, userID string) ([]*Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+projectColumns+` FROM projects p WHERE p.user_id = $1 ORDER BY p.created_at DESC, p.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing owned projects: %w", err)
	}
	defer rows.Close()

	projects := []*Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning project row: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// Update performs a partial update on the project with the given id.
func (s *Store) Update(ctx context.Context, id string, in UpdateProjectInput) (*Project, error) {
	var setClauses []string
	var args []any
	argIdx := 1

	if in.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argIdx))
		args = append(args, *in.Name)
		argIdx++
	}
	if in.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", argIdx))
		args = append(args, *in.Description)
		argIdx++
	}
	if in.Status != nil {
		setClauses = append(setClauses, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *in.Status)
		argIdx++
	}

	if len(setClauses) == 0 {
		return s.Get(ctx, id)
	}
	setClauses = append(setClauses, "updated_at = now()")

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE projects AS p SET %s WHERE p.id = $%d RETURNING %s`,
		strings.Join(setClauses, ", "), argIdx, projectColumns)

	p, err := scanProject(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("updating project: %w", err)
	}
	return p, nil
}

// Delete removes a project. Members, tasks, notes and invitations cascade.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountOwned returns the number of projects owned by the user.
func (s *Store) CountOwned(ctx context.Context, userID string) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM projects WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting projects: %w", err)
	}
	return n, nil
}

// GetRole looks up a role by name.
func (s *Store) GetRole(ctx context.Context, name string) (*Role, error) {
	r := &Role{}
	err := s.pool.QueryRow(ctx, `SELECT id, name, permissions FROM roles WHERE name = $1`, name).
		Scan(&r.ID, &r.Name, &r.Permissions)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("getting role: %w", err)
	}
	return r, nil
}

// MemberRole returns the role the user holds in the project.
func (s *Store) MemberRole(ctx context.Context, projectID, userID string) (*Role, error) {
	r := &Role{}
	err := s.pool.QueryRow(ctx,
		`SELECT r.id, r.name, r.permissions
		 FROM project_members m JOIN roles r ON r.id = m.role_id
		 WHERE m.project_id = $1 AND m.user_id = $2`,
		projectID, userID,
	).Scan(&r.ID, &r.Name, &r.Permissions)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotMember
		}
		return nil, fmt.Errorf("getting member role: %w", err)
	}
	return r, nil
}

// AddMember adds the user to the project with the named role, or changes the
// role of an existing member.
func (s *Store) AddMember(ctx context.Context, projectID, userID, roleName string) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO project_members (project_id, user_id, role_id)
		 SELECT $1, $2, id FROM roles WHERE name = $3
		 ON CONFLICT (project_id, user_id) DO UPDATE SET role_id = EXCLUDED.role_id`,
		projectID, userID, roleName)
	if err != nil {
		return fmt.Errorf("adding member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRoleNotFound
	}
	return nil
}

// RemoveMember removes the user from the project.
func (s *Store) RemoveMember(ctx context.Context, projectID, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM project_members WHERE project_id = $1 AND user_id = $2`, projectID, userID)
	if err != nil {
		return fmt.Errorf("removing member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotMember
	}
	return nil
}

// ListMembers returns the members of a project, oldest first.
func (s *Store) ListMembers(ctx context.Context, projectID string) ([]*Member, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT m.project_id, m.user_id, u.email, u.name, r.name, m.created_at
		 FROM project_members m
		 JOIN users u ON u.id = m.user_id
		 JOIN roles r ON r.id = m.role_id
		 WHERE m.project_id = $1
		 ORDER BY m.created_at ASC, u.email ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	defer rows.Close()

	members := []*Member{}
	for rows.Next() {
		m := &Member{}
		if err := rows.Scan(&m.ProjectID, &m.UserID, &m.Email, &m.Name, &m.Role, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning member row: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// CountMembers returns the number of members in a project, counting pending
// invitations as seats.
func (s *Store) CountMembers(ctx context.Context, projectID string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM project_members WHERE project_id = $1)
		      + (SELECT COUNT(*) FROM team_invitations
		         WHERE project_id = $1 AND status = 'pending' AND expires_at > now())`,
		projectID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting members: %w", err)
	}
	return n, nil
}
