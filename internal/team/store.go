package team

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when an invitation does not exist.
var ErrNotFound = errors.New("invitation not found")

// Store provides database operations for team invitations.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const invitationColumns = `id, project_id, inviter_id, email, role, status, expires_at, responded_at, created_at`

func scanInvitation(row pgx.Row) (*Invitation, error) {
	var inv Invitation
	err := row.Scan(&inv.ID, &inv.ProjectID, &inv.InviterID, &inv.Email, &inv.Role, &inv.Status,
		&inv.ExpiresAt, &inv.RespondedAt, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// Create stores a pending invitation under the given token hash.
func (s *Store) Create(ctx context.Context, projectID, inviterID string, in CreateInvitationInput, tokenHash string, expiresAt time.Time) (*Invitation, error) {
	inv, err := scanInvitation(s.pool.QueryRow(ctx,
		`INSERT INTO team_invitations (project_id, inviter_id, email, role, token_hash, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+invitationColumns,
		projectID, inviterID, in.Email, in.Role, tokenHash, expiresAt,
	))
	if err != nil {
		return nil, fmt.Errorf("creating invitation: %w", err)
	}
	return inv, nil
}

func (s *Store) GetByTokenHash(ctx context.Context, tokenHash string) (*Invitation, error) {
	inv, err := scanInvitation(s.pool.QueryRow(ctx,
		`SELECT `+invitationColumns+` FROM team_invitations WHERE token_hash = $1`, tokenHash))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting invitation: %w", err)
	}
	return inv, nil
}

// HasPending reports whether email already holds an unexpired pending
// invitation to the project.
func (s *Store) HasPending(ctx context.Context, projectID, email string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM team_invitations
		 WHERE project_id = $1 AND lower(email) = lower($2) AND status = 'pending' AND expires_at > now())`,
		projectID, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking pending invitation: %w", err)
	}
	return exists, nil
}

func (s *Store) ListForProject(ctx context.Context, projectID string) ([]*Invitation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+invitationColumns+` FROM team_invitations WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing invitations: %w", err)
	}
	defer rows.Close()

	invitations := []*Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning invitation row: %w", err)
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

// Respond moves a pending invitation to status. It returns ErrNotFound when
// the invitation is no longer pending.
func (s *Store) Respond(ctx context.Context, id, status string) (*Invitation, error) {
	inv, err := scanInvitation(s.pool.QueryRow(ctx,
		`UPDATE team_invitations SET status = $2, responded_at = now()
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+invitationColumns,
		id, status,
	))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("updating invitation: %w", err)
	}
	return inv, nil
}

// ExpirePending marks every pending invitation past its expiry as expired.
func (s *Store) ExpirePending(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE team_invitations SET status = 'expired' WHERE status = 'pending' AND expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("expiring invitations: %w", err)
	}
	return tag.RowsAffected(), nil
}
