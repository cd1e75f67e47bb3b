package project

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alecgard/planboard/internal/testdb"
)

func TestStoreIntegration(t *testing.T) {
	db := testdb.Start(t)
	ctx := context.Background()
	store := NewStore(db)

	owner := testdb.InsertUser(t, db, "owner@example.com")
	editor := testdb.InsertUser(t, db, "editor@example.com")

	p, err := store.Create(ctx, owner, CreateProjectInput{Name: "Launch", Description: "Q3"})
	require.NoError(t, err)
	require.Equal(t, StatusActive, p.Status)

	role, err := store.MemberRole(ctx, p.ID, owner)
	require.NoError(t, err)
	require.Equal(t, RoleOwner, role.Name)
	require.True(t, role.HasPermissionTo(PermMembersManage))

	_, err = store.MemberRole(ctx, p.ID, editor)
	require.ErrorIs(t, err, ErrNotMember)

	require.NoError(t, store.AddMember(ctx, p.ID, editor, RoleViewer))
	require.NoError(t, store.AddMember(ctx, p.ID, editor, RoleEditor))
	role, err = store.MemberRole(ctx, p.ID, editor)
	require.NoError(t, err)
	require.Equal(t, RoleEditor, role.Name)

	require.ErrorIs(t, store.AddMember(ctx, p.ID, editor, "nope"), ErrRoleNotFound)

	members, err := store.ListMembers(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)

	testdb.Exec(t, db,
		`INSERT INTO team_invitations (project_id, inviter_id, email, token_hash) VALUES ($1, $2, 'x@example.com', 'h1')`,
		p.ID, owner)
	seats, err := store.CountMembers(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3), seats)

	// The editor sees the project through membership.
	list, _, err := store.ListForUser(ctx, editor, ListParams{})
	require.NoError(t, err)
	require.Len(t, list, 1)

	for i := 0; i < 3; i++ {
		_, err := store.Create(ctx, owner, CreateProjectInput{Name: fmt.Sprintf("P%d", i)})
		require.NoError(t, err)
	}
	n, err := store.CountOwned(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, int64(4), n)

	page, next, err := store.ListForUser(ctx, owner, ListParams{Limit: 3})
	require.NoError(t, err)
	require.Len(t, page, 3)
	require.NotEmpty(t, next)
	page, next, err = store.ListForUser(ctx, owner, ListParams{Limit: 3, Cursor: next})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Empty(t, next)

	archived := StatusArchived
	updated, err := store.Update(ctx, p.ID, UpdateProjectInput{Status: &archived})
	require.NoError(t, err)
	require.Equal(t, StatusArchived, updated.Status)
	require.True(t, updated.UpdatedAt.After(p.UpdatedAt) || updated.UpdatedAt.Equal(p.UpdatedAt))

	require.NoError(t, store.RemoveMember(ctx, p.ID, editor))
	require.ErrorIs(t, store.RemoveMember(ctx, p.ID, editor), ErrNotMember)

	require.NoError(t, store.Delete(ctx, p.ID))
	_, err = store.Get(ctx, p.ID)
	require.ErrorIs(t, err, ErrNotFound)
}
