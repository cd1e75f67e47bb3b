package user

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alecgard/planboard/internal/auth"
	"github.com/alecgard/planboard/internal/testdb"
)

func TestStoreIntegration(t *testing.T) {
	db := testdb.Start(t)
	ctx := context.Background()
	store := NewStore(db)

	u, err := store.Create(ctx, CreateUserInput{Email: "Alice@Example.com", Password: "secret123", Name: "Alice"})
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", u.Email)
	require.Equal(t, auth.RoleUser, u.Role)
	require.Empty(t, u.PlanID)
	require.Equal(t, DefaultPreferences(), u.Preferences)
	require.True(t, CheckPassword(u, "secret123"))

	_, err = store.Create(ctx, CreateUserInput{Email: "alice@example.com", Password: "secret123"})
	require.ErrorIs(t, err, ErrEmailTaken)

	got, err := store.GetByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	_, err = store.GetByID(ctx, "00000000-0000-0000-0000-000000000000")
	require.ErrorIs(t, err, ErrNotFound)

	name := "Alice Smith"
	updated, err := store.Update(ctx, u.ID, UpdateUserInput{Name: &name})
	require.NoError(t, err)
	require.Equal(t, name, updated.Name)

	prefs := DefaultPreferences()
	prefs.WeeklyDigest = true
	require.NoError(t, store.UpdatePreferences(ctx, u.ID, prefs))
	got, err = store.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, got.Preferences.WeeklyDigest)

	// Sessions.
	token, sess, err := store.CreateSession(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, u.ID, sess.UserID)
	require.Equal(t, auth.HashToken(token), sess.TokenHash)

	su, err := store.GetSessionUser(ctx, token)
	require.NoError(t, err)
	require.Equal(t, u.ID, su.ID)

	require.NoError(t, store.DeleteSession(ctx, token))
	_, err = store.GetSessionUser(ctx, token)
	require.ErrorIs(t, err, ErrNotFound)

	testdb.Exec(t, db, `INSERT INTO sessions (token_hash, user_id, expires_at) VALUES ('stale', $1, now() - interval '1 hour')`, u.ID)
	n, err := store.CleanExpiredSessions(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	// Pagination and search.
	for i := 0; i < 4; i++ {
		_, err := store.Create(ctx, CreateUserInput{Email: fmt.Sprintf("user%d@example.com", i), Password: "secret123"})
		require.NoError(t, err)
	}
	page, next, err := store.List(ctx, ListParams{Limit: 3})
	require.NoError(t, err)
	require.Len(t, page, 3)
	require.NotEmpty(t, next)

	rest, next, err := store.List(ctx, ListParams{Limit: 3, Cursor: next})
	require.NoError(t, err)
	require.Len(t, rest, 2)
	require.Empty(t, next)

	found, _, err := store.List(ctx, ListParams{Search: "alice"})
	require.NoError(t, err)
	require.Len(t, found, 1)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, count)

	require.NoError(t, store.Delete(ctx, u.ID))
	require.ErrorIs(t, store.Delete(ctx, u.ID), ErrNotFound)
}
