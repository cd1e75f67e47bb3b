package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/alecgard/planboard/internal/billing"
	"github.com/alecgard/planboard/internal/plan"
	"github.com/alecgard/planboard/internal/testdb"
)

func TestStoreIntegration(t *testing.T) {
	db := testdb.Start(t)
	ctx := context.Background()

	plans := plan.NewStore(db)
	free, err := plans.Create(ctx, plan.CreatePlanInput{Name: "Free", Currency: "usd", BillingPeriod: plan.Monthly})
	require.NoError(t, err)
	pro, err := plans.Create(ctx, plan.CreatePlanInput{
		Name: "Pro", Price: decimal.RequireFromString("30"), Currency: "usd", BillingPeriod: plan.Monthly,
	})
	require.NoError(t, err)
	yearly, err := plans.Create(ctx, plan.CreatePlanInput{
		Name: "Team", Price: decimal.RequireFromString("120"), Currency: "usd", BillingPeriod: plan.Yearly,
	})
	require.NoError(t, err)

	store := NewStore(db)
	userID := testdb.InsertUser(t, db, "alice@example.com")

	acct, err := store.Account(ctx, userID)
	require.NoError(t, err)
	require.Empty(t, acct.PlanID)
	require.Empty(t, acct.StripeCustomerID)

	_, err = store.Account(ctx, "00000000-0000-0000-0000-000000000000")
	require.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, store.SetStripeCustomerID(ctx, userID, "cus_1"))
	require.NoError(t, store.AssignPlan(ctx, userID, free.ID))

	_, err = store.Current(ctx, userID, DefaultName)
	require.ErrorIs(t, err, ErrNotFound)

	// Activation is idempotent on the remote id.
	act := Activation{UserID: userID, PlanID: pro.ID, Remote: billing.RemoteSubscription{
		ID: "sub_1", Status: billing.StatusActive, PriceID: "price_pro", Quantity: 1,
	}}
	sub, err := store.Activate(ctx, act)
	require.NoError(t, err)
	require.Equal(t, billing.StatusActive, sub.StripeStatus)
	require.Equal(t, pro.ID, sub.PlanID)

	again, err := store.Activate(ctx, act)
	require.NoError(t, err)
	require.Equal(t, sub.ID, again.ID)

	acct, err = store.Account(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, pro.ID, acct.PlanID)
	require.Equal(t, "cus_1", acct.StripeCustomerID)

	// A second live subscription violates the one-live index.
	_, err = store.Activate(ctx, Activation{UserID: userID, PlanID: yearly.ID, Remote: billing.RemoteSubscription{
		ID: "sub_2", Status: billing.StatusActive, PriceID: "price_team",
	}})
	require.ErrorIs(t, err, ErrAlreadySubscribed)

	// Replacing cancels the old row in the same transaction.
	replaced, err := store.Activate(ctx, Activation{UserID: userID, PlanID: yearly.ID, Replaces: "sub_1", Remote: billing.RemoteSubscription{
		ID: "sub_2", Status: billing.StatusActive, PriceID: "price_team",
	}})
	require.NoError(t, err)
	require.Equal(t, "sub_2", replaced.StripeID)

	old, err := store.GetByStripeID(ctx, "sub_1")
	require.NoError(t, err)
	require.Equal(t, billing.StatusCanceled, old.StripeStatus)
	require.NotNil(t, old.EndsAt)

	cur, err := store.Current(ctx, userID, DefaultName)
	require.NoError(t, err)
	require.Equal(t, "sub_2", cur.StripeID)

	// Nil times leave stored values untouched.
	trialEnd := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Microsecond)
	updated, err := store.UpdateStatus(ctx, "sub_2", billing.StatusTrialing, &trialEnd, nil)
	require.NoError(t, err)
	require.Equal(t, billing.StatusTrialing, updated.StripeStatus)
	require.NotNil(t, updated.TrialEndsAt)
	require.True(t, trialEnd.Equal(*updated.TrialEndsAt))

	updated, err = store.UpdateStatus(ctx, "sub_2", billing.StatusActive, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, updated.TrialEndsAt)
	require.Nil(t, updated.EndsAt)

	_, err = store.UpdateStatus(ctx, "sub_missing", billing.StatusActive, nil, nil)
	require.ErrorIs(t, err, ErrNotFound)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.ByStatus[billing.StatusActive])
	require.Equal(t, 1, stats.ByStatus[billing.StatusCanceled])
	require.True(t, decimal.NewFromInt(10).Equal(stats.MonthlyRecurringRevenue), "got %s", stats.MonthlyRecurringRevenue)
	require.Len(t, stats.UsersByPlan, 3)
	require.Equal(t, "Free", stats.UsersByPlan[0].PlanName)

	// Demotion ends the subscription and restores the free plan.
	require.NoError(t, store.Demote(ctx, userID, free.ID, "sub_2", StatusExpiredTrial, time.Now()))
	cur, err = store.Current(ctx, userID, DefaultName)
	require.NoError(t, err)
	require.True(t, cur.Terminal())

	acct, err = store.Account(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, free.ID, acct.PlanID)

	// With no live row left a fresh activation is accepted.
	_, err = store.Activate(ctx, Activation{UserID: userID, PlanID: pro.ID, Remote: billing.RemoteSubscription{
		ID: "sub_3", Status: billing.StatusActive, PriceID: "price_pro",
	}})
	require.NoError(t, err)
}
