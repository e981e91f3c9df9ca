package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/farhan/payroute/internal/models"
)

func setupTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { store.Close() })
	return store
}

func seedMerchant(t *testing.T, store *SQLiteStorage, id string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, store.CreateMerchant(context.Background(), &models.Merchant{
		ID:        id,
		Name:      "Test Merchant " + id,
		APIKey:    "sk_" + id,
		CreatedAt: now,
		UpdatedAt: now,
	}))
}

func seedProvider(t *testing.T, store *SQLiteStorage, id, merchantID string, dailyCap, monthlyCap *int64) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, store.CreateProvider(context.Background(), &models.ProviderAccount{
		ID:         id,
		MerchantID: merchantID,
		Name:       id,
		Kind:       "test",
		PublicKey:  "pk_" + id,
		SecretKey:  "sk_" + id,
		Enabled:    true,
		DailyCap:   dailyCap,
		MonthlyCap: monthlyCap,
		CreatedAt:  now,
		UpdatedAt:  now,
	}))
}

func TestMerchantLifecycle(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	seedMerchant(t, store, "mch_1")

	m, err := store.GetMerchant(ctx, "mch_1")
	require.NoError(t, err)
	require.NotNil(t, m)
	require.Equal(t, "Test Merchant mch_1", m.Name)

	byKey, err := store.GetMerchantByAPIKey(ctx, "sk_mch_1")
	require.NoError(t, err)
	require.NotNil(t, byKey)
	require.Equal(t, "mch_1", byKey.ID)

	require.NoError(t, store.RotateMerchantKey(ctx, "mch_1", "sk_new"))
	stale, err := store.GetMerchantByAPIKey(ctx, "sk_mch_1")
	require.NoError(t, err)
	require.Nil(t, stale)
	rotated, err := store.GetMerchantByAPIKey(ctx, "sk_new")
	require.NoError(t, err)
	require.NotNil(t, rotated)

	missing, err := store.GetMerchant(ctx, "mch_missing")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestProviderCapsRoundTrip(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	seedMerchant(t, store, "mch_1")

	daily := int64(100000)
	seedProvider(t, store, "acct_capped", "mch_1", &daily, nil)
	seedProvider(t, store, "acct_open", "mch_1", nil, nil)

	capped, err := store.GetProvider(ctx, "acct_capped")
	require.NoError(t, err)
	require.NotNil(t, capped.DailyCap)
	require.Equal(t, int64(100000), *capped.DailyCap)
	require.Nil(t, capped.MonthlyCap)

	open, err := store.GetProvider(ctx, "acct_open")
	require.NoError(t, err)
	require.Nil(t, open.DailyCap)
	require.Nil(t, open.MonthlyCap)
}

func TestListLinkedProvidersFiltersAndOrders(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	seedMerchant(t, store, "mch_1")
	seedMerchant(t, store, "mch_2")

	seedProvider(t, store, "acct_b", "mch_1", nil, nil)
	seedProvider(t, store, "acct_a", "mch_1", nil, nil)
	seedProvider(t, store, "acct_disabled", "mch_1", nil, nil)
	seedProvider(t, store, "acct_archived", "mch_1", nil, nil)
	seedProvider(t, store, "acct_other", "mch_2", nil, nil)

	require.NoError(t, store.ToggleProvider(ctx, "acct_disabled", false))
	require.NoError(t, store.ArchiveProvider(ctx, "acct_archived"))

	linked, err := store.ListLinkedProviders(ctx, "mch_1")
	require.NoError(t, err)
	require.Len(t, linked, 2)
	require.Equal(t, "acct_a", linked[0].ID)
	require.Equal(t, "acct_b", linked[1].ID)

	// Archiving also disables; the full list still shows the record.
	all, err := store.ListProviders(ctx, "mch_1")
	require.NoError(t, err)
	require.Len(t, all, 4)
}

func TestUpdateProviderHealth(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	seedMerchant(t, store, "mch_1")
	seedProvider(t, store, "acct_a", "mch_1", nil, nil)

	checkedAt := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpdateProviderHealth(ctx, "acct_a", true, checkedAt))

	p, err := store.GetProvider(ctx, "acct_a")
	require.NoError(t, err)
	require.True(t, p.AcceptingCharges)
	require.NotNil(t, p.HealthCheckedAt)
	require.True(t, p.HealthCheckedAt.Equal(checkedAt))
}

func TestPolicyUpsertRoundTrip(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	seedMerchant(t, store, "mch_1")

	absent, err := store.GetPolicy(ctx, "mch_1")
	require.NoError(t, err)
	require.Nil(t, absent)

	require.NoError(t, store.PutPolicy(ctx, &models.RoutingPolicy{
		MerchantID:       "mch_1",
		Mode:             models.ModeManual,
		FallbackEnabled:  true,
		MaxRetries:       3,
		FallbackPriority: []string{"acct_b", "acct_a"},
		Weights:          map[string]float64{"acct_a": 2.5, "acct_b": 1},
	}))

	p, err := store.GetPolicy(ctx, "mch_1")
	require.NoError(t, err)
	require.Equal(t, models.ModeManual, p.Mode)
	require.Equal(t, 3, p.MaxRetries)
	require.Equal(t, []string{"acct_b", "acct_a"}, p.FallbackPriority)
	require.Equal(t, 2.5, p.Weights["acct_a"])

	// Second Put replaces the row in place.
	require.NoError(t, store.PutPolicy(ctx, &models.RoutingPolicy{
		MerchantID: "mch_1",
		Mode:       models.ModeAutomatic,
		MaxRetries: 0,
	}))
	p, err = store.GetPolicy(ctx, "mch_1")
	require.NoError(t, err)
	require.Equal(t, models.ModeAutomatic, p.Mode)
	require.False(t, p.FallbackEnabled)
	require.Empty(t, p.FallbackPriority)
}

func TestCheckoutAssignment(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	seedMerchant(t, store, "mch_1")

	now := time.Now().UTC()
	require.NoError(t, store.CreateCheckout(ctx, &models.Checkout{
		ID:         "chk_1",
		MerchantID: "mch_1",
		Amount:     1000,
		Currency:   "BRL",
		ExpiresAt:  now.Add(24 * time.Hour),
		CreatedAt:  now,
		UpdatedAt:  now,
	}))

	c, err := store.GetCheckout(ctx, "chk_1")
	require.NoError(t, err)
	require.Empty(t, c.AssignedProviderID)

	require.NoError(t, store.AssignCheckoutProvider(ctx, "chk_1", "acct_a"))
	c, err = store.GetCheckout(ctx, "chk_1")
	require.NoError(t, err)
	require.Equal(t, "acct_a", c.AssignedProviderID)

	missing, err := store.GetCheckout(ctx, "chk_missing")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func seedAttemptRow(t *testing.T, store *SQLiteStorage, id, checkoutID, providerID string, status models.AttemptStatus, amountRef int64, at time.Time, n int) {
	t.Helper()
	require.NoError(t, store.CreateAttempt(context.Background(), &models.Attempt{
		ID:            id,
		MerchantID:    "mch_1",
		CheckoutID:    checkoutID,
		ProviderID:    providerID,
		Amount:        amountRef,
		Currency:      "BRL",
		AmountRef:     amountRef,
		Status:        status,
		AttemptNumber: n,
		CreatedAt:     at,
		UpdatedAt:     at,
	}))
}

func TestSumSuccessfulAmountWindow(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	seedMerchant(t, store, "mch_1")
	seedProvider(t, store, "acct_a", "mch_1", nil, nil)
	seedProvider(t, store, "acct_b", "mch_1", nil, nil)

	from := time.Date(2025, 1, 15, 6, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 16, 6, 0, 0, 0, time.UTC)

	seedAttemptRow(t, store, "att_1", "chk_1", "acct_a", models.AttemptSuccess, 100, from, 1)
	seedAttemptRow(t, store, "att_2", "chk_2", "acct_a", models.AttemptSuccess, 200, from.Add(12*time.Hour), 1)
	// At the exclusive upper bound.
	seedAttemptRow(t, store, "att_3", "chk_3", "acct_a", models.AttemptSuccess, 400, to, 1)
	// Before the window.
	seedAttemptRow(t, store, "att_4", "chk_4", "acct_a", models.AttemptSuccess, 800, from.Add(-time.Second), 1)
	// Failed and other-provider attempts never count.
	seedAttemptRow(t, store, "att_5", "chk_5", "acct_a", models.AttemptFailed, 1600, from.Add(time.Hour), 1)
	seedAttemptRow(t, store, "att_6", "chk_6", "acct_b", models.AttemptSuccess, 3200, from.Add(time.Hour), 1)

	total, err := store.SumSuccessfulAmount(ctx, "acct_a", from, to)
	require.NoError(t, err)
	require.Equal(t, int64(300), total)

	empty, err := store.SumSuccessfulAmount(ctx, "acct_missing", from, to)
	require.NoError(t, err)
	require.Zero(t, empty)
}

func TestRecentAttemptsByCheckoutOrdering(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	seedMerchant(t, store, "mch_1")
	seedProvider(t, store, "acct_a", "mch_1", nil, nil)

	base := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	seedAttemptRow(t, store, "att_1", "chk_1", "acct_a", models.AttemptFailed, 100, base, 1)
	seedAttemptRow(t, store, "att_2", "chk_1", "acct_a", models.AttemptFailed, 100, base.Add(time.Minute), 2)
	seedAttemptRow(t, store, "att_3", "chk_1", "acct_a", models.AttemptSuccess, 100, base.Add(2*time.Minute), 3)
	seedAttemptRow(t, store, "att_other", "chk_2", "acct_a", models.AttemptFailed, 100, base.Add(3*time.Minute), 1)

	recent, err := store.RecentAttemptsByCheckout(ctx, "chk_1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "att_3", recent[0].ID)
	require.Equal(t, "att_2", recent[1].ID)

	full, err := store.ListAttemptsByCheckout(ctx, "chk_1")
	require.NoError(t, err)
	require.Len(t, full, 3)
	require.Equal(t, "att_1", full[0].ID)
}

func TestUpdateAttemptStatus(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	seedMerchant(t, store, "mch_1")
	seedProvider(t, store, "acct_a", "mch_1", nil, nil)

	at := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	seedAttemptRow(t, store, "att_1", "chk_1", "acct_a", models.AttemptPending, 100, at, 1)

	require.NoError(t, store.UpdateAttemptStatus(ctx, "att_1", models.AttemptSuccess, "ch_ext_123", ""))
	attempts, err := store.ListAttemptsByCheckout(ctx, "chk_1")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	require.Equal(t, models.AttemptSuccess, attempts[0].Status)
	require.Equal(t, "ch_ext_123", attempts[0].ProviderRef)
}

func TestGetStats(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	seedMerchant(t, store, "mch_1")
	seedProvider(t, store, "acct_a", "mch_1", nil, nil)

	now := time.Now().UTC()
	require.NoError(t, store.CreateCheckout(ctx, &models.Checkout{
		ID: "chk_1", MerchantID: "mch_1", Amount: 100, Currency: "BRL",
		ExpiresAt: now.Add(time.Hour), CreatedAt: now, UpdatedAt: now,
	}))
	seedAttemptRow(t, store, "att_1", "chk_1", "acct_a", models.AttemptSuccess, 100, now, 1)
	seedAttemptRow(t, store, "att_2", "chk_1", "acct_a", models.AttemptFailed, 100, now, 2)

	stats, err := store.GetStats(ctx, "mch_1")
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.TotalCheckouts)
	require.Equal(t, int64(2), stats.TotalAttempts)
	require.Equal(t, int64(1), stats.SuccessCount)
	require.Equal(t, int64(1), stats.FailedCount)
	require.Equal(t, int64(100), stats.SuccessVolumeRef)
	require.Equal(t, int64(1), stats.ActiveProviders)
	require.InDelta(t, 50.0, stats.SuccessRate, 0.01)
}
