package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/therapy-booking/internal/errors"
	"github.com/p-blackswan/therapy-booking/internal/models"
	"github.com/p-blackswan/therapy-booking/internal/partneraccess"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := New(dbPath, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedUser(t *testing.T, s *Store, id string) {
	t.Helper()
	require.NoError(t, s.SaveUser(context.Background(), &models.User{ID: id, Name: "Sam", Email: "sam@example.com"}))
}

func TestNew_CreatesDB(t *testing.T) {
	store := newTestStore(t)

	tables := []string{"users", "partner_accesses", "analytics_dead_letters", "meta"}
	for _, table := range tables {
		var count int
		err := store.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s should exist", table)
	}

	var version string
	require.NoError(t, store.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version))
	assert.Equal(t, "2", version)
	assert.NoError(t, store.PingContext(context.Background()))
}

func TestNew_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")
	s1, err := New(dbPath, zerolog.Nop())
	require.NoError(t, err)
	seedUser(t, s1, "user-1")
	require.NoError(t, s1.Close())

	s2, err := New(dbPath, zerolog.Nop())
	require.NoError(t, err)
	defer s2.Close()

	u, err := s2.GetUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "Sam", u.Name)
}

func TestUser_CRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	missing, err := store.GetUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	created := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveUser(ctx, &models.User{ID: "user-1", Name: "Sam", Email: "sam@example.com", Locale: "es", CreatedAt: created}))

	u, err := store.GetUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "sam@example.com", u.Email)
	assert.Equal(t, "es", u.Locale)
	assert.True(t, created.Equal(u.CreatedAt))

	require.NoError(t, store.SaveUser(ctx, &models.User{ID: "user-1", Name: "Samira", Email: "samira@example.com"}))
	u, err = store.GetUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Samira", u.Name)
	assert.True(t, created.Equal(u.CreatedAt), "created_at is not overwritten")
}

func TestPartnerAccesses_ReplaceAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "user-1")

	granted := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	accesses := []*partneraccess.PartnerAccess{
		{ID: "pa-1", Partner: &partneraccess.Partner{ID: "p-1", Name: "Acme", Logo: "/logos/acme.svg"}, FeatureTherapy: true, TherapySessionsRedeemed: 2, CreatedAt: &granted},
		{ID: "pa-2", FeatureTherapy: true, TherapySessionsRemaining: 4},
		nil,
		{ID: "pa-3", Partner: &partneraccess.Partner{Name: ""}, FeatureLiveChat: true},
	}

	version, err := store.ReplacePartnerAccesses(ctx, "user-1", accesses)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	got, gotVersion, err := store.ListPartnerAccesses(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), gotVersion)
	require.Len(t, got, 3)

	assert.Equal(t, "pa-1", got[0].ID)
	require.NotNil(t, got[0].Partner)
	assert.Equal(t, "Acme", got[0].Partner.Name)
	assert.Equal(t, "/logos/acme.svg", got[0].Partner.Logo)
	assert.True(t, got[0].FeatureTherapy)
	assert.Equal(t, 2, got[0].TherapySessionsRedeemed)
	require.NotNil(t, got[0].CreatedAt)
	assert.True(t, granted.Equal(*got[0].CreatedAt))

	assert.Equal(t, "pa-2", got[1].ID)
	assert.Nil(t, got[1].Partner, "nil partner round-trips as nil")
	assert.Equal(t, 4, got[1].TherapySessionsRemaining)
	assert.Nil(t, got[1].CreatedAt)

	require.NotNil(t, got[2].Partner, "empty-named partner round-trips as non-nil")
	assert.Equal(t, "", got[2].Partner.Name)
	assert.True(t, got[2].FeatureLiveChat)
}

func TestPartnerAccesses_ReplaceBumpsVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "user-1")

	_, err := store.ReplacePartnerAccesses(ctx, "user-1", []*partneraccess.PartnerAccess{{ID: "a"}, {ID: "b"}})
	require.NoError(t, err)
	version, err := store.ReplacePartnerAccesses(ctx, "user-1", []*partneraccess.PartnerAccess{{ID: "c"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	got, _, err := store.ListPartnerAccesses(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)

	// Saving the user again keeps the version.
	seedUser(t, store, "user-1")
	_, v, err := store.ListPartnerAccesses(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestPartnerAccesses_UnknownUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.ReplacePartnerAccesses(ctx, "ghost", nil)
	assert.ErrorIs(t, err, perrors.ErrNotFound)

	_, _, err = store.ListPartnerAccesses(ctx, "ghost")
	assert.ErrorIs(t, err, perrors.ErrNotFound)
}

func TestPartnerAccesses_EmptySnapshot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "user-1")

	got, version, err := store.ListPartnerAccesses(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), version)
	assert.Empty(t, got)
}

func TestDeadLetter_CRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	dl := &DeadLetter{
		ID:          "dl-1",
		EventName:   "THERAPY_BOOKING_VIEWED",
		Payload:     `{"name":"THERAPY_BOOKING_VIEWED"}`,
		Error:       "status 503",
		NextRetryAt: time.Now().Add(-time.Second).UnixMilli(),
	}
	require.NoError(t, store.SaveDeadLetter(ctx, dl))

	future := &DeadLetter{ID: "dl-2", EventName: "X", Payload: "{}", Error: "e", NextRetryAt: time.Now().Add(time.Hour).UnixMilli()}
	require.NoError(t, store.SaveDeadLetter(ctx, future))

	retryable, err := store.ListRetryable(ctx, 10)
	require.NoError(t, err)
	require.Len(t, retryable, 1)
	assert.Equal(t, "dl-1", retryable[0].ID)
	assert.Equal(t, "THERAPY_BOOKING_VIEWED", retryable[0].EventName)

	require.NoError(t, store.IncrementRetry(ctx, "dl-1", time.Now().Add(-time.Millisecond).UnixMilli(), "status 502"))
	retryable, err = store.ListRetryable(ctx, 10)
	require.NoError(t, err)
	require.Len(t, retryable, 1)
	assert.Equal(t, 1, retryable[0].RetryCount)
	assert.Equal(t, "status 502", retryable[0].Error)

	require.NoError(t, store.ResolveDeadLetter(ctx, "dl-1"))
	retryable, err = store.ListRetryable(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, retryable)

	assert.Error(t, store.ResolveDeadLetter(ctx, "missing"))
	assert.Error(t, store.IncrementRetry(ctx, "missing", 0, ""))
}

func TestDeadLetter_GiveUp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveDeadLetter(ctx, &DeadLetter{ID: "dl-1", EventName: "X", Payload: "{}", Error: "e", NextRetryAt: 1}))
	require.NoError(t, store.IncrementRetry(ctx, "dl-1", 0, "final"))

	retryable, err := store.ListRetryable(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, retryable)
}

func TestRetention(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-40 * 24 * time.Hour).UnixMilli()
	require.NoError(t, store.SaveDeadLetter(ctx, &DeadLetter{ID: "abandoned", EventName: "X", Payload: "{}", Error: "e", CreatedAt: old}))
	require.NoError(t, store.SaveDeadLetter(ctx, &DeadLetter{ID: "resolved", EventName: "X", Payload: "{}", Error: "e", CreatedAt: old, ResolvedAt: old}))
	require.NoError(t, store.SaveDeadLetter(ctx, &DeadLetter{ID: "fresh", EventName: "X", Payload: "{}", Error: "e"}))

	removed, err := store.RunRetention(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	var count int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM analytics_dead_letters").Scan(&count))
	assert.Equal(t, 1, count)
}
