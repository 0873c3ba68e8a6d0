package wishlist

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/miravo-storefront/internal/identity"
	"github.com/angelmondragon/miravo-storefront/internal/storage"
)

type fixture struct {
	local *storage.Memory
	tab   *storage.Memory
	repo  *Repository
	ids   *identity.Resolver
}

func newFixture() *fixture {
	local := storage.NewMemory()
	tab := storage.NewMemory()
	return &fixture{
		local: local,
		tab:   tab,
		repo:  NewRepository(local),
		ids:   identity.NewResolver(tab, identity.GeneratorFunc(func() string { return "guest_G" })),
	}
}

func (f *fixture) store(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(context.Background(), StoreParams{
		Repo:   f.repo,
		Guests: f.ids,
		Now:    func() time.Time { return time.UnixMilli(1000) },
	})
	require.NoError(t, err)
	return s
}

func product(id string) Product {
	return Product{ID: id, Handle: "handle-" + id, Title: "Product " + id}
}

func productIDs(w Wishlist) []string {
	ids := make([]string, 0, len(w.Items))
	for _, item := range w.Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

func TestAddItemIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newFixture().store(t)

	_, err := s.AddItem(ctx, product("P1"))
	require.NoError(t, err)
	w, err := s.AddItem(ctx, product("P1"))
	require.NoError(t, err)

	require.Len(t, w.Items, 1)
	assert.Equal(t, "handle-P1", w.Items[0].ProductHandle)
	assert.Equal(t, int64(1000), w.Items[0].AddedAt)
	assert.True(t, s.IsInWishlist("P1"))
	assert.False(t, s.IsInWishlist("P2"))
}

func TestGuestScopeIsCreatedLazily(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	s := f.store(t)

	s.RemoveItem(ctx, "P1")
	s.ClearWishlist(ctx)
	assert.Equal(t, 0, f.tab.Len(), "no guest id before the first add")

	_, err := s.AddItem(ctx, product("P1"))
	require.NoError(t, err)

	items, found, err := f.repo.Load(ctx, GuestScope("guest_G"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"P1"}, productIDs(Wishlist{Items: items}))
}

func TestRemoveAndClearPersistCurrentScope(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	s := f.store(t)
	_, _ = s.AddItem(ctx, product("P1"))
	_, _ = s.AddItem(ctx, product("P2"))

	w := s.RemoveItem(ctx, "P1")
	assert.Equal(t, []string{"P2"}, productIDs(w))
	items, _, _ := f.repo.Load(ctx, GuestScope("guest_G"))
	assert.Equal(t, []string{"P2"}, productIDs(Wishlist{Items: items}))

	w = s.ClearWishlist(ctx)
	assert.Empty(t, w.Items)
	items, found, _ := f.repo.Load(ctx, GuestScope("guest_G"))
	assert.True(t, found)
	assert.Empty(t, items)
}

func TestSetUserIDLoadsUserScopeWithoutMerging(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	require.NoError(t, f.repo.Save(ctx, UserScope("u1"), []Item{{ProductID: "P9"}}))
	s := f.store(t)
	_, _ = s.AddItem(ctx, product("P1"))

	w, err := s.SetUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", w.UserID)
	assert.Equal(t, []string{"P9"}, productIDs(w))

	// Same id again is a no-op.
	_, _ = s.AddItem(ctx, product("P2"))
	w, err = s.SetUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"P9", "P2"}, productIDs(w))
}

func TestSetUserIDUnknownUserStartsEmpty(t *testing.T) {
	ctx := context.Background()
	s := newFixture().store(t)
	_, _ = s.AddItem(ctx, product("P1"))

	w, err := s.SetUserID(ctx, "fresh")
	require.NoError(t, err)
	assert.Empty(t, w.Items)
}

func TestSetUserIDMalformedRecordLoadsEmpty(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	require.NoError(t, f.local.Set(ctx, UserScope("u1").Key(), "{{{"))
	s := f.store(t)

	w, err := s.SetUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, w.Items)
}

func TestSignOutKeepsUserRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	s := f.store(t)
	_, _ = s.SetUserID(ctx, "u1")
	_, _ = s.AddItem(ctx, product("P3"))

	w, err := s.SetUserID(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, w.Items)
	assert.Empty(t, w.UserID)

	items, found, err := f.repo.Load(ctx, UserScope("u1"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"P3"}, productIDs(Wishlist{Items: items}))

	// Signing back in restores the saved items.
	w, _ = s.SetUserID(ctx, "u1")
	assert.Equal(t, []string{"P3"}, productIDs(w))
}

func TestSyncFromGuestScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	require.NoError(t, f.repo.Save(ctx, UserScope("u1"), []Item{{ProductID: "P2"}, {ProductID: "P3"}}))
	s := f.store(t)
	_, _ = s.AddItem(ctx, product("P1"))
	_, _ = s.AddItem(ctx, product("P2"))

	_, err := s.SetUserID(ctx, "u1")
	require.NoError(t, err)
	w, err := s.SyncFromGuest(ctx)
	require.NoError(t, err)

	if diff := cmp.Diff([]string{"P2", "P3", "P1"}, productIDs(w)); diff != "" {
		t.Fatalf("unexpected merge order (-want +got):\n%s", diff)
	}
	_, found, err := f.repo.Load(ctx, GuestScope("guest_G"))
	require.NoError(t, err)
	assert.False(t, found, "guest record must be removed after merge")

	saved, _, _ := f.repo.Load(ctx, UserScope("u1"))
	assert.Equal(t, []string{"P2", "P3", "P1"}, productIDs(Wishlist{Items: saved}))
}

func TestSyncFromGuestNoops(t *testing.T) {
	ctx := context.Background()

	t.Run("no user", func(t *testing.T) {
		f := newFixture()
		s := f.store(t)
		_, _ = s.AddItem(ctx, product("P1"))
		w, err := s.SyncFromGuest(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"P1"}, productIDs(w))
		_, found, _ := f.repo.Load(ctx, GuestScope("guest_G"))
		assert.True(t, found, "guest data must survive without a user")
	})

	t.Run("no guest id", func(t *testing.T) {
		f := newFixture()
		s := f.store(t)
		_, _ = s.SetUserID(ctx, "u1")
		w, err := s.SyncFromGuest(ctx)
		require.NoError(t, err)
		assert.Empty(t, w.Items)
		assert.Equal(t, 0, f.tab.Len(), "sync must not mint a guest id")
	})

	t.Run("guest id without record", func(t *testing.T) {
		f := newFixture()
		_, err := f.ids.GuestWishlistID(ctx)
		require.NoError(t, err)
		s := f.store(t)
		_, _ = s.SetUserID(ctx, "u1")
		w, err := s.SyncFromGuest(ctx)
		require.NoError(t, err)
		assert.Empty(t, w.Items)
	})
}

func TestNewStoreRehydratesGuestScope(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	first := f.store(t)
	_, _ = first.AddItem(ctx, product("P1"))

	second := f.store(t)
	assert.Equal(t, []string{"P1"}, productIDs(second.Snapshot()))
}

func TestScopeKeys(t *testing.T) {
	assert.Equal(t, "miravo-wishlist-u1", UserScope("u1").Key())
	assert.Equal(t, "miravo-wishlist-guest_G", GuestScope("guest_G").Key())
	assert.True(t, GuestScope("g").IsGuest())
	assert.False(t, UserScope("u").IsGuest())
}
