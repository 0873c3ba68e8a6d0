package cart

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/miravo-storefront/internal/storage"
	pkgerrors "github.com/angelmondragon/miravo-storefront/pkg/errors"
)

type fakeSessions struct {
	current string
	next    []string
	err     error
}

func (f *fakeSessions) GuestSessionID(context.Context) (string, error) {
	return f.current, nil
}

func (f *fakeSessions) NewGuestSessionID(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.current, f.next = f.next[0], f.next[1:]
	return f.current, nil
}

type fakeCheckout struct {
	mu       sync.Mutex
	calls    [][]LineItem
	result   Checkout
	err      error
	observed func()
}

func (f *fakeCheckout) CreateCheckout(_ context.Context, items []LineItem) (Checkout, error) {
	f.mu.Lock()
	f.calls = append(f.calls, items)
	f.mu.Unlock()
	if f.observed != nil {
		f.observed()
	}
	return f.result, f.err
}

func newTestStore(t *testing.T, local storage.Store, sessions *fakeSessions, co *fakeCheckout) *Store {
	t.Helper()
	s, err := NewStore(context.Background(), StoreParams{Local: local, Sessions: sessions, Checkout: co})
	require.NoError(t, err)
	return s
}

func readRecord(t *testing.T, local storage.Store) Record {
	t.Helper()
	raw, ok, err := local.Get(context.Background(), storage.KeyCart)
	require.NoError(t, err)
	require.True(t, ok, "cart record should be persisted")
	var env envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	return env.State
}

func TestNewStoreStartsWithTabSession(t *testing.T) {
	s := newTestStore(t, storage.NewMemory(), &fakeSessions{current: "guest_A"}, &fakeCheckout{})
	snap := s.Snapshot()
	assert.Equal(t, "guest_A", snap.SessionID)
	assert.Empty(t, snap.Items)
}

func TestNewStoreHydratesPersistedRecord(t *testing.T) {
	ctx := context.Background()
	local := storage.NewMemory()
	require.NoError(t, saveRecord(ctx, local, Record{Items: []LineItem{line("V1", 2)}, SessionID: "guest_B"}))

	s := newTestStore(t, local, &fakeSessions{current: "guest_A"}, &fakeCheckout{})
	snap := s.Snapshot()
	assert.Equal(t, "guest_B", snap.SessionID, "persisted session wins until reconciled")
	require.Len(t, snap.Items, 1)
	assert.Equal(t, 2, snap.Items[0].Quantity)
}

func TestNewStoreTreatsMalformedRecordAsEmpty(t *testing.T) {
	local := storage.NewMemory()
	require.NoError(t, local.Set(context.Background(), storage.KeyCart, "{not json"))

	s := newTestStore(t, local, &fakeSessions{current: "guest_A"}, &fakeCheckout{})
	assert.Empty(t, s.Snapshot().Items)
	assert.Equal(t, "guest_A", s.Snapshot().SessionID)
}

func TestMutationsPersistItemsAndSessionOnly(t *testing.T) {
	ctx := context.Background()
	local := storage.NewMemory()
	s := newTestStore(t, local, &fakeSessions{current: "guest_A"}, &fakeCheckout{})

	_, err := s.AddItem(ctx, line("V1", 2))
	require.NoError(t, err)
	s.SetCartID("gid://shopify/Cart/1")
	s.SetCheckoutURL("https://checkout.example/1")
	_, err = s.AddItem(ctx, line("V1", 1))
	require.NoError(t, err)

	rec := readRecord(t, local)
	require.Len(t, rec.Items, 1)
	assert.Equal(t, 3, rec.Items[0].Quantity)
	assert.Equal(t, "guest_A", rec.SessionID)

	raw, _, _ := local.Get(ctx, storage.KeyCart)
	assert.NotContains(t, raw, "checkout.example", "checkout url must not be persisted")
	assert.NotContains(t, raw, "isLoading")
}

func TestAddItemValidates(t *testing.T) {
	s := newTestStore(t, storage.NewMemory(), &fakeSessions{current: "guest_A"}, &fakeCheckout{})
	_, err := s.AddItem(context.Background(), line("", 1))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = s.AddItem(context.Background(), line("V1", 0))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestClearCartKeepsSession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storage.NewMemory(), &fakeSessions{current: "guest_A"}, &fakeCheckout{})
	_, _ = s.AddItem(ctx, line("V1", 1))
	s.SetCheckoutURL("https://checkout.example/1")

	snap := s.ClearCart(ctx)
	assert.Empty(t, snap.Items)
	assert.Empty(t, snap.CheckoutURL)
	assert.Equal(t, "guest_A", snap.SessionID)
}

func TestResetForNewSessionRotatesIdentifier(t *testing.T) {
	ctx := context.Background()
	local := storage.NewMemory()
	sessions := &fakeSessions{current: "guest_A", next: []string{"guest_C"}}
	s := newTestStore(t, local, sessions, &fakeCheckout{})
	_, _ = s.AddItem(ctx, line("V1", 1))

	snap, err := s.ResetForNewSession(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, "guest_A", snap.SessionID)
	assert.Equal(t, "guest_C", snap.SessionID)
	assert.Empty(t, snap.Items)
	assert.Equal(t, "guest_C", readRecord(t, local).SessionID)
}

func TestResetForNewSessionFailureKeepsCart(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storage.NewMemory(), &fakeSessions{current: "guest_A", err: errors.New("tab storage down")}, &fakeCheckout{})
	_, _ = s.AddItem(ctx, line("V1", 1))

	_, err := s.ResetForNewSession(ctx)
	require.Error(t, err)
	assert.Len(t, s.Snapshot().Items, 1)
}

func TestSetSessionIDKeepsItems(t *testing.T) {
	ctx := context.Background()
	local := storage.NewMemory()
	s := newTestStore(t, local, &fakeSessions{current: "guest_A"}, &fakeCheckout{})
	_, _ = s.AddItem(ctx, line("V1", 2))

	snap := s.SetSessionID(ctx, "user_u1")
	assert.Equal(t, "user_u1", snap.SessionID)
	assert.Len(t, snap.Items, 1)
	assert.Equal(t, "user_u1", readRecord(t, local).SessionID)
}

func TestCreateCheckoutEmptyCartSkipsBackend(t *testing.T) {
	co := &fakeCheckout{result: Checkout{URL: "https://checkout.example/1"}}
	s := newTestStore(t, storage.NewMemory(), &fakeSessions{current: "guest_A"}, co)

	got, ok, err := s.CreateCheckout(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, got.URL)
	assert.Empty(t, co.calls)
}

func TestCreateCheckoutScenario(t *testing.T) {
	ctx := context.Background()
	co := &fakeCheckout{result: Checkout{CartID: "gid://shopify/Cart/9", URL: "https://checkout.example/9"}}
	s := newTestStore(t, storage.NewMemory(), &fakeSessions{current: "guest_A"}, co)
	co.observed = func() {
		assert.True(t, s.Snapshot().Loading, "loading must be set during the backend call")
	}

	_, err := s.AddItem(ctx, line("V1", 2))
	require.NoError(t, err)
	_, err = s.AddItem(ctx, line("V1", 1))
	require.NoError(t, err)

	snap := s.Snapshot()
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "V1", snap.Items[0].VariantID)
	assert.Equal(t, 3, snap.Items[0].Quantity)

	got, ok, err := s.CreateCheckout(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://checkout.example/9", got.URL)

	snap = s.Snapshot()
	assert.False(t, snap.Loading)
	assert.Equal(t, "https://checkout.example/9", snap.CheckoutURL)
	assert.Equal(t, "gid://shopify/Cart/9", snap.CartID)
	require.Len(t, co.calls, 1)
	assert.Equal(t, 3, co.calls[0][0].Quantity)
}

func TestCreateCheckoutFailureLeavesCartIntact(t *testing.T) {
	ctx := context.Background()
	backendErr := pkgerrors.New(pkgerrors.CodeDependency, "shopify unavailable")
	co := &fakeCheckout{err: backendErr}
	s := newTestStore(t, storage.NewMemory(), &fakeSessions{current: "guest_A"}, co)
	_, _ = s.AddItem(ctx, line("V1", 2))

	_, ok, err := s.CreateCheckout(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, backendErr)

	snap := s.Snapshot()
	assert.False(t, snap.Loading)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, 2, snap.Items[0].Quantity)
}

func TestCreateCheckoutDropsResultAfterReset(t *testing.T) {
	ctx := context.Background()
	co := &fakeCheckout{result: Checkout{CartID: "gid://shopify/Cart/9", URL: "https://checkout.example/9"}}
	s := newTestStore(t, storage.NewMemory(), &fakeSessions{current: "guest_A", next: []string{"guest_B"}}, co)
	co.observed = func() {
		_, err := s.ResetForNewSession(ctx)
		require.NoError(t, err)
	}
	_, _ = s.AddItem(ctx, line("V1", 1))

	got, ok, err := s.CreateCheckout(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://checkout.example/9", got.URL)

	snap := s.Snapshot()
	assert.Equal(t, "guest_B", snap.SessionID)
	assert.Empty(t, snap.Items)
	assert.Empty(t, snap.CheckoutURL)
	assert.Empty(t, snap.CartID)
	assert.False(t, snap.Loading)
}

func TestCreateCheckoutDropsResultAfterClear(t *testing.T) {
	ctx := context.Background()
	co := &fakeCheckout{result: Checkout{CartID: "gid://shopify/Cart/9", URL: "https://checkout.example/9"}}
	s := newTestStore(t, storage.NewMemory(), &fakeSessions{current: "guest_A"}, co)
	co.observed = func() { s.ClearCart(ctx) }
	_, _ = s.AddItem(ctx, line("V1", 1))

	_, ok, err := s.CreateCheckout(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, s.Snapshot().CheckoutURL)
}

func TestCreateCheckoutRejectsMissingURL(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storage.NewMemory(), &fakeSessions{current: "guest_A"}, &fakeCheckout{})
	_, _ = s.AddItem(ctx, line("V1", 1))

	_, ok, err := s.CreateCheckout(ctx)
	assert.False(t, ok)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.False(t, s.Snapshot().Loading)
}

func TestSnapshotIsDetached(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storage.NewMemory(), &fakeSessions{current: "guest_A"}, &fakeCheckout{})
	_, _ = s.AddItem(ctx, line("V1", 1))

	snap := s.Snapshot()
	snap.Items[0].Quantity = 99
	assert.Equal(t, 1, s.Snapshot().Items[0].Quantity)
}
