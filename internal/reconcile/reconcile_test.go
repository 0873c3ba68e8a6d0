package reconcile

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/miravo-storefront/internal/cart"
	"github.com/angelmondragon/miravo-storefront/internal/identity"
	"github.com/angelmondragon/miravo-storefront/internal/storage"
	"github.com/angelmondragon/miravo-storefront/pkg/metrics"
)

type noCheckout struct{}

func (noCheckout) CreateCheckout(context.Context, []cart.LineItem) (cart.Checkout, error) {
	return cart.Checkout{}, nil
}

type sequence struct {
	ids []string
}

func (s *sequence) NewGuestID() string {
	id := s.ids[0]
	s.ids = s.ids[1:]
	return id
}

func newCart(t *testing.T, local storage.Store, resolver *identity.Resolver) *cart.Store {
	t.Helper()
	store, err := cart.NewStore(context.Background(), cart.StoreParams{
		Local:    local,
		Sessions: resolver,
		Checkout: noCheckout{},
	})
	require.NoError(t, err)
	return store
}

func line(variant string, qty int) cart.LineItem {
	return cart.LineItem{
		VariantID: variant,
		Product:   cart.ProductRef{ID: "prod-" + variant, Title: variant},
		Quantity:  qty,
	}
}

func TestValidateCartSessionResetsStaleCart(t *testing.T) {
	ctx := context.Background()
	local := storage.NewMemory()

	// First tab writes a cart under guest_A.
	firstTab := identity.NewResolver(storage.NewMemory(), &sequence{ids: []string{"guest_A"}})
	first := newCart(t, local, firstTab)
	_, err := first.AddItem(ctx, line("V1", 2))
	require.NoError(t, err)

	// A fresh tab sees the same local record but has no session yet.
	secondTab := identity.NewResolver(storage.NewMemory(), &sequence{ids: []string{"guest_B", "guest_C"}})
	second := newCart(t, local, secondTab)
	require.Equal(t, "guest_A", second.Snapshot().SessionID)

	reg := prometheus.NewRegistry()
	m := metrics.NewStorefront(reg)
	r := New(second, secondTab, nil, m)

	reset, err := r.ValidateCartSession(ctx)
	require.NoError(t, err)
	assert.True(t, reset)

	snap := second.Snapshot()
	assert.Empty(t, snap.Items)
	assert.Equal(t, "guest_C", snap.SessionID)

	tabID, err := secondTab.GuestSessionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "guest_C", tabID)

	families, err := reg.Gather()
	require.NoError(t, err)
	var resets float64
	for _, mf := range families {
		if mf.GetName() == "storefront_session_resets_total" {
			resets = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(1), resets)
}

func TestValidateCartSessionKeepsMatchingCart(t *testing.T) {
	ctx := context.Background()
	local := storage.NewMemory()
	tab := identity.NewResolver(storage.NewMemory(), &sequence{ids: []string{"guest_A"}})
	store := newCart(t, local, tab)
	_, err := store.AddItem(ctx, line("V1", 1))
	require.NoError(t, err)

	reset, err := New(store, tab, nil, nil).ValidateCartSession(ctx)
	require.NoError(t, err)
	assert.False(t, reset)
	assert.Len(t, store.Snapshot().Items, 1)
}

func TestValidateCartSessionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	local := storage.NewMemory()
	tab := identity.NewResolver(storage.NewMemory(), &sequence{ids: []string{"guest_A", "guest_B"}})
	store := newCart(t, local, tab)
	store.SetSessionID(ctx, identity.AuthenticatedSessionID("u1"))

	r := New(store, tab, nil, nil)
	reset, err := r.ValidateCartSession(ctx)
	require.NoError(t, err)
	require.True(t, reset)

	reset, err = r.ValidateCartSession(ctx)
	require.NoError(t, err)
	assert.False(t, reset)
}
