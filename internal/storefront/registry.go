package storefront

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"

	"github.com/angelmondragon/miravo-storefront/internal/auth"
	"github.com/angelmondragon/miravo-storefront/internal/authbridge"
	"github.com/angelmondragon/miravo-storefront/internal/cart"
	"github.com/angelmondragon/miravo-storefront/internal/identity"
	"github.com/angelmondragon/miravo-storefront/internal/reconcile"
	"github.com/angelmondragon/miravo-storefront/internal/storage"
	"github.com/angelmondragon/miravo-storefront/internal/wishlist"
	"github.com/angelmondragon/miravo-storefront/pkg/config"
	"github.com/angelmondragon/miravo-storefront/pkg/logger"
	"github.com/angelmondragon/miravo-storefront/pkg/metrics"
)

// ProviderFactory builds the auth provider for a device partition.
type ProviderFactory func(ctx context.Context, local storage.Store) (auth.Provider, error)

type RegistryParams struct {
	Config    config.StorefrontConfig
	Backend   storage.Backend
	Checkout  cart.CheckoutCreator
	Profiles  authbridge.Profiles
	Providers ProviderFactory
	Guests    identity.Generator
	Logger    *logger.Logger
	Metrics   *metrics.Storefront
}

// Registry caches live runtimes per device and tab. The least recently used
// runtime is closed when the cache is full; its state stays in storage.
type Registry struct {
	params RegistryParams
	logg   *logger.Logger
	cache  *lru.Cache[string, *Client]
	group  singleflight.Group
}

func NewRegistry(params RegistryParams) (*Registry, error) {
	if params.Backend == nil || params.Checkout == nil || params.Providers == nil {
		return nil, errors.New("storefront: backend, checkout and provider factory required")
	}
	size := params.Config.ClientCacheSize
	if size <= 0 {
		size = 1024
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	r := &Registry{params: params, logg: logg}
	cache, err := lru.NewWithEvict(size, r.onEvict)
	if err != nil {
		return nil, fmt.Errorf("storefront: client cache: %w", err)
	}
	r.cache = cache
	return r, nil
}

// Client returns the runtime for the tab, creating it on first use.
func (r *Registry) Client(ctx context.Context, deviceID, tabID string) (*Client, error) {
	if err := ValidateClientIDs(deviceID, tabID); err != nil {
		return nil, err
	}
	key := cacheKey(deviceID, tabID)
	if c, ok := r.cache.Get(key); ok {
		return c, nil
	}
	v, err, _ := r.group.Do(key, func() (any, error) {
		if c, ok := r.cache.Get(key); ok {
			return c, nil
		}
		c, err := r.build(ctx, deviceID, tabID)
		if err != nil {
			return nil, err
		}
		r.cache.Add(key, c)
		r.params.Metrics.SetActiveClients(r.cache.Len())
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Client), nil
}

func (r *Registry) build(ctx context.Context, deviceID, tabID string) (*Client, error) {
	ctx = r.logg.WithClient(context.WithoutCancel(ctx), deviceID, tabID)
	local := r.params.Backend.Local(deviceID)
	tab := r.params.Backend.Tab(deviceID, tabID)

	ids := identity.NewResolver(tab, r.params.Guests)
	cartStore, err := cart.NewStore(ctx, cart.StoreParams{
		Local:    local,
		Sessions: ids,
		Checkout: r.params.Checkout,
		Logger:   r.logg,
		Metrics:  r.params.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("storefront: cart: %w", err)
	}
	if _, err := reconcile.New(cartStore, ids, r.logg, r.params.Metrics).ValidateCartSession(ctx); err != nil {
		return nil, fmt.Errorf("storefront: reconcile cart: %w", err)
	}

	wishlistStore, err := wishlist.NewStore(ctx, wishlist.StoreParams{
		Repo:    wishlist.NewRepository(local),
		Guests:  ids,
		Logger:  r.logg,
		Metrics: r.params.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("storefront: wishlist: %w", err)
	}

	provider, err := r.params.Providers(ctx, local)
	if err != nil {
		return nil, fmt.Errorf("storefront: auth provider: %w", err)
	}
	dispatcher := authbridge.NewDispatcher(r.params.Config.DispatchQueueSize, r.logg)
	bridge, err := authbridge.New(authbridge.Params{
		Provider:   provider,
		Cart:       cartStore,
		Wishlist:   wishlistStore,
		Profiles:   r.params.Profiles,
		Dispatcher: dispatcher,
		Logger:     r.logg,
		Metrics:    r.params.Metrics,
	})
	if err != nil {
		dispatcher.Close()
		return nil, err
	}
	if err := bridge.Start(ctx); err != nil {
		// The runtime stays usable as a guest.
		r.logg.Error(ctx, "storefront.auth.start_failed", err)
	}

	r.logg.Debug(ctx, "storefront.client.created")
	return &Client{
		DeviceID:   deviceID,
		TabID:      tabID,
		Identity:   ids,
		Cart:       cartStore,
		Wishlist:   wishlistStore,
		Auth:       provider,
		Bridge:     bridge,
		dispatcher: dispatcher,
	}, nil
}

func (r *Registry) onEvict(key string, c *Client) {
	if err := c.Close(context.Background()); err != nil {
		r.logg.Error(context.Background(), "storefront.client.close_failed", err)
	}
	r.params.Metrics.SetActiveClients(r.cache.Len())
}

// Len reports the number of live runtimes.
func (r *Registry) Len() int {
	return r.cache.Len()
}

// Close shuts every live runtime down.
func (r *Registry) Close(ctx context.Context) error {
	var errs error
	for _, key := range r.cache.Keys() {
		c, ok := r.cache.Peek(key)
		if !ok {
			continue
		}
		errs = multierr.Append(errs, c.Close(ctx))
	}
	r.cache.Purge()
	return errs
}
