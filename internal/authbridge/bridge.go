// Package authbridge keeps the cart and wishlist identities in step with the
// auth provider's session.
package authbridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/angelmondragon/miravo-storefront/internal/auth"
	"github.com/angelmondragon/miravo-storefront/internal/cart"
	"github.com/angelmondragon/miravo-storefront/internal/identity"
	"github.com/angelmondragon/miravo-storefront/internal/wishlist"
	"github.com/angelmondragon/miravo-storefront/pkg/db/models"
	"github.com/angelmondragon/miravo-storefront/pkg/logger"
	"github.com/angelmondragon/miravo-storefront/pkg/metrics"
)

type Cart interface {
	SetSessionID(ctx context.Context, id string) cart.Cart
	ResetForNewSession(ctx context.Context) (cart.Cart, error)
}

type Wishlist interface {
	SetUserID(ctx context.Context, userID string) (wishlist.Wishlist, error)
	SyncFromGuest(ctx context.Context) (wishlist.Wishlist, error)
}

// Profiles returns nil, nil when the user has no profile row.
type Profiles interface {
	Get(ctx context.Context, userID string) (*models.Profile, error)
}

// State is what the storefront knows about the signed-in shopper.
type State struct {
	User    *auth.User      `json:"user"`
	Session *auth.Session   `json:"-"`
	Profile *models.Profile `json:"profile"`
	// Loading stays true until the first session pull completes.
	Loading bool `json:"loading"`
}

// SignedIn reports whether a user is attached.
func (s State) SignedIn() bool { return s.User != nil }

type Params struct {
	Provider   auth.Provider
	Cart       Cart
	Wishlist   Wishlist
	Profiles   Profiles
	Dispatcher *Dispatcher
	Logger     *logger.Logger
	Metrics    *metrics.Storefront
}

type Bridge struct {
	provider   auth.Provider
	cart       Cart
	wishlist   Wishlist
	profiles   Profiles
	dispatcher *Dispatcher
	logg       *logger.Logger
	metrics    *metrics.Storefront

	mu      sync.Mutex
	state   State
	baseCtx context.Context
	sub     auth.Subscription
}

func New(p Params) (*Bridge, error) {
	if p.Provider == nil || p.Cart == nil || p.Wishlist == nil || p.Dispatcher == nil {
		return nil, fmt.Errorf("authbridge: provider, cart, wishlist and dispatcher required")
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Bridge{
		provider:   p.Provider,
		cart:       p.Cart,
		wishlist:   p.Wishlist,
		profiles:   p.Profiles,
		dispatcher: p.Dispatcher,
		logg:       logg,
		metrics:    p.Metrics,
		state:      State{Loading: true},
		baseCtx:    context.Background(),
	}, nil
}

// Start subscribes to provider events and then pulls the current session.
// The subscription comes first so no transition between the two is missed.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	b.baseCtx = context.WithoutCancel(ctx)
	b.mu.Unlock()

	sub := b.provider.OnAuthStateChange(b.onAuthStateChange)
	b.mu.Lock()
	b.sub = sub
	b.mu.Unlock()

	session, err := b.provider.GetSession(ctx)
	if err != nil {
		b.mu.Lock()
		b.state.Loading = false
		b.mu.Unlock()
		return fmt.Errorf("authbridge: get session: %w", err)
	}

	b.mu.Lock()
	b.state.Loading = false
	if session == nil {
		b.mu.Unlock()
		return nil
	}
	user := session.User
	b.state.User = &user
	b.state.Session = session
	b.mu.Unlock()

	b.dispatcher.Post(ctx, "auth.restore", func(ctx context.Context) {
		if _, err := b.wishlist.SetUserID(ctx, user.ID); err != nil {
			b.logg.Error(ctx, "authbridge.wishlist.set_user_failed", err)
		}
		b.refreshProfile(ctx, user.ID)
	})
	return nil
}

// onAuthStateChange runs under the provider's emitter lock. It only records
// state and posts work; store updates run on the dispatcher.
func (b *Bridge) onAuthStateChange(event auth.Event, session *auth.Session) {
	b.metrics.AuthEvent(string(event))

	b.mu.Lock()
	ctx := b.baseCtx
	if session == nil {
		b.state.User = nil
		b.state.Session = nil
		b.state.Profile = nil
		b.mu.Unlock()

		b.dispatcher.Post(ctx, "auth.signed_out", func(ctx context.Context) {
			if _, err := b.wishlist.SetUserID(ctx, ""); err != nil {
				b.logg.Error(ctx, "authbridge.wishlist.set_guest_failed", err)
			}
		})
		return
	}
	user := session.User
	if b.state.User == nil || b.state.User.ID != user.ID || event == auth.EventUserUpdated {
		b.state.User = &user
	}
	b.state.Session = session
	b.mu.Unlock()

	b.dispatcher.Post(ctx, "auth.signed_in", func(ctx context.Context) {
		ctx = b.logg.WithUserID(ctx, user.ID)
		if _, err := b.wishlist.SetUserID(ctx, user.ID); err != nil {
			b.logg.Error(ctx, "authbridge.wishlist.set_user_failed", err)
		}
		if _, err := b.wishlist.SyncFromGuest(ctx); err != nil {
			b.logg.Error(ctx, "authbridge.wishlist.sync_failed", err)
		}
		b.cart.SetSessionID(ctx, identity.AuthenticatedSessionID(user.ID))
		b.refreshProfile(ctx, user.ID)
	})
}

// State returns a copy of the current auth state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// RefreshProfile reloads the signed-in user's profile.
func (b *Bridge) RefreshProfile(ctx context.Context) {
	b.mu.Lock()
	user := b.state.User
	b.mu.Unlock()
	if user == nil {
		return
	}
	b.refreshProfile(ctx, user.ID)
}

func (b *Bridge) refreshProfile(ctx context.Context, userID string) {
	if b.profiles == nil {
		return
	}
	profile, err := b.profiles.Get(ctx, userID)
	if err != nil {
		b.logg.Error(ctx, "authbridge.profile.fetch_failed", err)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state.User == nil || b.state.User.ID != userID {
		return
	}
	b.state.Profile = profile
}

// SignOut starts a fresh guest cart, detaches the wishlist from the user and
// then signs out of the provider. Identity tasks already queued run first so
// none of them rebinds the stores to the old user after the reset.
func (b *Bridge) SignOut(ctx context.Context) error {
	if err := b.dispatcher.Flush(ctx); err != nil {
		return fmt.Errorf("drain identity updates: %w", err)
	}
	if _, err := b.cart.ResetForNewSession(ctx); err != nil {
		return fmt.Errorf("reset cart: %w", err)
	}
	if _, err := b.wishlist.SetUserID(ctx, ""); err != nil {
		return fmt.Errorf("detach wishlist: %w", err)
	}
	return b.provider.SignOut(ctx)
}

// Flush waits for queued identity updates to finish.
func (b *Bridge) Flush(ctx context.Context) error {
	return b.dispatcher.Flush(ctx)
}

// Close drops the provider subscription.
func (b *Bridge) Close() {
	b.mu.Lock()
	sub := b.sub
	b.sub = nil
	b.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}
