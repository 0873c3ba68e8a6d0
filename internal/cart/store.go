package cart

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/miravo-storefront/internal/storage"
	pkgerrors "github.com/angelmondragon/miravo-storefront/pkg/errors"
	"github.com/angelmondragon/miravo-storefront/pkg/logger"
	"github.com/angelmondragon/miravo-storefront/pkg/metrics"
)

// SessionSource owns the tab's guest session identifier.
type SessionSource interface {
	GuestSessionID(ctx context.Context) (string, error)
	NewGuestSessionID(ctx context.Context) (string, error)
}

// Checkout is the commerce backend's answer to a checkout request.
type Checkout struct {
	CartID string `json:"cartId"`
	URL    string `json:"checkoutUrl"`
}

// CheckoutCreator opens a checkout session for the given lines.
type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, items []LineItem) (Checkout, error)
}

type StoreParams struct {
	Local    storage.Store
	Sessions SessionSource
	Checkout CheckoutCreator
	Logger   *logger.Logger
	Metrics  *metrics.Storefront
}

// Store owns the current cart snapshot for one storefront client. Mutations
// run under the store mutex and write the persisted record before returning.
type Store struct {
	mu       sync.Mutex
	state    Cart
	// epoch advances whenever the cart is cleared or rebound.
	epoch    uint64
	local    storage.Store
	sessions SessionSource
	checkout CheckoutCreator
	logg     *logger.Logger
	metrics  *metrics.Storefront
}

// NewStore hydrates the cart from local storage. Without a usable record the
// cart starts empty under the tab's guest session.
func NewStore(ctx context.Context, params StoreParams) (*Store, error) {
	if params.Local == nil {
		return nil, fmt.Errorf("local storage required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session source required")
	}
	if params.Checkout == nil {
		return nil, fmt.Errorf("checkout creator required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}

	s := &Store{
		local:    params.Local,
		sessions: params.Sessions,
		checkout: params.Checkout,
		logg:     logg,
		metrics:  params.Metrics,
	}

	rec, ok, err := loadRecord(ctx, params.Local)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if !ok || rec.SessionID == "" {
		sessionID, err := params.Sessions.GuestSessionID(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve guest session: %w", err)
		}
		rec.SessionID = sessionID
	}
	s.state = Cart{Items: rec.Items, SessionID: rec.SessionID}
	if s.state.Items == nil {
		s.state.Items = []LineItem{}
	}
	return s, nil
}

// Snapshot returns a copy of the current cart.
func (s *Store) Snapshot() Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

func (s *Store) AddItem(ctx context.Context, item LineItem) (Cart, error) {
	item.VariantID = strings.TrimSpace(item.VariantID)
	if item.VariantID == "" {
		return Cart{}, pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}
	if item.Quantity < 1 {
		return Cart{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	return s.apply(ctx, "add", func(c Cart) Cart { return AddItem(c, item) }), nil
}

func (s *Store) UpdateQuantity(ctx context.Context, variantID string, quantity int) Cart {
	op := "update"
	if quantity <= 0 {
		op = "remove"
	}
	return s.apply(ctx, op, func(c Cart) Cart { return UpdateQuantity(c, variantID, quantity) })
}

func (s *Store) RemoveItem(ctx context.Context, variantID string) Cart {
	return s.apply(ctx, "remove", func(c Cart) Cart { return RemoveItem(c, variantID) })
}

func (s *Store) ClearCart(ctx context.Context) Cart {
	return s.apply(ctx, "clear", func(c Cart) Cart {
		s.epoch++
		return Clear(c)
	})
}

// SetSessionID rebinds the cart to id without touching its items.
func (s *Store) SetSessionID(ctx context.Context, id string) Cart {
	return s.apply(ctx, "set_session", func(c Cart) Cart {
		if c.SessionID != id {
			s.epoch++
		}
		next := c.clone()
		next.SessionID = id
		return next
	})
}

// SetCartID records the remote cart identifier. It is never persisted.
func (s *Store) SetCartID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.CartID = id
}

// SetCheckoutURL records the checkout URL. It is never persisted.
func (s *Store) SetCheckoutURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.CheckoutURL = url
}

// ResetForNewSession rotates the tab's guest session and empties the cart.
func (s *Store) ResetForNewSession(ctx context.Context) (Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessionID, err := s.sessions.NewGuestSessionID(ctx)
	if err != nil {
		return Cart{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rotate guest session")
	}
	s.state = Reset(s.state, sessionID)
	s.epoch++
	s.persistLocked(ctx)
	s.metrics.CartMutation("reset")
	return s.state.clone(), nil
}

// CreateCheckout opens a checkout for the current items. An empty cart
// returns ok=false without calling the backend. The loading flag is set for
// the duration of the backend call and cleared however it ends. When the cart
// was cleared or reset during the call, the checkout is returned but not
// recorded on the store.
func (s *Store) CreateCheckout(ctx context.Context) (Checkout, bool, error) {
	s.mu.Lock()
	if len(s.state.Items) == 0 {
		s.mu.Unlock()
		return Checkout{}, false, nil
	}
	items := cloneItems(s.state.Items)
	epoch := s.epoch
	s.state.Loading = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.state.Loading = false
		s.mu.Unlock()
	}()

	start := time.Now()
	co, err := s.checkout.CreateCheckout(ctx, items)
	if err == nil && co.URL == "" {
		err = pkgerrors.New(pkgerrors.CodeDependency, "checkout url missing from response")
	}
	if err != nil {
		s.metrics.Checkout("failure", time.Since(start))
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"line_count": len(items),
			"retryable":  pkgerrors.IsRetryable(err),
		})
		s.logg.Error(logCtx, "cart.checkout.failed", err)
		return Checkout{}, false, err
	}
	s.metrics.Checkout("success", time.Since(start))

	s.mu.Lock()
	stale := s.epoch != epoch
	if !stale {
		s.state.CartID = co.CartID
		s.state.CheckoutURL = co.URL
	}
	s.mu.Unlock()
	if stale {
		s.logg.Warn(s.logg.WithField(ctx, "cart_id", co.CartID), "cart.checkout.stale")
	}
	return co, true, nil
}

func (s *Store) apply(ctx context.Context, op string, fn func(Cart) Cart) Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = fn(s.state)
	s.persistLocked(ctx)
	s.metrics.CartMutation(op)
	return s.state.clone()
}

// persistLocked writes the record; failures are logged and never surfaced.
func (s *Store) persistLocked(ctx context.Context) {
	if err := saveRecord(ctx, s.local, recordOf(s.state)); err != nil {
		s.logg.Error(ctx, "cart.persist.failed", err)
	}
}
