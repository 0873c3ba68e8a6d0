// Package reconcile keeps a persisted cart bound to the tab that owns it.
package reconcile

import (
	"context"
	"fmt"

	"github.com/angelmondragon/miravo-storefront/internal/cart"
	"github.com/angelmondragon/miravo-storefront/pkg/logger"
	"github.com/angelmondragon/miravo-storefront/pkg/metrics"
)

const reasonMismatch = "mismatch"

// Cart is the slice of the cart store the reconciler drives.
type Cart interface {
	Snapshot() cart.Cart
	ResetForNewSession(ctx context.Context) (cart.Cart, error)
}

// Sessions resolves the tab's guest session identifier.
type Sessions interface {
	GuestSessionID(ctx context.Context) (string, error)
}

type Reconciler struct {
	cart     Cart
	sessions Sessions
	logg     *logger.Logger
	metrics  *metrics.Storefront
}

func New(c Cart, sessions Sessions, logg *logger.Logger, m *metrics.Storefront) *Reconciler {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Reconciler{cart: c, sessions: sessions, logg: logg, metrics: m}
}

// ValidateCartSession resets the cart when its session id differs from the
// tab's guest session id, which happens when local storage outlives the tab
// that wrote it. Signed-in carts carry a user_ id and are reset as well.
func (r *Reconciler) ValidateCartSession(ctx context.Context) (bool, error) {
	tabSession, err := r.sessions.GuestSessionID(ctx)
	if err != nil {
		return false, fmt.Errorf("resolve tab session: %w", err)
	}
	stored := r.cart.Snapshot().SessionID
	if stored == tabSession {
		return false, nil
	}

	if _, err := r.cart.ResetForNewSession(ctx); err != nil {
		return false, err
	}
	r.metrics.SessionReset(reasonMismatch)
	r.logg.Info(r.logg.WithFields(ctx, map[string]any{
		"stored_session": stored,
		"tab_session":    tabSession,
	}), "cart.session.reset")
	return true, nil
}
