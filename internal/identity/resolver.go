package identity

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/miravo-storefront/internal/storage"
)

const (
	guestPrefix         = "guest_"
	authenticatedPrefix = "user_"
	suffixLen           = 7
	base36              = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// Generator produces fresh guest identifiers.
type Generator interface {
	NewGuestID() string
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func() string

func (f GeneratorFunc) NewGuestID() string { return f() }

// ClockGenerator builds guest_<unix millis>_<7 base36 chars> identifiers.
type ClockGenerator struct {
	Now    func() time.Time
	Random func(n int) int
}

func (g ClockGenerator) NewGuestID() string {
	now := g.Now
	if now == nil {
		now = time.Now
	}
	random := g.Random
	if random == nil {
		random = rand.IntN
	}
	var b strings.Builder
	b.Grow(suffixLen)
	for i := 0; i < suffixLen; i++ {
		b.WriteByte(base36[random(len(base36))])
	}
	return guestPrefix + strconv.FormatInt(now().UnixMilli(), 10) + "_" + b.String()
}

// Resolver hands out tab-scoped guest identifiers.
type Resolver struct {
	tab storage.Store
	gen Generator
}

func NewResolver(tab storage.Store, gen Generator) *Resolver {
	if gen == nil {
		gen = ClockGenerator{}
	}
	return &Resolver{tab: tab, gen: gen}
}

// GuestSessionID returns the tab's cart session identifier, creating it on first use.
func (r *Resolver) GuestSessionID(ctx context.Context) (string, error) {
	return r.getOrCreate(ctx, storage.KeyTabSessionID)
}

// GuestWishlistID returns the tab's guest wishlist scope identifier, creating it on first use.
func (r *Resolver) GuestWishlistID(ctx context.Context) (string, error) {
	return r.getOrCreate(ctx, storage.KeyTabGuestID)
}

// LookupGuestWishlistID returns the guest wishlist identifier without creating one.
func (r *Resolver) LookupGuestWishlistID(ctx context.Context) (string, bool, error) {
	return r.lookup(ctx, storage.KeyTabGuestID)
}

// NewGuestSessionID rotates the tab's cart session identifier.
func (r *Resolver) NewGuestSessionID(ctx context.Context) (string, error) {
	id := r.gen.NewGuestID()
	if err := r.tab.Set(ctx, storage.KeyTabSessionID, id); err != nil {
		return "", fmt.Errorf("store guest session id: %w", err)
	}
	return id, nil
}

func (r *Resolver) getOrCreate(ctx context.Context, key string) (string, error) {
	if id, ok, err := r.lookup(ctx, key); err != nil {
		return "", err
	} else if ok {
		return id, nil
	}
	id := r.gen.NewGuestID()
	if err := r.tab.Set(ctx, key, id); err != nil {
		return "", fmt.Errorf("store %s: %w", key, err)
	}
	return id, nil
}

func (r *Resolver) lookup(ctx context.Context, key string) (string, bool, error) {
	id, ok, err := r.tab.Get(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok || strings.TrimSpace(id) == "" {
		return "", false, nil
	}
	return id, true, nil
}

// AuthenticatedSessionID derives the cart session identifier for a signed-in user.
func AuthenticatedSessionID(userID string) string {
	return authenticatedPrefix + userID
}

// IsGuest reports whether a session identifier was minted for an anonymous visitor.
func IsGuest(sessionID string) bool {
	return strings.HasPrefix(sessionID, guestPrefix)
}
