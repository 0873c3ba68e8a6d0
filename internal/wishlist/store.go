package wishlist

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/angelmondragon/miravo-storefront/pkg/errors"
	"github.com/angelmondragon/miravo-storefront/pkg/logger"
	"github.com/angelmondragon/miravo-storefront/pkg/metrics"
)

// GuestIDs resolves the tab's guest wishlist identifier.
type GuestIDs interface {
	GuestWishlistID(ctx context.Context) (string, error)
	LookupGuestWishlistID(ctx context.Context) (string, bool, error)
}

type StoreParams struct {
	Repo    *Repository
	Guests  GuestIDs
	Logger  *logger.Logger
	Metrics *metrics.Storefront
	Now     func() time.Time
}

// Store holds the wishlist for one storefront client and moves it between
// the guest scope and a user scope.
type Store struct {
	mu      sync.Mutex
	items   []Item
	userID  string
	repo    *Repository
	guests  GuestIDs
	logg    *logger.Logger
	metrics *metrics.Storefront
	now     func() time.Time
}

// NewStore starts in guest mode, rehydrating the guest scope when the tab
// already has a guest identifier. It never mints one.
func NewStore(ctx context.Context, params StoreParams) (*Store, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("wishlist repository required")
	}
	if params.Guests == nil {
		return nil, fmt.Errorf("guest id source required")
	}
	s := &Store{
		items:   []Item{},
		repo:    params.Repo,
		guests:  params.Guests,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     params.Now,
	}
	if s.logg == nil {
		s.logg = logger.Nop()
	}
	if s.now == nil {
		s.now = time.Now
	}

	guestID, ok, err := params.Guests.LookupGuestWishlistID(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		items, _, err := params.Repo.Load(ctx, GuestScope(guestID))
		if err != nil {
			return nil, err
		}
		s.items = items
	}
	return s, nil
}

func (s *Store) Snapshot() Wishlist {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// AddItem saves product unless it is already present.
func (s *Store) AddItem(ctx context.Context, product Product) (Wishlist, error) {
	product.ID = strings.TrimSpace(product.ID)
	if product.ID == "" {
		return Wishlist{}, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if indexOf(s.items, product.ID) >= 0 {
		return s.snapshotLocked(), nil
	}
	s.items = append(s.items, Item{
		ProductID:     product.ID,
		ProductHandle: product.Handle,
		Product:       product,
		AddedAt:       s.now().UnixMilli(),
	})
	s.persistLocked(ctx, true)
	return s.snapshotLocked(), nil
}

func (s *Store) RemoveItem(ctx context.Context, productID string) Wishlist {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := indexOf(s.items, productID)
	if idx < 0 {
		return s.snapshotLocked()
	}
	next := make([]Item, 0, len(s.items)-1)
	next = append(next, s.items[:idx]...)
	s.items = append(next, s.items[idx+1:]...)
	s.persistLocked(ctx, false)
	return s.snapshotLocked()
}

func (s *Store) IsInWishlist(productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return indexOf(s.items, productID) >= 0
}

// ClearWishlist empties the current scope only.
func (s *Store) ClearWishlist(ctx context.Context) Wishlist {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = []Item{}
	s.persistLocked(ctx, false)
	return s.snapshotLocked()
}

// SetUserID moves the wishlist between scopes. A new user id loads that
// user's saved items without merging; an empty id after a user signs out
// drops the in-memory items but leaves the user's record in storage.
func (s *Store) SetUserID(ctx context.Context, userID string) (Wishlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case userID != "" && userID != s.userID:
		items, _, err := s.repo.Load(ctx, UserScope(userID))
		if err != nil {
			return s.snapshotLocked(), pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user wishlist")
		}
		s.userID = userID
		s.items = items
	case userID == "" && s.userID != "":
		s.userID = ""
		s.items = []Item{}
	}
	return s.snapshotLocked(), nil
}

// SyncFromGuest folds the tab's guest wishlist into the signed-in user's
// wishlist and deletes the guest record. Existing items keep their order;
// guest-only items are appended.
func (s *Store) SyncFromGuest(ctx context.Context) (Wishlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.userID == "" {
		return s.snapshotLocked(), nil
	}
	guestID, ok, err := s.guests.LookupGuestWishlistID(ctx)
	if err != nil {
		return s.snapshotLocked(), pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup guest wishlist")
	}
	if !ok {
		return s.snapshotLocked(), nil
	}
	guest := GuestScope(guestID)
	guestItems, found, err := s.repo.Load(ctx, guest)
	if err != nil {
		return s.snapshotLocked(), pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load guest wishlist")
	}
	if !found {
		return s.snapshotLocked(), nil
	}

	merged, added, skipped := union(s.items, guestItems)
	if err := s.repo.Save(ctx, UserScope(s.userID), merged); err != nil {
		return s.snapshotLocked(), pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save merged wishlist")
	}
	s.items = merged
	if err := s.repo.Delete(ctx, guest); err != nil {
		s.logg.Error(ctx, "wishlist.guest_delete.failed", err)
	}
	s.metrics.WishlistMerge(added, skipped)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"user_id": s.userID,
		"added":   added,
		"skipped": skipped,
	})
	s.logg.Info(logCtx, "wishlist.guest_merged")
	return s.snapshotLocked(), nil
}

// persistLocked saves the current scope. The guest identifier is minted only
// when create is set, so removals never bring a guest scope into existence.
func (s *Store) persistLocked(ctx context.Context, create bool) {
	scope, ok, err := s.currentScopeLocked(ctx, create)
	if err != nil {
		s.logg.Error(ctx, "wishlist.scope.failed", err)
		return
	}
	if !ok {
		return
	}
	if err := s.repo.Save(ctx, scope, s.items); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "scope", scope.String()), "wishlist.persist.failed", err)
	}
}

func (s *Store) currentScopeLocked(ctx context.Context, create bool) (Scope, bool, error) {
	if s.userID != "" {
		return UserScope(s.userID), true, nil
	}
	if create {
		id, err := s.guests.GuestWishlistID(ctx)
		if err != nil {
			return Scope{}, false, err
		}
		return GuestScope(id), true, nil
	}
	id, ok, err := s.guests.LookupGuestWishlistID(ctx)
	if err != nil || !ok {
		return Scope{}, false, err
	}
	return GuestScope(id), true, nil
}

func (s *Store) snapshotLocked() Wishlist {
	items := make([]Item, len(s.items))
	copy(items, s.items)
	return Wishlist{Items: items, UserID: s.userID}
}
