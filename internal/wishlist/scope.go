package wishlist

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/miravo-storefront/internal/storage"
)

const keyPrefix = "miravo-wishlist-"

type scopeKind int

const (
	guestScope scopeKind = iota
	userScope
)

// Scope is a wishlist storage partition: a tab-scoped guest or a user.
type Scope struct {
	kind scopeKind
	id   string
}

func GuestScope(guestID string) Scope { return Scope{kind: guestScope, id: guestID} }

func UserScope(userID string) Scope { return Scope{kind: userScope, id: userID} }

func (s Scope) IsGuest() bool { return s.kind == guestScope }

func (s Scope) ID() string { return s.id }

// Key is the local storage key holding the scope's record.
func (s Scope) Key() string { return keyPrefix + s.id }

func (s Scope) String() string {
	if s.IsGuest() {
		return "guest:" + s.id
	}
	return "user:" + s.id
}

type record struct {
	State struct {
		Items []Item `json:"items"`
	} `json:"state"`
}

// Repository loads and saves wishlist records per scope.
type Repository struct {
	local storage.Store
}

func NewRepository(local storage.Store) *Repository {
	return &Repository{local: local}
}

// Load returns the scope's items and whether a record exists. A record that
// does not decode loads as an empty, existing wishlist.
func (r *Repository) Load(ctx context.Context, scope Scope) ([]Item, bool, error) {
	raw, ok, err := r.local.Get(ctx, scope.Key())
	if err != nil {
		return nil, false, fmt.Errorf("load wishlist %s: %w", scope, err)
	}
	if !ok {
		return []Item{}, false, nil
	}
	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return []Item{}, true, nil
	}
	return dedupe(rec.State.Items), true, nil
}

func (r *Repository) Save(ctx context.Context, scope Scope, items []Item) error {
	var rec record
	rec.State.Items = items
	if rec.State.Items == nil {
		rec.State.Items = []Item{}
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal wishlist %s: %w", scope, err)
	}
	if err := r.local.Set(ctx, scope.Key(), string(raw)); err != nil {
		return fmt.Errorf("save wishlist %s: %w", scope, err)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, scope Scope) error {
	if err := r.local.Delete(ctx, scope.Key()); err != nil {
		return fmt.Errorf("delete wishlist %s: %w", scope, err)
	}
	return nil
}

func dedupe(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		if item.ProductID == "" || indexOf(out, item.ProductID) >= 0 {
			continue
		}
		out = append(out, item)
	}
	return out
}
