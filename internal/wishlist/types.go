package wishlist

import "github.com/angelmondragon/miravo-storefront/pkg/types"

// Product is the catalog reference saved with a wishlist entry.
type Product struct {
	ID          string       `json:"id"`
	Handle      string       `json:"handle"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	ImageURL    string       `json:"imageUrl,omitempty"`
	Price       *types.Money `json:"price,omitempty"`
}

// Item is a saved product. ProductID is unique per wishlist.
type Item struct {
	ProductID     string  `json:"productId"`
	ProductHandle string  `json:"productHandle"`
	Product       Product `json:"product"`
	// AddedAt is unix milliseconds.
	AddedAt int64 `json:"addedAt"`
}

// Wishlist is a snapshot of the in-memory wishlist. UserID is empty for guests.
type Wishlist struct {
	Items  []Item `json:"items"`
	UserID string `json:"userId,omitempty"`
}

func (w Wishlist) Contains(productID string) bool {
	return indexOf(w.Items, productID) >= 0
}

func indexOf(items []Item, productID string) int {
	for i, item := range items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// union keeps every current item in order and appends guest-only items.
func union(current, guest []Item) (merged []Item, added, skipped int) {
	merged = append(make([]Item, 0, len(current)+len(guest)), current...)
	for _, item := range guest {
		if indexOf(merged, item.ProductID) >= 0 {
			skipped++
			continue
		}
		merged = append(merged, item)
		added++
	}
	return merged, added, skipped
}
