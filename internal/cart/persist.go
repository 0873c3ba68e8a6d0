package cart

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/miravo-storefront/internal/storage"
)

const recordVersion = 0

// Record is the persisted subset of the cart: items and session only.
type Record struct {
	Items     []LineItem `json:"items"`
	SessionID string     `json:"sessionId"`
}

type envelope struct {
	State   Record `json:"state"`
	Version int    `json:"version"`
}

func recordOf(c Cart) Record {
	items := c.Items
	if items == nil {
		items = []LineItem{}
	}
	return Record{Items: items, SessionID: c.SessionID}
}

func saveRecord(ctx context.Context, local storage.Store, rec Record) error {
	raw, err := json.Marshal(envelope{State: rec, Version: recordVersion})
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	return local.Set(ctx, storage.KeyCart, string(raw))
}

// loadRecord returns ok=false when nothing usable is stored. Malformed JSON
// counts as nothing stored.
func loadRecord(ctx context.Context, local storage.Store) (Record, bool, error) {
	raw, ok, err := local.Get(ctx, storage.KeyCart)
	if err != nil || !ok {
		return Record{}, false, err
	}
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return Record{}, false, nil
	}
	return sanitize(env.State), true, nil
}

// sanitize drops rows that break the one-line-per-variant, positive-quantity rule.
func sanitize(rec Record) Record {
	seen := make(map[string]struct{}, len(rec.Items))
	items := make([]LineItem, 0, len(rec.Items))
	for _, item := range rec.Items {
		if item.VariantID == "" || item.Quantity <= 0 {
			continue
		}
		if _, dup := seen[item.VariantID]; dup {
			continue
		}
		seen[item.VariantID] = struct{}{}
		items = append(items, item)
	}
	rec.Items = items
	return rec
}
