// Package storage provides the two key/value partitions a storefront runtime
// persists into: a device-scoped local store shared by every tab, and a
// tab-scoped store that is private to one tab and expires with it.
package storage

import "context"

// Well-known keys written by the storefront runtime.
const (
	KeyTabSessionID = "miravo-session-id"
	KeyTabGuestID   = "miravo-guest-id"
	KeyCart         = "miravo-cart"
	KeyAuthToken    = "miravo-auth-token"
)

// Store is a string key/value partition.
type Store interface {
	// Get returns the value and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Backend hands out partitions for a device and its tabs.
type Backend interface {
	Local(deviceID string) Store
	Tab(deviceID, tabID string) Store
}
