// Package storefront assembles the per-tab runtime: identity, cart, wishlist
// and the auth bridge that keeps them bound to the signed-in shopper.
package storefront

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/miravo-storefront/internal/auth"
	"github.com/angelmondragon/miravo-storefront/internal/authbridge"
	"github.com/angelmondragon/miravo-storefront/internal/cart"
	"github.com/angelmondragon/miravo-storefront/internal/identity"
	"github.com/angelmondragon/miravo-storefront/internal/wishlist"
	pkgerrors "github.com/angelmondragon/miravo-storefront/pkg/errors"
)

const maxClientIDLen = 64

// Client is one browser tab's storefront runtime.
type Client struct {
	DeviceID string
	TabID    string

	Identity *identity.Resolver
	Cart     *cart.Store
	Wishlist *wishlist.Store
	Auth     auth.Provider
	Bridge   *authbridge.Bridge

	dispatcher *authbridge.Dispatcher
}

// Close waits for pending identity updates and releases the runtime.
func (c *Client) Close(ctx context.Context) error {
	if c.Bridge != nil {
		c.Bridge.Close()
	}
	if c.dispatcher == nil {
		return nil
	}
	err := c.dispatcher.Flush(ctx)
	c.dispatcher.Close()
	if err != nil && !errors.Is(err, authbridge.ErrDispatcherClosed) {
		return fmt.Errorf("close client %s/%s: %w", c.DeviceID, c.TabID, err)
	}
	return nil
}

// ValidateClientIDs checks the device and tab identifiers sent by the browser.
func ValidateClientIDs(deviceID, tabID string) error {
	for _, field := range [...]struct{ name, value string }{{"device id", deviceID}, {"tab id", tabID}} {
		name, value := field.name, strings.TrimSpace(field.value)
		if value == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, name+" is required")
		}
		if len(value) > maxClientIDLen || strings.ContainsAny(value, ": \t\n") {
			return pkgerrors.New(pkgerrors.CodeValidation, name+" is invalid")
		}
	}
	return nil
}

func cacheKey(deviceID, tabID string) string {
	return deviceID + "/" + tabID
}
