package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/miravo-storefront/api/responses"
	"github.com/angelmondragon/miravo-storefront/internal/storefront"
	"github.com/angelmondragon/miravo-storefront/pkg/logger"
)

const (
	DeviceIDHeader = "X-Device-Id"
	TabIDHeader    = "X-Tab-Id"
)

type clientResolver interface {
	Client(ctx context.Context, deviceID, tabID string) (*storefront.Client, error)
}

// ClientContext resolves the device and tab headers into the storefront
// runtime that owns the tab's cart and wishlist.
func ClientContext(registry clientResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			deviceID := strings.TrimSpace(r.Header.Get(DeviceIDHeader))
			tabID := strings.TrimSpace(r.Header.Get(TabIDHeader))

			client, err := registry.Client(ctx, deviceID, tabID)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}

			if logg != nil {
				ctx = logg.WithClient(ctx, deviceID, tabID)
				if userID := userIDOf(client); userID != "" {
					ctx = logg.WithUserID(ctx, userID)
				}
			}
			next.ServeHTTP(w, r.WithContext(WithClient(ctx, client)))
		})
	}
}

func userIDOf(c *storefront.Client) string {
	if c.Bridge == nil {
		return ""
	}
	if user := c.Bridge.State().User; user != nil {
		return user.ID
	}
	return ""
}
