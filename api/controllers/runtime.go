package controllers

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/miravo-storefront/api/middleware"
	"github.com/angelmondragon/miravo-storefront/api/responses"
	"github.com/angelmondragon/miravo-storefront/internal/storefront"
	pkgerrors "github.com/angelmondragon/miravo-storefront/pkg/errors"
	"github.com/angelmondragon/miravo-storefront/pkg/logger"
)

// runtimeFor returns the tab's storefront runtime or writes the error
// response when the request was not routed through ClientContext.
func runtimeFor(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (*storefront.Client, bool) {
	client := middleware.ClientFromContext(r.Context())
	if client == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "storefront client missing"))
		return nil, false
	}
	return client, true
}

// settle waits for identity updates queued by an auth call so the response
// reflects the merged wishlist and rebound cart.
func settle(r *http.Request, client *storefront.Client, logg *logger.Logger) {
	if client.Bridge == nil {
		return
	}
	if err := client.Bridge.Flush(r.Context()); err != nil && logg != nil {
		logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "auth.flush.incomplete")
	}
}

// pathParam returns the unescaped URL parameter. Commerce ids are gids that
// carry slashes, so clients send them percent-encoded.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if value, err := url.PathUnescape(raw); err == nil {
		return value
	}
	return raw
}
