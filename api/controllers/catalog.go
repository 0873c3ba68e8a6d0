package controllers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/angelmondragon/miravo-storefront/api/responses"
	"github.com/angelmondragon/miravo-storefront/api/validators"
	"github.com/angelmondragon/miravo-storefront/internal/commerce"
	pkgerrors "github.com/angelmondragon/miravo-storefront/pkg/errors"
	"github.com/angelmondragon/miravo-storefront/pkg/logger"
)

// Catalog reads products and collections from the commerce backend.
type Catalog interface {
	FetchProducts(ctx context.Context, first int, query string) ([]commerce.Product, error)
	FetchProductByHandle(ctx context.Context, handle string) (commerce.Product, error)
	FetchCollections(ctx context.Context, first int) ([]commerce.Collection, error)
}

// ProductsList returns up to ?first products matching the optional ?query.
func ProductsList(svc Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}

		first, err := parseFirst(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		query := validators.SanitizeString(r.URL.Query().Get("query"), 256)

		products, err := svc.FetchProducts(ctx, first, query)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, products)
	}
}

func ProductByHandle(svc Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}

		handle := strings.TrimSpace(pathParam(r, "handle"))
		if handle == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "product handle is required"))
			return
		}

		product, err := svc.FetchProductByHandle(ctx, handle)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}

func CollectionsList(svc Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}

		first, err := parseFirst(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		collections, err := svc.FetchCollections(ctx, first)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, collections)
	}
}

// parseFirst reads ?first. Zero means the backend default.
func parseFirst(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("first"))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "first must be a positive integer")
	}
	return value, nil
}
