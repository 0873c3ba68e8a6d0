package controllers

import (
	"net/http"

	"github.com/angelmondragon/miravo-storefront/api/responses"
	"github.com/angelmondragon/miravo-storefront/api/validators"
	"github.com/angelmondragon/miravo-storefront/internal/wishlist"
	"github.com/angelmondragon/miravo-storefront/pkg/logger"
)

type addWishlistItemRequest struct {
	ID          string        `json:"id" validate:"required,max=256"`
	Handle      string        `json:"handle" validate:"required,max=256"`
	Title       string        `json:"title" validate:"required,max=256"`
	Description string        `json:"description" validate:"max=4096"`
	ImageURL    string        `json:"image_url" validate:"omitempty,url"`
	Price       *moneyPayload `json:"price"`
}

func (r addWishlistItemRequest) toProduct() (wishlist.Product, error) {
	product := wishlist.Product{
		ID:          r.ID,
		Handle:      r.Handle,
		Title:       validators.SanitizeString(r.Title, 256),
		Description: validators.SanitizeString(r.Description, 4096),
		ImageURL:    r.ImageURL,
	}
	if r.Price != nil {
		price, err := r.Price.toMoney()
		if err != nil {
			return wishlist.Product{}, err
		}
		product.Price = &price
	}
	return product, nil
}

type wishlistContainsResponse struct {
	ProductID  string `json:"productId"`
	InWishlist bool   `json:"inWishlist"`
}

func WishlistGet(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, ok := runtimeFor(w, r, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, client.Wishlist.Snapshot())
	}
}

// WishlistAddItem saves a product. Saving it twice is a no-op.
func WishlistAddItem(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, ok := runtimeFor(w, r, logg)
		if !ok {
			return
		}

		var payload addWishlistItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product, err := payload.toProduct()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := client.Wishlist.AddItem(r.Context(), product)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

func WishlistRemoveItem(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, ok := runtimeFor(w, r, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, client.Wishlist.RemoveItem(r.Context(), pathParam(r, "productId")))
	}
}

func WishlistContains(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, ok := runtimeFor(w, r, logg)
		if !ok {
			return
		}
		productID := pathParam(r, "productId")
		responses.WriteSuccess(w, wishlistContainsResponse{
			ProductID:  productID,
			InWishlist: client.Wishlist.IsInWishlist(productID),
		})
	}
}

func WishlistClear(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, ok := runtimeFor(w, r, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, client.Wishlist.ClearWishlist(r.Context()))
	}
}
